package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// spectrumChart renders the current spectrum as a standalone go-echarts line
// chart (HTML). Query params:
//   - autoscale (optional; default true): when false, the y axis is pinned
//     to [0, max integration-scaled intensity] instead of fitting the data.
func (s *Server) spectrumChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reading, readErr := s.latestSpectrum(r.Context())

	model, _ := s.dev.Model(r.Context())
	subtitle := fmt.Sprintf("points=%d", reading.Len())
	if readErr != nil {
		subtitle = fmt.Sprintf("%s status=%s", subtitle, readErr)
	}

	autoscale := r.URL.Query().Get("autoscale") != "false"

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle:       fmt.Sprintf("ocean optics %s", model),
			Theme:           "dark",
			BackgroundColor: s.theme.Colour("background"),
			Width:           "1200px",
			Height:          "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("ocean optics %s", model),
			Subtitle: subtitle,
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Wavelength (nm)", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(yAxis(reading.Intensities, autoscale)),
	)

	xs := make([]string, reading.Len())
	data := make([]opts.LineData, reading.Len())
	for i, wl := range reading.Wavelengths {
		xs[i] = fmt.Sprintf("%.2f", wl)
		data[i] = opts.LineData{Value: reading.Intensities[i]}
	}

	line.SetXAxis(xs)
	line.AddSeries("intensity", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(false), ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: s.theme.Colour("accent")}),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// yAxis pins the intensity axis when autoscaling is off so successive frames
// don't jump around as the signal changes.
func yAxis(intensities []float64, autoscale bool) opts.YAxis {
	axis := opts.YAxis{Name: "Intensity (A.U.)", NameLocation: "middle", NameGap: 45}
	if autoscale {
		return axis
	}

	max := 0.0
	for _, v := range intensities {
		if v > max {
			max = v
		}
	}
	if max == 0 {
		max = 1
	}
	axis.Min = 0
	axis.Max = max * 1.05
	return axis
}
