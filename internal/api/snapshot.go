package api

import (
	"fmt"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// spectrumSnapshot renders the current spectrum as a static PNG for
// downloading or embedding in reports.
func (s *Server) spectrumSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reading, _ := s.latestSpectrum(r.Context())
	if reading.Len() == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No spectrum available yet")
		return
	}

	model, _ := s.dev.Model(r.Context())

	p := plot.New()
	p.Title.Text = fmt.Sprintf("ocean optics %s", model)
	p.X.Label.Text = "Wavelength (nm)"
	p.Y.Label.Text = "Intensity (A.U.)"

	pts := make(plotter.XYs, reading.Len())
	for i := range pts {
		pts[i].X = reading.Wavelengths[i]
		pts[i].Y = reading.Intensities[i]
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	line.Width = vg.Points(1)
	p.Add(line)

	writer, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := writer.WriteTo(w); err != nil {
		// headers already sent, nothing useful left to do
		return
	}
}
