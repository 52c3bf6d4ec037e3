// Package api serves the control panel's HTTP surface: spectrum reads,
// control submissions, status, theme tokens, and chart rendering.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/lumen-optics/spectra.panel/internal/audit"
	"github.com/lumen-optics/spectra.panel/internal/config"
	"github.com/lumen-optics/spectra.panel/internal/controls"
	"github.com/lumen-optics/spectra.panel/internal/monitoring"
	"github.com/lumen-optics/spectra.panel/internal/poll"
	"github.com/lumen-optics/spectra.panel/internal/spectro"
	"github.com/lumen-optics/spectra.panel/internal/units"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// statusTimeout bounds device queries made on behalf of a single request.
const statusTimeout = 3 * time.Second

type Server struct {
	dev    spectro.Spectrometer
	reg    *controls.Registry
	poller *poll.Poller
	audit  *audit.DB
	theme  config.Theme
}

// NewServer wires the HTTP layer to the device, registry, poller, audit
// store, and theme. audit may be nil when persistence is disabled.
func NewServer(dev spectro.Spectrometer, reg *controls.Registry, poller *poll.Poller, auditDB *audit.DB, theme config.Theme) *Server {
	if theme == nil {
		theme = config.DefaultTheme()
	}
	return &Server{
		dev:    dev,
		reg:    reg,
		poller: poller,
		audit:  auditDB,
		theme:  theme,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/spectrum", s.showSpectrum)
	mux.HandleFunc("/api/spectrum.png", s.spectrumSnapshot)
	mux.HandleFunc("/api/controls", s.handleControls)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/power", s.setPower)
	mux.HandleFunc("/api/theme", s.showTheme)
	mux.HandleFunc("/api/audit", s.listAudit)
	mux.HandleFunc("/api/stream", s.streamUpdates)
	mux.HandleFunc("/charts/spectrum", s.spectrumChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// spectrumResponse pairs a reading with the connection status so the client
// can show stale data and a disconnected badge at the same time.
type spectrumResponse struct {
	Spectrum spectro.Spectrum `json:"spectrum"`
	Status   string           `json:"status"`
	Detail   string           `json:"detail,omitempty"`
}

// latestSpectrum serves the poller's cache, falling back to a direct device
// read when no reading has landed yet (e.g. right after power-on). While the
// panel is powered off the device is never touched: the cached reading, empty
// or stale, is all the client gets.
func (s *Server) latestSpectrum(ctx context.Context) (spectro.Spectrum, error) {
	latest, lastErr := s.poller.Latest()
	if !s.poller.Powered() || latest.Len() > 0 || lastErr != nil {
		return latest, lastErr
	}
	return s.dev.ReadSpectrum(ctx)
}

func (s *Server) showSpectrum(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	reading, err := s.latestSpectrum(r.Context())
	resp := spectrumResponse{
		Spectrum: reading,
		Status:   spectro.ErrorKind(err),
	}
	if err != nil {
		resp.Detail = err.Error()
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write spectrum")
		return
	}
}

// submitResponse reports a control batch back to the operator.
type submitResponse struct {
	BatchID   string                       `json:"batch_id"`
	Succeeded map[spectro.ControlID]string `json:"succeeded"`
	Failed    map[spectro.ControlID]string `json:"failed"`
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		if err := json.NewEncoder(w).Encode(s.reg.Describe()); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write controls")
		}

	case http.MethodPost:
		if !s.poller.Powered() {
			s.writeJSONError(w, http.StatusConflict,
				"Turn the power on before applying control values")
			return
		}

		var raw map[string]string
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
			return
		}
		if len(raw) == 0 {
			s.writeJSONError(w, http.StatusBadRequest, "No control values submitted")
			return
		}

		batchID, res := s.reg.Apply(r.Context(), raw)
		resp := submitResponse{
			BatchID:   batchID,
			Succeeded: res.Succeeded,
			Failed:    res.Failed,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, "Failed to write result")
		}

	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

type statusResponse struct {
	Model            string                    `json:"model"`
	Limits           spectro.IntegrationLimits `json:"integration_limits"`
	LimitsDisplay    string                    `json:"integration_limits_display"`
	Powered          bool                      `json:"powered"`
	Connection       string                    `json:"connection"`
	ConnectionDetail string                    `json:"connection_detail,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), statusTimeout)
	defer cancel()

	model, merr := s.dev.Model(ctx)
	limits, lerr := s.dev.IntegrationTimeLimits(ctx)

	err := merr
	if err == nil {
		err = lerr
	}

	resp := statusResponse{
		Model:  model,
		Limits: limits,
		LimitsDisplay: fmt.Sprintf("%s – %s",
			units.FormatMicros(limits.MinMicros), units.FormatMicros(limits.MaxMicros)),
		Powered:    s.poller.Powered(),
		Connection: spectro.ErrorKind(err),
	}
	if err != nil {
		resp.ConnectionDetail = err.Error()
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
	}
}

func (s *Server) setPower(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body struct {
		On bool `json:"on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	s.poller.SetPower(body.On)
	json.NewEncoder(w).Encode(map[string]bool{"on": body.On})
}

func (s *Server) showTheme(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.theme); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write theme")
	}
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.audit == nil {
		s.writeJSONError(w, http.StatusNotFound, "Audit store not configured")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	changes, err := s.audit.RecentChanges(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve audit log: %v", err))
		return
	}
	if changes == nil {
		changes = []audit.ControlChange{}
	}

	if err := json.NewEncoder(w).Encode(changes); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write audit log")
	}
}

// streamUpdates issues Server-Side Events with one reading summary per poll
// tick, until the client disconnects.
func (s *Server) streamUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.poller.Subscribe()
	defer s.poller.Unsubscribe(id)

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case update, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(update)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
