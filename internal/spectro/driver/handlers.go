package driver

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// Conn resolves the currently bound driver. The panel tears the driver down
// and rebinds after transport errors, so admin routes look the driver up per
// request instead of capturing one instance.
type Conn interface {
	// Driver returns the bound driver, or nil while the device is unbound.
	Driver() *Driver
}

// staticConn adapts a fixed driver to the Conn interface.
type staticConn struct{ d *Driver }

func (c staticConn) Driver() *Driver { return c.d }

// AttachAdminRoutes attaches admin debugging endpoints for a fixed driver.
func (d *Driver) AttachAdminRoutes(mux *http.ServeMux) {
	AttachAdminRoutes(mux, staticConn{d})
}

// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP mux
// served at /debug/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func AttachAdminRoutes(mux *http.ServeMux, conn Conn) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a raw command to the spectrometer", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write a raw command to the port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		d := conn.Driver()
		if d == nil {
			http.Error(w, "Spectrometer not connected", http.StatusServiceUnavailable)
			return
		}
		if err := d.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to spectrometer port", command))
	})

	// API endpoint to issue Server-Side Events (SSE) for raw lines coming
	// back from the device.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		d := conn.Driver()
		if d == nil {
			http.Error(w, "Spectrometer not connected", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := d.Subscribe()
		defer d.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					// Channel closed (e.g. rebind), exit gracefully
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// serve tail.js from adminTemplateFS
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
