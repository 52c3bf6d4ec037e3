// Command spectra.panel serves a browser-based control panel for an optical
// spectrometer: it polls the device (or a simulated substitute) for spectral
// readings and lets an operator adjust acquisition parameters.
package main

import (
	"context"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lumen-optics/spectra.panel/internal/api"
	"github.com/lumen-optics/spectra.panel/internal/audit"
	"github.com/lumen-optics/spectra.panel/internal/config"
	"github.com/lumen-optics/spectra.panel/internal/controls"
	"github.com/lumen-optics/spectra.panel/internal/poll"
	"github.com/lumen-optics/spectra.panel/internal/spectro"
	"github.com/lumen-optics/spectra.panel/internal/spectro/driver"
)

var (
	//go:embed static/*
	staticFiles embed.FS

	devMode    = flag.Bool("dev", false, "Run with the simulated spectrometer (no hardware needed)")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	serialPath = flag.String("serial", "", "Serial port of the spectrometer (overrides config, ignored in dev mode)")
	configPath = flag.String("config", "", "Path to panel config JSON")
	themePath  = flag.String("theme", "", "Path to colours theme file")
	auditPath  = flag.String("db", "", "Path to audit database (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.EmptyPanelConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadPanelConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	listenAddr := cfg.GetListenAddr()
	if *listen != "" {
		listenAddr = *listen
	}

	theme := config.DefaultTheme()
	if *themePath != "" {
		var err error
		theme, err = config.LoadTheme(*themePath)
		if err != nil {
			log.Fatalf("failed to load theme: %v", err)
		}
	}

	var dev spectro.Spectrometer
	var drvConn driver.Conn
	if *devMode {
		dev = spectro.NewSimulated(cfg.GetSimIntegrationMicros(), cfg.GetSimSeed())
		log.Printf("running with simulated spectrometer %s", spectro.SimulatedModel)
	} else {
		path := cfg.GetSerialPath()
		if *serialPath != "" {
			path = *serialPath
		}
		opts := driver.PortOptions{
			BaudRate: cfg.GetBaudRate(),
			DataBits: cfg.GetDataBits(),
			StopBits: cfg.GetStopBits(),
			Parity:   cfg.GetParity(),
		}

		physical := spectro.NewPhysical(func() (*driver.Driver, error) {
			return driver.OpenSerial(path, opts)
		})
		defer physical.Close()
		dev = physical
		drvConn = physical
	}

	dbPath := cfg.GetAuditDBPath()
	if *auditPath != "" {
		dbPath = *auditPath
	}
	auditDB, err := audit.NewDB(dbPath)
	if err != nil {
		log.Fatalf("failed to open audit database: %v", err)
	}
	defer auditDB.Close()
	if err := auditDB.MigrateUp(cfg.GetMigrationsDir()); err != nil {
		// the inline baseline schema keeps the panel usable
		log.Printf("audit migrations not applied: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Eagerly bind the device so the startup log shows the connection state.
	// A failure here is not fatal; the handle rebinds lazily on next use.
	if err := dev.Assign(ctx); err != nil {
		log.Printf("spectrometer not yet connected: %v", err)
	}

	registry := controls.NewRegistry(ctx, dev, auditDB)
	poller := poll.New(dev, cfg.GetPollInterval(), cfg.GetPowerOn())

	var wg sync.WaitGroup

	// run the poller routine to drive the periodic spectrum refresh
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("poller terminated: %v", err)
		}
		log.Print("poller routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// create a new API server instance using the device, registry, and
		// poller, and mount the API handlers
		mux := api.NewServer(dev, registry, poller, auditDB, theme).ServeMux()

		// mount the admin debugging routes (accessible only in dev mode or
		// over Tailscale)
		auditDB.AttachAdminRoutes(mux)
		if drvConn != nil {
			driver.AttachAdminRoutes(mux, drvConn)
		}

		// read static files from the embedded filesystem in production or
		// from the local ./static in dev for easier iteration without
		// restarting the server
		var staticHandler http.Handler
		if *devMode {
			staticHandler = http.FileServer(http.Dir("./static"))
		} else {
			sub, err := fs.Sub(staticFiles, "static")
			if err != nil {
				log.Fatalf("failed to open embedded static files: %v", err)
			}
			staticHandler = http.FileServer(http.FS(sub))
		}
		mux.Handle("/", staticHandler)

		server := &http.Server{
			Addr:    listenAddr,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", listenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
