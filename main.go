// Command polar-recorder records a sailing vessel's best observed boat
// speeds into a (TWA, TWS) polar matrix. It listens to NMEA0183 wind and
// speed sentences on a serial port, serves the recorder API over HTTP, and
// persists everything to sqlite.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/saildata/polar.report/internal/api"
	"github.com/saildata/polar.report/internal/config"
	"github.com/saildata/polar.report/internal/monitor"
	"github.com/saildata/polar.report/internal/monitoring"
	"github.com/saildata/polar.report/internal/nmea"
	"github.com/saildata/polar.report/internal/polar"
	"github.com/saildata/polar.report/internal/pollrate"
	"github.com/saildata/polar.report/internal/serialmux"
	"github.com/saildata/polar.report/internal/store"
	"github.com/saildata/polar.report/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run in dev mode, replaying a fixtures file instead of a serial port")
	listen        = flag.String("listen", ":8080", "Listen address")
	configPath    = flag.String("config", "", "Path to recorder config JSON")
	dbPath        = flag.String("db", "polar.db", "Path to sqlite database")
	serialPort    = flag.String("serial", "/dev/ttyUSB0", "Serial port with NMEA0183 instruments")
	baudRate      = flag.Int("baud", 0, "Serial baud rate (0 uses the NMEA default)")
	fixturesPath  = flag.String("fixtures", "fixtures.polarlog", "NMEA fixtures file replayed in dev mode")
	migrationsDir = flag.String("migrations", "migrations", "Directory with sqlite migrations")
	disableSerial = flag.Bool("disable-serial", false, "Run without any instrument input")
	debug         = flag.Bool("debug", false, "Enable debug logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("polar-recorder %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	monitoring.Debug = *debug

	cfg := config.EmptyRecorderConfig()
	if *configPath != "" {
		loaded, err := config.LoadRecorderConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	var m serialmux.SerialMuxInterface
	switch {
	case *disableSerial:
		m = serialmux.NewDisabledSerialMux()
	case *devMode:
		data, err := os.ReadFile(*fixturesPath)
		if err != nil {
			log.Fatalf("failed to open fixtures file: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		m = serialmux.NewMockSerialMux(lines, 250*time.Millisecond)
	default:
		var err error
		m, err = serialmux.NewRealSerialMux(*serialPort, serialmux.PortOptions{BaudRate: *baudRate})
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", *serialPort, err)
		}
	}
	defer m.Close()

	db, err := store.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	if err := db.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	engine, err := polar.NewEngine(cfg, db, nil)
	if err != nil {
		log.Fatalf("failed to build recorder engine: %v", err)
	}

	poll := pollrate.NewClient(cfg.GetGatewayURL(), nil)
	tracker := nmea.NewTracker()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to the serial feed and push fresh readings into the engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		id, c := m.Subscribe()
		defer m.Unsubscribe(id)
		for {
			select {
			case payload := <-c:
				if !serialmux.HandleEvent(tracker, payload) {
					continue
				}
				twa, tws, bsp := tracker.Readings()
				if err := engine.Ingest(twa, tws, bsp); err != nil {
					log.Printf("error ingesting sample: %v", err)
				}
			case <-ctx.Done():
				log.Printf("subscribe routine terminated")
				return
			}
		}
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()

		// mount the admin debugging routes (accessible only in dev mode or over Tailscale)
		if err := db.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach db admin routes: %v", err)
		}
		m.AttachAdminRoutes(mux)
		mux.HandleFunc("/debug/polar-chart", monitor.MatrixChartHandler(engine))

		apiMux := api.NewServer(m, db, engine, poll, cfg.GetDataDir(), cfg.GetFastPollSeconds(), nil, nil).ServeMux()
		mux.Handle("/api/", apiMux)
		mux.Handle("/command", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("polar-recorder %s listening on %s", version.Version, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

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
