package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/banshee-data/magfield.report/internal/api"
	"github.com/banshee-data/magfield.report/internal/config"
	"github.com/banshee-data/magfield.report/internal/db"
	"github.com/banshee-data/magfield.report/internal/ingest"
	"github.com/banshee-data/magfield.report/internal/serialmux"
	"github.com/banshee-data/magfield.report/internal/version"
)

// newHandler mounts the API and the admin debug routes, with request logging
// and permissive CORS for the phone client.
func newHandler(m serialmux.SerialMuxInterface, store *db.DB, cfg *config.Config, consumer *ingest.Consumer) (http.Handler, error) {
	s := api.NewServer(m, store, cfg)
	if consumer != nil {
		s.SetIngestStats(consumer.Stats)
	}
	mux := s.ServeMux()

	if err := store.AttachAdminRoutes(mux); err != nil {
		return nil, err
	}
	m.AttachAdminRoutes(mux)

	return cors.AllowAll().Handler(api.LoggingMiddleware(mux)), nil
}

func runServe(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	listen := fs.String("listen", ":8080", "Listen address")
	dbPath := fs.String("db-path", defaultDBPath, "Path to the SQLite database")
	configPath := fs.String("config", "", "JSON or YAML configuration file")
	port := fs.String("serial-port", "", "Serial port of the sensor logger (serial ingest disabled when empty)")
	session := fs.String("session", "", "Session name for serial samples without one (default serial-<timestamp>)")
	dev := fs.Bool("dev", false, "Read migrations from disk instead of the embedded copy")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return err
	}

	db.DevMode = *dev
	store, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	var m serialmux.SerialMuxInterface = serialmux.NewDisabledSerialMux()
	if *port != "" {
		sm, err := serialmux.NewRealSerialMux(*port, cfg.GetSerial())
		if err != nil {
			return fmt.Errorf("failed to open serial port: %w", err)
		}
		m = sm
	}
	defer m.Close()

	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var consumer *ingest.Consumer
	if *port != "" {
		consumer = ingest.NewConsumer(m, store, ingest.ConsumerOptions{
			Session:       *session,
			FlushSize:     cfg.GetFlushSize(),
			FlushInterval: cfg.GetFlushInterval(),
		})
		log.Printf("ingesting from %s as session %q", *port, consumer.Session())
	}

	handler, err := newHandler(m, store, cfg, consumer)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor serial port: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	if consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("ingest routine failed: %v", err)
			}
			st := consumer.Stats()
			log.Printf("ingest routine terminated: stored=%d rejected=%d skipped=%d failed=%d",
				st.Stored, st.Rejected, st.Skipped, st.Failed)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              *listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("%s listening on %s", version.String("magmap"), *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
	return nil
}
