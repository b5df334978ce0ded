// telemetryd ingests signed device telemetry events on :8081.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/panthersecurity/panther/pkg/config"
	"github.com/panthersecurity/panther/pkg/ingestserver"
	"github.com/panthersecurity/panther/pkg/observability"
	"github.com/panthersecurity/panther/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[telemetryd] config: %v", err)
	}

	ctx := context.Background()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "panther-telemetryd",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		Endpoint:       cfg.Observability.Endpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.Observability.Enabled,
		Insecure:       cfg.Observability.Insecure,
	})
	if err != nil {
		log.Fatalf("[telemetryd] observability: %v", err)
	}

	var events store.EventStore
	if cfg.Database.URL != "" {
		db, err := store.OpenPostgres(cfg.Database.URL)
		if err != nil {
			log.Fatalf("[telemetryd] postgres: %v", err)
		}
		defer func() { _ = db.Close() }()
		log.Println("[telemetryd] postgres: connected")

		if events, err = store.NewPostgresEventStore(db); err != nil {
			log.Fatalf("[telemetryd] event store: %v", err)
		}
	} else {
		log.Printf("[telemetryd] sqlite: %s", cfg.Telemetryd.DBPath)
		db, err := store.OpenSQLite(cfg.Telemetryd.DBPath)
		if err != nil {
			log.Fatalf("[telemetryd] sqlite: %v", err)
		}
		defer func() { _ = db.Close() }()

		if events, err = store.NewSQLiteEventStore(db); err != nil {
			log.Fatalf("[telemetryd] event store: %v", err)
		}
	}

	srv := ingestserver.New(ingestserver.Options{
		Events:   events,
		Obs:      obs,
		APIToken: cfg.Auth.APIToken,
	})

	httpServer := &http.Server{
		Addr:              cfg.Telemetryd.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[telemetryd] listening on %s", cfg.Telemetryd.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[telemetryd] server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[telemetryd] shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[telemetryd] shutdown: %v", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Printf("[telemetryd] observability shutdown: %v", err)
	}
}
