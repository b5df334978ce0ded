// policyd serves policy distribution, version history, and CI report
// intake on :8082.
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

	"github.com/panthersecurity/panther/pkg/archive"
	"github.com/panthersecurity/panther/pkg/audit"
	"github.com/panthersecurity/panther/pkg/config"
	"github.com/panthersecurity/panther/pkg/observability"
	"github.com/panthersecurity/panther/pkg/policyserver"
	"github.com/panthersecurity/panther/pkg/store"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[policyd] config: %v", err)
	}

	ctx := context.Background()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "panther-policyd",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		Endpoint:       cfg.Observability.Endpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.Observability.Enabled,
		Insecure:       cfg.Observability.Insecure,
	})
	if err != nil {
		log.Fatalf("[policyd] observability: %v", err)
	}

	var (
		policies store.PolicyStore
		reports  store.ReportStore
	)
	if cfg.Database.URL != "" {
		db, err := store.OpenPostgres(cfg.Database.URL)
		if err != nil {
			log.Fatalf("[policyd] postgres: %v", err)
		}
		defer func() { _ = db.Close() }()
		log.Println("[policyd] postgres: connected")

		if policies, err = store.NewPostgresPolicyStore(db); err != nil {
			log.Fatalf("[policyd] policy store: %v", err)
		}
		if reports, err = store.NewPostgresReportStore(db); err != nil {
			log.Fatalf("[policyd] report store: %v", err)
		}
	} else {
		log.Printf("[policyd] sqlite: %s", cfg.Policyd.DBPath)
		db, err := store.OpenSQLite(cfg.Policyd.DBPath)
		if err != nil {
			log.Fatalf("[policyd] sqlite: %v", err)
		}
		defer func() { _ = db.Close() }()

		if policies, err = store.NewSQLitePolicyStore(db); err != nil {
			log.Fatalf("[policyd] policy store: %v", err)
		}
		if reports, err = store.NewSQLiteReportStore(db); err != nil {
			log.Fatalf("[policyd] report store: %v", err)
		}
	}

	var cache store.PolicyCache
	if cfg.Cache.Enabled {
		redis := store.NewRedisPolicyCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, cfg.Cache.TTL)
		defer func() { _ = redis.Close() }()
		cache = redis
		log.Printf("[policyd] policy cache: redis at %s", cfg.Cache.Addr)
	}

	var archiveStore archive.Store
	if cfg.Archive.Backend != "" {
		archiveStore, err = archive.New(ctx, archive.Config{
			Backend:  cfg.Archive.Backend,
			Dir:      cfg.Archive.Dir,
			Bucket:   cfg.Archive.Bucket,
			Prefix:   cfg.Archive.Prefix,
			Endpoint: cfg.Archive.Endpoint,
			Region:   cfg.Archive.Region,
		})
		if err != nil {
			log.Fatalf("[policyd] archive: %v", err)
		}
		log.Printf("[policyd] report archive: %s", cfg.Archive.Backend)
	}

	var verifyKey []byte
	if cfg.Policyd.VerifyKey != "" {
		verifyKey = []byte(cfg.Policyd.VerifyKey)
		log.Println("[policyd] policy signature verification: enabled")
	}

	srv := policyserver.New(policyserver.Options{
		Policies:  policies,
		Reports:   reports,
		Cache:     cache,
		Archive:   archiveStore,
		Audit:     audit.NewLogger(),
		Obs:       obs,
		APIToken:  cfg.Auth.APIToken,
		VerifyKey: verifyKey,
		SeedFile:  cfg.Policyd.SeedFile,
	})

	if err := srv.Seed(ctx); err != nil {
		log.Fatalf("[policyd] seed: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Policyd.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[policyd] listening on %s", cfg.Policyd.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[policyd] server: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[policyd] shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[policyd] shutdown: %v", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Printf("[policyd] observability shutdown: %v", err)
	}
}
