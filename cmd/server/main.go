package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"rulegate/internal/api"
	"rulegate/internal/audit"
	"rulegate/internal/auth"
	"rulegate/internal/backup"
	"rulegate/internal/config"
	"rulegate/internal/discovery"
	"rulegate/internal/ledger"
	"rulegate/internal/orchestrator"
	"rulegate/internal/provider"
	"rulegate/internal/scheduler"
	"rulegate/internal/stateindex"
	"rulegate/internal/store"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Printf("loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	authSvc := auth.New(cfg.JWTSecret)
	providerClient := provider.NewClient(cfg.ProviderAPIBase, cfg.ProviderToken, 0)
	led := ledger.New(st)
	index := stateindex.New(st, providerClient, led)
	auditLog := audit.New(st)

	var pacer orchestrator.Pacer
	switch cfg.PacerMode {
	case config.PacerTokenBucket:
		pacer = orchestrator.NewTokenBucketPacer(cfg.PacerRatePerSecond, cfg.PacerBurst)
	default:
		pacer = orchestrator.FixedDelayPacer{Delay: cfg.BatchDelay}
	}
	orch := orchestrator.New(providerClient, auditLog, cfg.BatchSize, pacer)
	importer := discovery.New(providerClient, led, cfg.DiscoveryBatchSize, cfg.DiscoveryDelay)

	refresher := scheduler.New(index, providerClient, cfg.RefreshCron)
	if err := refresher.Start(); err != nil {
		log.Fatalf("failed to start refresh scheduler: %v", err)
	}

	server := &api.Server{
		Config:       cfg,
		Store:        st,
		Auth:         authSvc,
		Ledger:       led,
		Index:        index,
		Orchestrator: orch,
		Importer:     importer,
		Provider:     providerClient,
		Audit:        auditLog,
		Backup:       backup.New(st, cfg.DataDir, 0),
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Routes(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refresher.RunNow()

	go func() {
		log.Printf("rulegate listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
}
