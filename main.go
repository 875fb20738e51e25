package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/config"
	"github.com/cyderes/wod-ingestion-service/internal/idempotency"
	"github.com/cyderes/wod-ingestion-service/internal/ingestion"
	"github.com/cyderes/wod-ingestion-service/internal/logging"
	"github.com/cyderes/wod-ingestion-service/internal/objectstore"
	"github.com/cyderes/wod-ingestion-service/internal/server"
	"github.com/cyderes/wod-ingestion-service/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := logging.Logger()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log := logging.Component("main")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("type", cfg.Storage.Type).Msg("failed to initialize storage")
	}
	defer store.Close()

	objects, err := objectstore.NewObjectStore(cfg.ObjectStore)
	if err != nil {
		log.Fatal().Err(err).Str("type", cfg.ObjectStore.Type).Msg("failed to initialize object store")
	}

	idemStore, err := idempotency.NewStore(ctx, cfg.Idempotency)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Idempotency.Backend).Msg("failed to initialize idempotency store")
	}
	guard := idempotency.NewGuard(idemStore,
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLease(cfg.Idempotency.Lease),
	)

	// Initialize ingestion service
	ingestor := ingestion.NewService(cfg.Ingestion, cfg.ObjectStore, store, objects, guard)

	// Initialize HTTP server for API endpoints
	httpServer := server.NewServer(cfg.Server, ingestor)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting HTTP server")
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Start ingestion service
	go func() {
		log.Info().Dur("interval", cfg.Ingestion.Interval).Msg("starting WOD ingestion service")
		if err := ingestor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("ingestion service error")
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info().Msg("shutdown signal received, gracefully shutting down")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown services
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancel() // Cancel ingestion context
	log.Info().Msg("shutdown complete")
}
