// Package main provides the entry point for the identity resolution service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helixir/identity-resolution-service/internal/config"
	"github.com/helixir/identity-resolution-service/internal/database"
	"github.com/helixir/identity-resolution-service/internal/dedup"
	"github.com/helixir/identity-resolution-service/internal/events"
	"github.com/helixir/identity-resolution-service/internal/ingest"
	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/repository"
	"github.com/helixir/identity-resolution-service/internal/resolver"
	httpserver "github.com/helixir/identity-resolution-service/internal/server/http"
)

const metricsNamespace = "idres"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("identity-resolution-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	metrics := observability.NewMetrics(metricsNamespace)
	store := repository.NewPgStore(db)

	// Event publishing is optional; a deployment can run without Kafka.
	var publisher *events.Publisher
	if cfg.Kafka.EventsEnabled {
		publisher = events.NewPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger, metrics)
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close event publisher")
			}
		}()
		logger.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.EventsTopic).
			Msg("event publisher connected")
	}

	// A nil *events.Publisher assigned directly would make the interface
	// value non-nil, so only assign when the publisher exists.
	var resolverEvents resolver.EventPublisher
	var mergerEvents dedup.EventPublisher
	if publisher != nil {
		resolverEvents = publisher
		mergerEvents = publisher
	}

	resolverSvc := resolver.NewService(store, resolverEvents, logger, metrics)
	finder := dedup.NewFinder(store, logger, metrics)
	merger := dedup.NewMerger(store, mergerEvents, dedup.MergerConfig{
		GroupsPerSecond: cfg.Dedup.GroupsPerSecond,
	}, logger, metrics)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}
	httpSrv := httpserver.NewServer(httpCfg, resolverSvc, finder, merger, db, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 3)

	// Start HTTP REST API server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Start the candidate listener if configured.
	var listener *ingest.Listener
	if cfg.Kafka.IngestEnabled {
		listener = ingest.NewListener(ingest.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.IngestTopic,
			GroupID: cfg.Kafka.IngestGroupID,
		}, resolverSvc, logger, metrics)
		go func() {
			if err := listener.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("candidate listener error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().Str("http_address", httpCfg.Address)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	if listener != nil {
		readyLog = readyLog.Str("ingest_topic", cfg.Kafka.IngestTopic)
	}
	readyLog.Msg("identity-resolution-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down identity-resolution-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	if listener != nil {
		if err := listener.Close(); err != nil {
			logger.Error().Err(err).Msg("candidate listener close error")
		}
	}

	logger.Info().Msg("identity-resolution-service shutdown complete")
	return nil
}
