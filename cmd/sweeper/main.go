// Package main provides the batch duplicate sweeper. It scans the whole
// person population, groups duplicates by normalized name, and merges each
// group under a database advisory lock so concurrent sweeps never interleave.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/helixir/identity-resolution-service/internal/config"
	"github.com/helixir/identity-resolution-service/internal/database"
	"github.com/helixir/identity-resolution-service/internal/dedup"
	"github.com/helixir/identity-resolution-service/internal/events"
	"github.com/helixir/identity-resolution-service/internal/observability"
	"github.com/helixir/identity-resolution-service/internal/repository"
)

const metricsNamespace = "idres_sweeper"

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would be merged without changing data")
	flag.Parse()

	if err := run(*dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(dryRun bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "sweeper").Logger()
	logger.Info().Bool("dry_run", dryRun).Msg("duplicate sweep starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	// Only one sweep may run against a database at a time.
	acquired, err := db.AcquireAdvisoryLock(ctx, cfg.Dedup.AdvisoryLockKey)
	if err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		logger.Warn().
			Int64("lock_key", cfg.Dedup.AdvisoryLockKey).
			Msg("another sweep is already running, exiting")
		return nil
	}
	defer func() {
		if releaseErr := db.ReleaseAdvisoryLock(context.Background(), cfg.Dedup.AdvisoryLockKey); releaseErr != nil {
			logger.Error().Err(releaseErr).Msg("failed to release advisory lock")
		}
	}()

	metrics := observability.NewMetrics(metricsNamespace)
	store := repository.NewPgStore(db)

	var mergerEvents dedup.EventPublisher
	if cfg.Kafka.EventsEnabled && !dryRun {
		publisher := events.NewPublisher(events.Config{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.EventsTopic,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger, metrics)
		defer func() {
			if closeErr := publisher.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close event publisher")
			}
		}()
		mergerEvents = publisher
	}

	finder := dedup.NewFinder(store, logger, metrics)
	merger := dedup.NewMerger(store, mergerEvents, dedup.MergerConfig{
		GroupsPerSecond: cfg.Dedup.GroupsPerSecond,
	}, logger, metrics)

	groups, err := finder.FindGroups(ctx)
	if err != nil {
		return fmt.Errorf("find duplicate groups: %w", err)
	}
	if len(groups) == 0 {
		logger.Info().Msg("no duplicate groups found")
		return nil
	}

	results, err := merger.MergeAll(ctx, groups, dryRun)
	for _, result := range results {
		logger.Info().
			Str("primary_id", result.PrimaryID.String()).
			Int("deleted", len(result.DeletedIDs)).
			Int("reassigned_links", result.ReassignedLinks).
			Bool("dry_run", result.DryRun).
			Msg("group merged")
	}
	if err != nil {
		return fmt.Errorf("merge duplicate groups: %w", err)
	}

	logger.Info().
		Int("groups_found", len(groups)).
		Int("groups_merged", len(results)).
		Msg("duplicate sweep complete")
	return nil
}
