package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"debtor-import/internal/config"
	"debtor-import/internal/db"
	"debtor-import/internal/logger"
	"debtor-import/internal/publish"
	"debtor-import/internal/queue"
	"debtor-import/internal/storage"
	"debtor-import/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "debtor import worker: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.App.Name+"-worker")

	if err := run(cfg); err != nil {
		log := logger.Get()
		log.Fatal().Err(err).Msg("Debtor import worker stopped")
	}
}

// run imports queued files until SIGINT or SIGTERM.
func run(cfg *config.Config) error {
	log := logger.Get()
	log.Info().
		Str("version", cfg.App.Version).
		Int("slots", cfg.Workers.Import.Count).
		Int("row_workers", cfg.Workers.Import.RowWorkers).
		Msg("Starting debtor import worker")

	database, err := db.NewConnection(cfg)
	if err != nil {
		return fmt.Errorf("open staging database: %w", err)
	}
	defer database.Close()

	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		return fmt.Errorf("connect import queue: %w", err)
	}
	defer redisClient.Close()

	uploads, err := storage.NewS3Storage(cfg)
	if err != nil {
		return fmt.Errorf("init upload storage: %w", err)
	}

	publisher, err := publish.New(cfg)
	if err != nil {
		return fmt.Errorf("init accepted record publisher: %w", err)
	}
	defer publisher.Close()

	importWorker := worker.NewImportWorker(
		cfg,
		db.NewRepository(database, db.Dialect(cfg.Database.Driver)),
		uploads,
		queue.NewConsumer(redisClient, cfg),
		queue.NewProducer(redisClient, cfg),
		publisher,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = importWorker.Start(ctx)
	importWorker.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume import queue: %w", err)
	}

	log.Info().Msg("Debtor import worker exited")
	return nil
}
