package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"debtor-import/internal/api"
	"debtor-import/internal/config"
	"debtor-import/internal/db"
	"debtor-import/internal/logger"
	"debtor-import/internal/queue"
	"debtor-import/internal/storage"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "debtor import api: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.App.Name+"-api")

	if err := run(cfg); err != nil {
		log := logger.Get()
		log.Fatal().Err(err).Msg("Debtor import API stopped")
	}
}

// run serves uploads, templates and status queries until SIGINT or SIGTERM.
func run(cfg *config.Config) error {
	log := logger.Get()
	log.Info().Str("version", cfg.App.Version).Str("db_driver", cfg.Database.Driver).Msg("Starting debtor import API")

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

	handler := api.NewHandler(
		db.NewRepository(database, db.Dialect(cfg.Database.Driver)),
		uploads,
		queue.NewProducer(redisClient, cfg),
		cfg,
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.MaxUploadSize),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Int64("max_upload_size", cfg.Server.MaxUploadSize).Msg("Accepting debtor files")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Draining in-flight uploads")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("Debtor import API exited")
	return nil
}
