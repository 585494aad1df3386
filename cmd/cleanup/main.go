package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/app"
	"github.com/abdul-hamid-achik/scene.cheap/internal/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("starting cleanup job", "cache_backend", cfg.CacheBackend)
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	stack, err := app.New(ctx, cfg, app.Options{Role: "cleanup", SkipProvider: true})
	if err != nil {
		return err
	}
	defer stack.Close()

	evicted, err := worker.RunEviction(logger.WithLogger(ctx, log), stack.Store)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	log.Info("cleanup completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"jobs_evicted", evicted,
	)
	return nil
}
