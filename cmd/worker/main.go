package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/abdul-hamid-achik/job-queue/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/abdul-hamid-achik/scene.cheap/internal/app"
	"github.com/abdul-hamid-achik/scene.cheap/internal/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/health"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
	"github.com/abdul-hamid-achik/scene.cheap/internal/tracing"
	scworker "github.com/abdul-hamid-achik/scene.cheap/internal/worker"
)

const (
	version       = "1.0.0"
	evictInterval = time.Hour
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.RedisURL == "" {
		return app.ErrRedisRequired
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("configuration loaded", "provider", cfg.Provider, "cache_backend", cfg.CacheBackend)
	if cfg.CacheBackend == config.BackendMemory {
		log.Warn("memory cache backend is local to this worker; the API will not see its jobs")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.OTelEnabled {
		shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
			ServiceName:    cfg.OTelService + "-worker",
			ServiceVersion: version,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTelEndpoint,
			Enabled:        true,
			SampleRate:     cfg.OTelSampling,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	zerologger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	stack, err := app.New(ctx, cfg, app.Options{
		Role:     "worker",
		WorkerID: fmt.Sprintf("worker-%d", os.Getpid()),
	})
	if err != nil {
		return err
	}
	defer stack.Close()

	metrics.SetAppInfo(version, cfg.Environment, "worker")
	metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)

	deps := &scworker.Dependencies{
		Service: stack.Service,
		Events:  stack.EventSink,
		Store:   stack.Store,
	}

	log.Info("registering job handlers")
	registry := worker.NewRegistry()
	_ = registry.Register(scworker.JobTypeGenerate, scworker.GenerateHandler(deps))
	_ = registry.Register(scworker.JobTypeEvict, scworker.EvictHandler(deps))
	log.Info("handlers registered", "count", len(registry.Types()))

	registry.Use(
		middleware.RecoveryMiddleware(zerologger),
		middleware.LoggingMiddleware(zerologger),
		middleware.TimeoutMiddleware(cfg.JobTimeout),
		middleware.MetricsMiddleware(metrics.NewQueueCollector()),
	)

	log.Info("creating worker pool", "concurrency", cfg.WorkerConcurrency)
	workerPool := worker.NewPool(stack.Broker, registry,
		worker.WithConcurrency(cfg.WorkerConcurrency),
		worker.WithPoolQueues([]string{"default"}),
		worker.WithPoolPollInterval(time.Second),
		worker.WithShutdownTimeout(30*time.Second),
		worker.WithPoolLogger(zerologger),
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", health.HealthHandler(stack.Health))
	metricsMux.HandleFunc("/health/live", health.LivenessHandler())

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux,
	}

	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	enqueuer := scworker.NewEnqueuer(stack.Broker, stack.Redis)
	go func() {
		ticker := time.NewTicker(evictInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := enqueuer.EnqueueEviction(ctx); err != nil {
					log.Error("failed to schedule cache eviction", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	poolErr := make(chan error, 1)
	go func() {
		log.Info("starting worker pool")
		poolErr <- workerPool.Start(ctx)
	}()

	select {
	case err := <-poolErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker pool error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := workerPool.Stop(shutdownCtx); err != nil {
			log.Error("error stopping pool", "error", err)
		}
		stack.Service.Wait()

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping metrics server", "error", err)
		}

		cancel()
	}

	log.Info("worker pool stopped gracefully")
	return nil
}
