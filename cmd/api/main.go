package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/scene.cheap/internal/api"
	"github.com/abdul-hamid-achik/scene.cheap/internal/app"
	"github.com/abdul-hamid-achik/scene.cheap/internal/config"
	"github.com/abdul-hamid-achik/scene.cheap/internal/logger"
	"github.com/abdul-hamid-achik/scene.cheap/internal/metrics"
	"github.com/abdul-hamid-achik/scene.cheap/internal/tracing"
)

const version = "1.0.0"

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

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("configuration loaded", "provider", cfg.Provider, "cache_backend", cfg.CacheBackend)

	ctx := context.Background()

	if cfg.OTelEnabled {
		shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
			ServiceName:    cfg.OTelService + "-api",
			ServiceVersion: version,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.OTelEndpoint,
			Enabled:        true,
			SampleRate:     cfg.OTelSampling,
		})
		if err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
		defer func() { _ = shutdownTracing(ctx) }()
		log.Info("tracing enabled", "endpoint", cfg.OTelEndpoint, "sample_rate", cfg.OTelSampling)
	}

	stack, err := app.New(ctx, cfg, app.Options{Role: "api"})
	if err != nil {
		return err
	}
	defer stack.Close()

	metrics.SetAppInfo(version, cfg.Environment, "api")
	stack.Health.Add("latency", metrics.LatencyCheck(2*time.Second))

	limiter := api.NewHybridRateLimiter(stack.Redis, cfg.RateLimit, cfg.RateBurst)
	defer limiter.Stop()

	router := api.NewRouter(&api.Config{
		Service:   stack.Service,
		Archive:   stack.Archive,
		Events:    stack.EventReader(),
		Health:    stack.Health,
		Limiter:   limiter,
		JWTSecret: cfg.JWTSecret,
	})

	handler := api.SecurityHeaders(metrics.HTTPMetricsMiddleware(api.Recovery(api.RequestID(api.RequestLogger(router)))))
	if cfg.OTelEnabled {
		handler = tracing.HTTPMiddleware("api")(handler)
	}

	// Streaming handlers lift the write deadline per request.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "url", fmt.Sprintf("http://localhost:%d", cfg.Port))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("forced shutdown: %w", err)
		}
		// In-flight streams were cancelled with their requests; let the resulting
		// snapshots and hooks finish.
		stack.Service.Wait()
	}

	log.Info("server stopped gracefully")
	return nil
}
