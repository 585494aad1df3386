// Package api exposes generation jobs over HTTP: JSON for job records and
// server-sent events for live frames.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdul-hamid-achik/scene.cheap/internal/archive"
	"github.com/abdul-hamid-achik/scene.cheap/internal/generation"
	"github.com/abdul-hamid-achik/scene.cheap/internal/health"
	"github.com/abdul-hamid-achik/scene.cheap/internal/stream"
)

const maxBodySize = 1 << 20

type Config struct {
	Service   *generation.Service
	Archive   *archive.Archiver
	Events    *stream.RedisReader
	Health    *health.Checker
	Limiter   Limiter
	JWTSecret string
	// Keepalive is the SSE comment interval; zero uses stream.DefaultKeepalive.
	Keepalive time.Duration
}

func NewRouter(cfg *Config) http.Handler {
	mux := http.NewServeMux()

	checker := cfg.Health
	if checker == nil {
		checker = health.NewChecker()
	}
	mux.HandleFunc("GET /health", health.HealthHandler(checker))
	mux.HandleFunc("GET /health/live", health.LivenessHandler())
	mux.Handle("GET /metrics", promhttp.Handler())

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /v1/jobs", createJobHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs", listJobsHandler(cfg))
	apiMux.HandleFunc("DELETE /v1/jobs", clearJobsHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs/{id}", getJobHandler(cfg))
	apiMux.HandleFunc("DELETE /v1/jobs/{id}", deleteJobHandler(cfg))
	apiMux.HandleFunc("POST /v1/jobs/{id}/resume", resumeJobHandler(cfg))
	apiMux.HandleFunc("POST /v1/jobs/{id}/cancel", cancelJobHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs/{id}/events", jobEventsHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs/{id}/result", jobResultHandler(cfg))

	var handler http.Handler = apiMux
	if cfg.Limiter != nil {
		handler = RateLimit(cfg.Limiter)(handler)
	}
	handler = AuthMiddleware(cfg.JWTSecret)(handler)
	mux.Handle("/v1/", handler)

	return mux
}
