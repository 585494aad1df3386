package metrics

import (
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var uuidRegex = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path", "status"},
	)

	GenerationJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_generation_jobs_total",
			Help: "Generation runs by workflow and terminal outcome",
		},
		[]string{"workflow", "outcome"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenecheap_generation_duration_seconds",
			Help:    "Wall time of one generation run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"workflow", "outcome"},
	)

	ActiveGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scenecheap_active_generations",
			Help: "Generation runs currently in progress",
		},
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_batches_total",
			Help: "Scene batches by source (provider or cache) and status",
		},
		[]string{"source", "status"},
	)

	ScenesGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scenecheap_scenes_generated_total",
			Help: "Scenes appended to jobs",
		},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenecheap_provider_call_duration_seconds",
			Help:    "Provider call latency including retries",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"phase", "status"},
	)

	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_provider_retries_total",
			Help: "Provider call retries by phase and error code",
		},
		[]string{"phase", "code"},
	)

	ProviderTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_provider_tokens_total",
			Help: "Tokens consumed by phase and direction",
		},
		[]string{"phase", "direction"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scenecheap_provider_breaker_state",
			Help: "1 for the current provider circuit breaker state",
		},
		[]string{"state"},
	)

	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_cache_operations_total",
			Help: "Job cache operations",
		},
		[]string{"backend", "operation", "status"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenecheap_cache_operation_duration_seconds",
			Help:    "Job cache operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "operation"},
	)

	CacheEvictedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scenecheap_cache_evicted_total",
			Help: "Expired job records physically removed",
		},
	)

	StreamFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_stream_frames_total",
			Help: "Stream frames emitted by kind",
		},
		[]string{"kind"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	StorageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_bytes_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed",
		},
		[]string{"type", "status"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_processing_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"type", "stage"},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_active_jobs",
			Help: "Number of jobs currently being processed by workers",
		},
	)

	WorkerPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_size",
			Help: "Size of the worker pool",
		},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "environment", "service"},
	)

	AppUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_up",
			Help: "Application is up and running",
		},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_webhook_deliveries_total",
			Help: "Total webhook deliveries by status",
		},
		[]string{"status"},
	)

	WebhookDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenecheap_webhook_delivery_duration_seconds",
			Help:    "Webhook delivery duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenecheap_rate_limit_hits_total",
			Help: "Requests rejected by the API rate limiter",
		},
		[]string{"backend"},
	)
)

func NormalizePath(path string) string {
	return uuidRegex.ReplaceAllString(path, ":id")
}

func RecordGeneration(workflow, outcome string, durationSeconds float64) {
	GenerationJobsTotal.WithLabelValues(workflow, outcome).Inc()
	GenerationDuration.WithLabelValues(workflow, outcome).Observe(durationSeconds)
}

func RecordBatch(source, status string, scenes int) {
	BatchesTotal.WithLabelValues(source, status).Inc()
	if scenes > 0 {
		ScenesGeneratedTotal.Add(float64(scenes))
	}
}

func RecordProviderCall(phase, status string, durationSeconds float64, promptTokens, outputTokens int) {
	ProviderCallDuration.WithLabelValues(phase, status).Observe(durationSeconds)
	if promptTokens > 0 {
		ProviderTokensTotal.WithLabelValues(phase, "prompt").Add(float64(promptTokens))
	}
	if outputTokens > 0 {
		ProviderTokensTotal.WithLabelValues(phase, "output").Add(float64(outputTokens))
	}
}

func RecordProviderRetry(phase, code string) {
	ProviderRetriesTotal.WithLabelValues(phase, code).Inc()
}

// SetBreakerState marks state as current and clears the others.
func SetBreakerState(state string) {
	for _, s := range []string{"closed", "open", "half_open"} {
		v := 0.0
		if s == state {
			v = 1
		}
		BreakerState.WithLabelValues(s).Set(v)
	}
}

func RecordCacheOperation(backend, operation, status string, durationSeconds float64) {
	CacheOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	CacheOperationDuration.WithLabelValues(backend, operation).Observe(durationSeconds)
}

func RecordFrame(kind string) {
	StreamFramesTotal.WithLabelValues(kind).Inc()
}

func RecordJobEnqueued(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func SetAppInfo(version, environment, service string) {
	AppInfo.WithLabelValues(version, environment, service).Set(1)
	AppUp.Set(1)
}

func SetWorkerPoolSize(size int) {
	WorkerPoolSize.Set(float64(size))
}

func RecordWebhookDelivery(status string, durationSeconds float64) {
	WebhookDeliveriesTotal.WithLabelValues(status).Inc()
	WebhookDeliveryDuration.Observe(durationSeconds)
}

func RecordRateLimitHit(backend string) {
	RateLimitHits.WithLabelValues(backend).Inc()
}
