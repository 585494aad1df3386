package tracing

import (
	"net/http"
	"regexp"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var jobIDSegment = regexp.MustCompile(`/v1/jobs/[^/]+`)

// HTTPMiddleware starts a server span per API request. Probe and scrape endpoints
// are not traced. Span names collapse the job id so event streams for different
// jobs group together.
func HTTPMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + SpanRoute(r.URL.Path)
			}),
			otelhttp.WithFilter(func(r *http.Request) bool {
				return !strings.HasPrefix(r.URL.Path, "/health") && r.URL.Path != "/metrics"
			}),
		)
	}
}

// SpanRoute replaces the job id in an API path with a placeholder.
func SpanRoute(path string) string {
	return jobIDSegment.ReplaceAllString(path, "/v1/jobs/{id}")
}
