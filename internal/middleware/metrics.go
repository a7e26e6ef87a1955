package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prism_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// RouteDecisions counts routing outcomes by tier and rationale tag.
	RouteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_route_decisions_total",
			Help: "Routing decisions by model tier and rationale",
		},
		[]string{"tier", "rationale"},
	)

	// UpstreamErrors counts provider call failures by provider.
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_upstream_errors_total",
			Help: "Upstream provider errors",
		},
		[]string{"provider"},
	)

	// DebateRuns counts completed debates by profile and trigger.
	DebateRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_debate_runs_total",
			Help: "Debate orchestrations that produced a synthesis",
		},
		[]string{"profile", "trigger"},
	)
)

// Metrics records request count and latency per route.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := NewStreamingResponseWriter(w)

		next.ServeHTTP(sw, r)

		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.StatusCode())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
