// Package middleware provides HTTP middleware for the query API.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainscope_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainscope_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainscope_http_errors_total",
			Help: "Total number of HTTP errors by type",
		},
		[]string{"type"},
	)

	// Pipeline metrics, incremented by the daemons through the helpers below.

	addressesDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainscope_addresses_discovered_total",
			Help: "Addresses discovered from Transfer logs, by network",
		},
		[]string{"network"},
	)

	logsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainscope_logs_fetched_total",
			Help: "Transfer logs fetched, by network",
		},
		[]string{"network"},
	)

	fundsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainscope_funds_updated_total",
			Help: "Holder fund refreshes completed, by network",
		},
		[]string{"network"},
	)

	rpcRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainscope_rpc_forced_rotations_total",
			Help: "Watchdog-forced RPC endpoint rotations, by network",
		},
		[]string{"network"},
	)

	batchSentinels = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainscope_batchread_sentinels_total",
			Help: "Batch-read slots filled with a sentinel after the single-address retry failed",
		},
		[]string{"network", "operation"},
	)
)

// RecordDiscoveries adds to the per-network discovery counter.
func RecordDiscoveries(network string, n int) {
	addressesDiscovered.WithLabelValues(network).Add(float64(n))
}

// RecordLogsFetched adds to the per-network log counter.
func RecordLogsFetched(network string, n int) {
	logsFetched.WithLabelValues(network).Add(float64(n))
}

// RecordFundUpdates adds to the per-network fund refresh counter.
func RecordFundUpdates(network string, n int) {
	fundsUpdated.WithLabelValues(network).Add(float64(n))
}

// RecordForcedRotation counts one watchdog-forced endpoint rotation.
func RecordForcedRotation(network string) {
	rpcRotations.WithLabelValues(network).Inc()
}

// RecordSentinels counts sentinel-filled batch-read slots.
func RecordSentinels(network, operation string, n int) {
	batchSentinels.WithLabelValues(network, operation).Add(float64(n))
}

// Metrics returns a middleware that records Prometheus metrics.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			path := normalizePath(r)
			status := strconv.Itoa(wrapped.status)

			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())

			if wrapped.status >= 400 {
				errorType := "client_error"
				if wrapped.status >= 500 {
					errorType = "server_error"
				}
				errorsTotal.WithLabelValues(errorType).Inc()
			}
		})
	}
}

// normalizePath normalizes URL paths to prevent cardinality explosion.
func normalizePath(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}

	// Fallback: collapse 0x-prefixed address segments.
	segments := strings.Split(r.URL.Path, "/")
	for i, seg := range segments {
		if len(seg) == 42 && strings.HasPrefix(seg, "0x") {
			segments[i] = "{address}"
		}
	}
	return strings.Join(segments, "/")
}
