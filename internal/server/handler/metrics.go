package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sentinelTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_transitions_total",
		Help: "Total committed state transitions by action.",
	}, []string{"action"})

	sentinelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	sentinelRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	sentinelLedgerEntriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_ledger_entries_total",
		Help: "Total audit/governance ledger pairs appended.",
	})

	sentinelProofPacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_proof_packs_total",
		Help: "Total proof packs sealed.",
	})

	sentinelStreamSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_stream_subscribers",
		Help: "Current live-feed subscriber count.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		sentinelRequestsTotal.WithLabelValues(method, path, status).Inc()
		sentinelRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransition records a committed state transition.
func RecordTransition(action string) {
	sentinelTransitionsTotal.WithLabelValues(action).Inc()
	sentinelLedgerEntriesTotal.Inc()
}

// RecordProofPack records a sealed proof pack.
func RecordProofPack() {
	sentinelProofPacksTotal.Inc()
}

// SetStreamSubscribers sets the live-feed subscriber gauge.
func SetStreamSubscribers(n int) {
	sentinelStreamSubscribers.Set(float64(n))
}
