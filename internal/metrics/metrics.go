// Package metrics provides Prometheus metrics for chemezy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Reaction cache metrics
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	SynthesisLatency prometheus.Histogram
	SynthesisErrors  *prometheus.CounterVec

	// Discovery metrics
	DiscoveriesTotal prometheus.Counter

	// Award engine metrics
	AwardEvaluations  *prometheus.CounterVec
	AwardGrants       *prometheus.CounterVec
	EventQueueDepth   prometheus.Gauge
	EventQueueDropped prometheus.Counter

	// Leaderboard metrics
	LeaderboardRebuilds      *prometheus.CounterVec
	LeaderboardInvalidations *prometheus.CounterVec

	// Storage metrics
	StorageOperations *prometheus.CounterVec
	StorageLatency    *prometheus.HistogramVec
	StorageErrors     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	// Request metrics
	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chemezy_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	m.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chemezy_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Reaction cache metrics
	m.CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chemezy_reaction_cache_hits_total",
			Help: "Total number of reaction cache hits",
		},
	)

	m.CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chemezy_reaction_cache_misses_total",
			Help: "Total number of reaction cache misses",
		},
	)

	m.SynthesisLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chemezy_synthesis_latency_seconds",
			Help:    "Outcome synthesis latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	m.SynthesisErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_synthesis_errors_total",
			Help: "Total number of failed synthesis attempts",
		},
		[]string{"stage"},
	)

	// Discovery metrics
	m.DiscoveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chemezy_discoveries_total",
			Help: "Total number of world-first discoveries recorded",
		},
	)

	// Award engine metrics
	m.AwardEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_award_evaluations_total",
			Help: "Total number of award evaluation passes",
		},
		[]string{"status"},
	)

	m.AwardGrants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_award_grants_total",
			Help: "Total number of award grants and tier upgrades",
		},
		[]string{"change"},
	)

	m.EventQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chemezy_award_event_queue_depth",
			Help: "Current depth of the award evaluation event queue",
		},
	)

	m.EventQueueDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chemezy_award_events_dropped_total",
			Help: "Total number of award events dropped due to a full queue",
		},
	)

	// Leaderboard metrics
	m.LeaderboardRebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_leaderboard_rebuilds_total",
			Help: "Total number of leaderboard view rebuilds",
		},
		[]string{"category"},
	)

	m.LeaderboardInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_leaderboard_invalidations_total",
			Help: "Total number of leaderboard view invalidations",
		},
		[]string{"category"},
	)

	// Storage metrics
	m.StorageOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"backend", "operation"},
	)

	m.StorageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chemezy_storage_latency_seconds",
			Help:    "Storage operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	m.StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chemezy_storage_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"backend", "operation"},
	)

	// Register all collectors
	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.CacheHits,
		m.CacheMisses,
		m.SynthesisLatency,
		m.SynthesisErrors,
		m.DiscoveriesTotal,
		m.AwardEvaluations,
		m.AwardGrants,
		m.EventQueueDepth,
		m.EventQueueDropped,
		m.LeaderboardRebuilds,
		m.LeaderboardInvalidations,
		m.StorageOperations,
		m.StorageLatency,
		m.StorageErrors,
	)

	// Also register the default collectors (go runtime, process info)
	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Middleware returns HTTP middleware that records request metrics.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip metrics endpoint itself
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.RequestsInFlight.Inc()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		m.RequestsInFlight.Dec()
		duration := time.Since(start).Seconds()

		// Normalize path for metrics (avoid high cardinality)
		path := normalizePath(r.URL.Path)

		m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes a URL path to reduce cardinality.
func normalizePath(path string) string {
	switch {
	case startsWith(path, "/leaderboard/") && contains(path, "/rank/"):
		return "/leaderboard/{category}/rank/{user_id}"
	case startsWith(path, "/leaderboard/"):
		return "/leaderboard/{category}"
	case startsWith(path, "/users/") && endsWith(path, "/awards"):
		return "/users/{user_id}/awards"
	case startsWith(path, "/admin/templates/"):
		return "/admin/templates/{id}"
	}
	return path
}

// String helper functions to avoid importing strings package
func startsWith(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func endsWith(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// RecordCacheAccess records a reaction cache access.
func (m *Metrics) RecordCacheAccess(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// RecordSynthesis records a synthesis attempt.
func (m *Metrics) RecordSynthesis(duration time.Duration, err error) {
	m.SynthesisLatency.Observe(duration.Seconds())
	if err != nil {
		m.SynthesisErrors.WithLabelValues("synthesize").Inc()
	}
}

// RecordDiscovery records a world-first discovery.
func (m *Metrics) RecordDiscovery() {
	m.DiscoveriesTotal.Inc()
}

// RecordEvaluation records one award evaluation pass.
func (m *Metrics) RecordEvaluation(failed bool) {
	status := "ok"
	if failed {
		status = "error"
	}
	m.AwardEvaluations.WithLabelValues(status).Inc()
}

// RecordAwardChange records a grant or tier upgrade.
func (m *Metrics) RecordAwardChange(change string) {
	m.AwardGrants.WithLabelValues(change).Inc()
}

// RecordQueueDrop records an award event dropped on a full queue.
func (m *Metrics) RecordQueueDrop() {
	m.EventQueueDropped.Inc()
}

// RecordLeaderboardRebuild records a materialized view rebuild.
func (m *Metrics) RecordLeaderboardRebuild(category string) {
	m.LeaderboardRebuilds.WithLabelValues(category).Inc()
}

// RecordLeaderboardInvalidation records a view invalidation.
func (m *Metrics) RecordLeaderboardInvalidation(category string) {
	m.LeaderboardInvalidations.WithLabelValues(category).Inc()
}

// RecordStorageOperation records a storage operation.
func (m *Metrics) RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	m.StorageOperations.WithLabelValues(backend, operation).Inc()
	m.StorageLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		m.StorageErrors.WithLabelValues(backend, operation).Inc()
	}
}
