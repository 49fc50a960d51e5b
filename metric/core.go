package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the core sync-layer metrics shared by all components.
// Component-specific metrics (cache, poller, preview) register themselves
// through the MetricsRegistrar interface instead.
type Metrics struct {
	// Upstream request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorsTotal     *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Resilience metrics
	CircuitBreakerState prometheus.Gauge
	BackoffSeconds      prometheus.Gauge

	// Preview batching metrics
	PendingPreviews     prometheus.Gauge
	BatchesTotal        prometheus.Counter
	FallbackResolutions prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all core metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purlsync",
				Subsystem: "upstream",
				Name:      "requests_total",
				Help:      "Total number of upstream API requests",
			},
			[]string{"resource", "status"},
		),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "purlsync",
				Subsystem: "upstream",
				Name:      "request_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purlsync",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors by class",
			},
			[]string{"component", "class"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purlsync",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"resource"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "purlsync",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"resource"},
		),

		CircuitBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "purlsync",
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),

		BackoffSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "purlsync",
				Subsystem: "breaker",
				Name:      "backoff_seconds",
				Help:      "Remaining rate-limit backoff in seconds",
			},
		),

		PendingPreviews: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "purlsync",
				Subsystem: "preview",
				Name:      "pending",
				Help:      "Number of preview requests awaiting resolution",
			},
		),

		BatchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "purlsync",
				Subsystem: "preview",
				Name:      "batches_total",
				Help:      "Total number of processed preview batches",
			},
		),

		FallbackResolutions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "purlsync",
				Subsystem: "preview",
				Name:      "fallback_resolutions_total",
				Help:      "Total number of previews resolved from fallback data",
			},
		),
	}
}

// RecordRequest increments the upstream request counter
func (c *Metrics) RecordRequest(resource, status string) {
	c.RequestsTotal.WithLabelValues(resource, status).Inc()
}

// RecordRequestDuration records an upstream request duration
func (c *Metrics) RecordRequestDuration(resource string, duration time.Duration) {
	c.RequestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordError increments the error counter for a component and error class
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordCacheHit increments the cache hit counter
func (c *Metrics) RecordCacheHit(resource string) {
	c.CacheHits.WithLabelValues(resource).Inc()
}

// RecordCacheMiss increments the cache miss counter
func (c *Metrics) RecordCacheMiss(resource string) {
	c.CacheMisses.WithLabelValues(resource).Inc()
}

// RecordBreakerState updates the circuit breaker state gauge
func (c *Metrics) RecordBreakerState(state int) {
	c.CircuitBreakerState.Set(float64(state))
}

// RecordBackoff updates the remaining backoff gauge
func (c *Metrics) RecordBackoff(remaining time.Duration) {
	if remaining < 0 {
		remaining = 0
	}
	c.BackoffSeconds.Set(remaining.Seconds())
}

// RecordPendingPreviews updates the pending preview gauge
func (c *Metrics) RecordPendingPreviews(n int) {
	c.PendingPreviews.Set(float64(n))
}

// RecordBatch increments the processed batch counter
func (c *Metrics) RecordBatch() {
	c.BatchesTotal.Inc()
}

// RecordFallbackResolution increments the fallback resolution counter
func (c *Metrics) RecordFallbackResolution() {
	c.FallbackResolutions.Inc()
}
