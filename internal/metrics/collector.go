// Package metrics exposes debate and cache counters in Prometheus
// format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates every metric the service publishes. It
// satisfies both the scheduler's metrics sink and the semantic cache's
// recorder, so one instance is shared across the wiring.
type Collector struct {
	registry *prometheus.Registry

	// Scheduler metrics
	ActiveSessions prometheus.Gauge
	TurnsTotal     *prometheus.CounterVec
	GenerationTime prometheus.Histogram

	// Semantic cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
}

// NewCollector creates and registers all metrics on a private
// registry, keeping the process-default registry untouched.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agora_active_sessions",
				Help: "Debate sessions currently running",
			},
		),
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agora_turns_total",
				Help: "Scheduled debate turns by outcome",
			},
			[]string{"outcome"},
		),
		GenerationTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agora_generation_seconds",
				Help:    "Message generation latency in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agora_cache_hits_total",
				Help: "Total semantic cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agora_cache_misses_total",
				Help: "Total semantic cache misses",
			},
		),
	}

	c.registry.MustRegister(
		c.ActiveSessions,
		c.TurnsTotal,
		c.GenerationTime,
		c.CacheHits,
		c.CacheMisses,
	)

	return c
}

// Handler returns the HTTP handler serving the scrape endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SessionStarted increments the active session gauge.
func (c *Collector) SessionStarted() {
	c.ActiveSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (c *Collector) SessionEnded() {
	c.ActiveSessions.Dec()
}

// TurnOutcome counts a scheduled turn under its outcome label.
func (c *Collector) TurnOutcome(outcome string) {
	c.TurnsTotal.WithLabelValues(outcome).Inc()
}

// GenerationObserved records one generation latency sample.
func (c *Collector) GenerationObserved(seconds float64) {
	c.GenerationTime.Observe(seconds)
}

// CacheHit counts a semantic cache hit.
func (c *Collector) CacheHit() {
	c.CacheHits.Inc()
}

// CacheMiss counts a semantic cache miss.
func (c *Collector) CacheMiss() {
	c.CacheMisses.Inc()
}
