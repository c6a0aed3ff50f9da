// Package metrics exposes calculation-run collectors on a private
// prometheus registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"landed-cost/internal/errors"
)

const namespace = "landedcost"

// Collector groups the run metrics. A nil *Collector is valid and records
// nothing.
type Collector struct {
	registry *prometheus.Registry

	rulesApplied   *prometheus.CounterVec
	warnings       *prometheus.CounterVec
	cacheHits      prometheus.Counter
	cycleIters     prometheus.Histogram
	phaseDurations *prometheus.HistogramVec
	records        prometheus.Gauge
}

// New creates a collector with its own registry
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		rulesApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_applied_total",
			Help:      "Rule applications to cost records, by rule kind.",
		}, []string{"kind"}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Data-gap and convergence warnings, by kind.",
		}, []string{"kind"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explosion_cache_hits_total",
			Help:      "BOM explosion cache hits.",
		}),
		cycleIters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_iterations",
			Help:      "Fixed-point iterations per resolved cycle.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		phaseDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Duration of calculation phases.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"phase"}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost_records",
			Help:      "Cost records held after the last run.",
		}),
	}
	c.registry.MustRegister(c.rulesApplied, c.warnings, c.cacheHits, c.cycleIters, c.phaseDurations, c.records)
	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RuleApplied counts one rule application
func (c *Collector) RuleApplied(kind string) {
	if c == nil {
		return
	}
	c.rulesApplied.WithLabelValues(kind).Inc()
}

// Warning counts one warning
func (c *Collector) Warning(kind string) {
	if c == nil {
		return
	}
	c.warnings.WithLabelValues(kind).Inc()
}

// CacheHits adds explosion cache hits
func (c *Collector) CacheHits(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cacheHits.Add(float64(n))
}

// CycleIterations observes one cycle resolution
func (c *Collector) CycleIterations(n int) {
	if c == nil {
		return
	}
	c.cycleIters.Observe(float64(n))
}

// Records sets the record gauge
func (c *Collector) Records(n int) {
	if c == nil {
		return
	}
	c.records.Set(float64(n))
}

// Phase starts timing a phase; call the returned func when it ends
func (c *Collector) Phase(name string) func() {
	if c == nil {
		return func() {}
	}
	timer := prometheus.NewTimer(c.phaseDurations.WithLabelValues(name))
	return func() { timer.ObserveDuration() }
}

// ObservePhase records an already measured phase duration
func (c *Collector) ObservePhase(name string, d time.Duration) {
	if c == nil {
		return
	}
	c.phaseDurations.WithLabelValues(name).Observe(d.Seconds())
}

// WriteTextfile writes the registry in text exposition format, for the
// node_exporter textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(errors.TypeInternal, "failed to write metrics textfile", err).
			WithContext("path", path)
	}
	return nil
}
