// Package metrics records conversion statistics in Prometheus form, for CI
// jobs that collect them through a node exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxbase-eu/outpack/internal/diagnostic"
)

// Metrics holds the conversion collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	conversionsTotal   *prometheus.CounterVec
	conversionDuration *prometheus.HistogramVec
	bundleSize         *prometheus.HistogramVec
	issuesTotal        *prometheus.CounterVec
	polyfillsInjected  *prometheus.CounterVec
	dependencies       *prometheus.GaugeVec
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		conversionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpack_conversions_total",
				Help: "Total number of package conversions by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		conversionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outpack_conversion_duration_seconds",
				Help:    "Conversion wall time in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"strategy"},
		),
		bundleSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outpack_bundle_size_bytes",
				Help:    "Size of generated modules in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"strategy"},
		),
		issuesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpack_issues_total",
				Help: "Compatibility issues reported by level",
			},
			[]string{"level"},
		),
		polyfillsInjected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outpack_polyfills_injected_total",
				Help: "Polyfills injected into generated modules",
			},
			[]string{"polyfill"},
		),
		dependencies: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "outpack_bundled_dependencies",
				Help: "Dependencies physically included in the last module of a package",
			},
			[]string{"package"},
		),
	}
	m.registry.MustRegister(
		m.conversionsTotal,
		m.conversionDuration,
		m.bundleSize,
		m.issuesTotal,
		m.polyfillsInjected,
		m.dependencies,
	)
	return m
}

// Conversion describes one finished run
type Conversion struct {
	Package      string
	Strategy     string
	Duration     time.Duration
	Size         int
	Issues       []diagnostic.Issue
	Polyfills    []string
	Dependencies int
	Err          error
}

// Record adds a conversion to the collectors. A nil receiver records nothing.
func (m *Metrics) Record(c Conversion) {
	if m == nil {
		return
	}
	for _, issue := range c.Issues {
		m.issuesTotal.WithLabelValues(issue.Level.String()).Inc()
	}
	if c.Err != nil {
		m.conversionsTotal.WithLabelValues(c.Strategy, "failure").Inc()
		return
	}
	m.conversionsTotal.WithLabelValues(c.Strategy, "success").Inc()
	m.conversionDuration.WithLabelValues(c.Strategy).Observe(c.Duration.Seconds())
	m.bundleSize.WithLabelValues(c.Strategy).Observe(float64(c.Size))
	for _, name := range c.Polyfills {
		m.polyfillsInjected.WithLabelValues(name).Inc()
	}
	m.dependencies.WithLabelValues(c.Package).Set(float64(c.Dependencies))
}

// Gatherer exposes the private registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteFile writes the collected metrics in the text exposition format
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
