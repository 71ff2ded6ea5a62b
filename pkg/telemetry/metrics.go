package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for fact collection.
type Metrics struct {
	config MetricsConfig

	// Collection metrics
	collections        *prometheus.CounterVec
	collectionDuration *prometheus.HistogramVec

	// Plugin metrics
	pluginRuns        *prometheus.CounterVec
	pluginDuration    *prometheus.HistogramVec
	pluginsDiscovered *prometheus.GaugeVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		collections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collections_total",
				Help:      "Total number of full fact collections",
			},
			[]string{"status"},
		),
		collectionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collection_duration_seconds",
				Help:      "Duration of full fact collections in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		pluginRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plugin_runs_total",
				Help:      "Total number of plugin executions",
			},
			[]string{"generation", "status"},
		),
		pluginDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plugin_duration_seconds",
				Help:      "Duration of plugin executions in seconds",
				Buckets:   buckets,
			},
			[]string{"generation"},
		),
		pluginsDiscovered: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "plugins_discovered",
				Help:      "Number of plugins known to the engine",
			},
			[]string{"generation"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of engine errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.collections,
		m.collectionDuration,
		m.pluginRuns,
		m.pluginDuration,
		m.pluginsDiscovered,
		m.errorsByKind,
	)

	return m, nil
}

// RecordCollection records a completed full collection.
func (m *Metrics) RecordCollection(status string, duration time.Duration) {
	if m == nil || m.collections == nil {
		return
	}
	m.collections.WithLabelValues(status).Inc()
	m.collectionDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordPluginRun records one plugin execution.
func (m *Metrics) RecordPluginRun(generation, status string, duration time.Duration) {
	if m == nil || m.pluginRuns == nil {
		return
	}
	m.pluginRuns.WithLabelValues(generation, status).Inc()
	m.pluginDuration.WithLabelValues(generation).Observe(duration.Seconds())
}

// SetPluginsDiscovered sets the number of known plugins of a generation.
func (m *Metrics) SetPluginsDiscovered(generation string, count int) {
	if m == nil || m.pluginsDiscovered == nil {
		return
	}
	m.pluginsDiscovered.WithLabelValues(generation).Set(float64(count))
}

// RecordError records an engine error by kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Registry returns the underlying registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current exposition to the configured textfile.
// It does nothing when metrics are disabled or no textfile is configured.
func (m *Metrics) WriteTextfile() error {
	if m == nil || m.registry == nil || m.config.Textfile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(m.config.Textfile, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
