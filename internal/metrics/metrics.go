// Package metrics exposes Prometheus counters and histograms for measurement
// outcomes recorded by the verification harness and the parameter sweep.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeValue      = "value"
	OutcomeDegenerate = "degenerate"
	OutcomeContract   = "contract"
	OutcomeExecution  = "execution"
)

// Manager owns the measurement metrics. A nil *Manager is valid and records
// nothing.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	measurements    *prometheus.CounterVec
	warnings        *prometheus.CounterVec
	mismatches      *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	measureDuration *prometheus.HistogramVec
	sweepPoints     *prometheus.CounterVec
}

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace sets the metric namespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets the duration histogram buckets (seconds).
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegisterer registers the metrics on reg instead of the default
// registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		if reg != nil {
			m.registry = reg
		}
	}
}

// NewManager creates and registers the metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "bodymeasure",
		histogramBuckets: []float64{1e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2, 5e-2, 0.1, 0.5},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)
	m.measurements = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "measurements_total",
		Help:      "Measurement calls by key and outcome",
	}, []string{"key", "outcome"})
	m.warnings = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "warnings_total",
		Help:      "Warning codes attached to results, by key and code",
	}, []string{"key", "code"})
	m.mismatches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "determinism_mismatches_total",
		Help:      "Repeated calls that produced non-equivalent results",
	}, []string{"key"})
	m.fallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "fallbacks_total",
		Help:      "Results flagged as fallback",
	}, []string{"key"})
	m.measureDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "measure_duration_seconds",
		Help:      "Wall time of a single measurement call",
		Buckets:   m.histogramBuckets,
	}, []string{"key"})
	m.sweepPoints = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "sweep_points_total",
		Help:      "Sweep grid points evaluated",
	}, []string{"key"})
	return m
}

// ObserveMeasurement records one measurement call.
func (m *Manager) ObserveMeasurement(key, outcome string, warnings []string, fallback bool, d time.Duration) {
	if m == nil {
		return
	}
	m.measurements.WithLabelValues(key, outcome).Inc()
	for _, w := range warnings {
		m.warnings.WithLabelValues(key, w).Inc()
	}
	if fallback {
		m.fallbacks.WithLabelValues(key).Inc()
	}
	m.measureDuration.WithLabelValues(key).Observe(d.Seconds())
}

// ObserveMismatch records a determinism mismatch.
func (m *Manager) ObserveMismatch(key string) {
	if m == nil {
		return
	}
	m.mismatches.WithLabelValues(key).Inc()
}

// ObserveSweepPoint records one evaluated grid point.
func (m *Manager) ObserveSweepPoint(key string) {
	if m == nil {
		return
	}
	m.sweepPoints.WithLabelValues(key).Inc()
}
