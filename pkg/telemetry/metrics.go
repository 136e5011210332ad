package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the agent. A nil *Metrics, or one
// created with Enabled=false, is a safe no-op.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram

	// Cycle metrics
	cyclesCompleted *prometheus.CounterVec

	// Phase metrics
	phaseAttempts *prometheus.CounterVec

	// Remedy metrics
	remediesApplied *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of agent runs completed",
			},
			[]string{"outcome"},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of agent runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		cyclesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_completed_total",
				Help:      "Total number of generation cycles completed",
			},
			[]string{"outcome", "failure_class"},
		),
		phaseAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_attempts_total",
				Help:      "Total number of pipeline phase attempts",
			},
			[]string{"phase", "result"},
		),
		remediesApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remedies_applied_total",
				Help:      "Total number of classifier remedies applied",
			},
			[]string{"pattern"},
		),
	}

	registry.MustRegister(
		m.runsCompleted,
		m.runDuration,
		m.cyclesCompleted,
		m.phaseAttempts,
		m.remediesApplied,
	)

	return m, nil
}

// enabled reports whether this instance collects anything.
func (m *Metrics) enabled() bool {
	return m != nil && m.config.Enabled && m.registry != nil
}

// RecordRun records a completed run with its outcome and duration.
func (m *Metrics) RecordRun(outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// RecordCycle records a completed cycle.
func (m *Metrics) RecordCycle(outcome, failureClass string) {
	if !m.enabled() {
		return
	}
	m.cyclesCompleted.WithLabelValues(outcome, failureClass).Inc()
}

// RecordPhaseAttempt records one pipeline phase attempt.
func (m *Metrics) RecordPhaseAttempt(phase string, success bool) {
	if !m.enabled() {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.phaseAttempts.WithLabelValues(phase, result).Inc()
}

// RecordRemedy records one applied classifier remedy.
func (m *Metrics) RecordRemedy(pattern string) {
	if !m.enabled() {
		return
	}
	m.remediesApplied.WithLabelValues(pattern).Inc()
}

// Handler returns an HTTP handler serving the metrics, or nil when disabled.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on the configured listen address. It blocks and is
// intended to run in its own goroutine; it returns immediately when metrics
// are disabled or no address is configured.
func (m *Metrics) Serve() error {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	return http.ListenAndServe(m.config.ListenAddress, mux)
}
