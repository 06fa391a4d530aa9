package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the orchestration engine.
type Metrics struct {
	config MetricsConfig

	// Pipeline metrics
	pipelinesCompleted *prometheus.CounterVec
	pipelineDuration   *prometheus.HistogramVec

	// Step metrics
	stepsExecuted *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec

	// Deployer boundary metrics
	deployerCalls  *prometheus.CounterVec
	deployerErrors *prometheus.CounterVec

	// Registration store metrics
	registrations prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
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

		pipelinesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipelines_completed_total",
				Help:      "Total number of pipeline runs completed",
			},
			[]string{"pipeline", "status"},
		),
		pipelineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pipeline", "status"},
		),
		stepsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_executed_total",
				Help:      "Total number of steps executed",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step execution in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"step"},
		),
		deployerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployer_calls_total",
				Help:      "Total number of deployment helper calls",
			},
			[]string{"operation"},
		),
		deployerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployer_errors_total",
				Help:      "Total number of deployment helper call failures",
			},
			[]string{"operation"},
		),
		registrations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "registrations",
				Help:      "Number of registered storage backends",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.pipelinesCompleted,
		m.pipelineDuration,
		m.stepsExecuted,
		m.stepDuration,
		m.deployerCalls,
		m.deployerErrors,
		m.registrations,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}

	return m, nil
}

// PipelineCompleted records a completed pipeline run.
func (m *Metrics) PipelineCompleted(pipeline, status string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.pipelinesCompleted.WithLabelValues(pipeline, status).Inc()
	m.pipelineDuration.WithLabelValues(pipeline, status).Observe(d.Seconds())
}

// StepExecuted records a step reaching a terminal status.
func (m *Metrics) StepExecuted(step, status string, d time.Duration) {
	if m.registry == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(step, status).Inc()
	if d > 0 {
		m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
	}
}

// DeployerCall records a deployment helper boundary call.
func (m *Metrics) DeployerCall(operation string, err error) {
	if m.registry == nil {
		return
	}
	m.deployerCalls.WithLabelValues(operation).Inc()
	if err != nil {
		m.deployerErrors.WithLabelValues(operation).Inc()
	}
}

// SetRegistrations records the current number of registered backends.
func (m *Metrics) SetRegistrations(n int) {
	if m.registry == nil {
		return
	}
	m.registrations.Set(float64(n))
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
