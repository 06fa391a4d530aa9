package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/overcast-cloud/backendctl/pkg/telemetry"
)

// Step is an ordered, idempotent unit of work in a pipeline.
type Step interface {
	// Name returns the step name used in statuses and reports.
	Name() string

	// Skip reports whether the step's effect is already satisfied. It
	// is a pure idempotency probe against live or persisted state and
	// must have no side effects.
	Skip(ctx context.Context, sc *StepContext) (bool, error)

	// Run executes the step against the external systems reachable
	// through the step context.
	Run(ctx context.Context, sc *StepContext) error
}

// StepResult records the outcome of one step in a pipeline run.
type StepResult struct {
	// Name is the step name.
	Name string `json:"name"`

	// Status is the terminal status of the step.
	Status StepStatus `json:"status"`

	// Duration is how long the step ran; zero for skipped steps.
	Duration time.Duration `json:"duration"`

	// Error is the failure message for a failed step.
	Error string `json:"error,omitempty"`
}

// Report summarizes a pipeline run.
type Report struct {
	// RunID identifies the pipeline invocation.
	RunID string `json:"run_id"`

	// Pipeline is the pipeline name.
	Pipeline string `json:"pipeline"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`

	// Results holds one entry per step, in execution order. Steps after
	// the first failure stay pending.
	Results []StepResult `json:"results"`
}

// Pipeline executes an ordered list of steps against a shared step
// context. Execution is synchronous and single-threaded per invocation;
// on the first failed step the pipeline halts immediately. No
// compensating rollback of prior done steps is performed: applied
// effects stay in place and a later invocation resumes through the skip
// probes.
type Pipeline struct {
	name    string
	steps   []Step
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// PipelineOption configures a pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// NewPipeline creates a pipeline with the given ordered steps.
func NewPipeline(name string, steps []Step, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		name:   name,
		steps:  steps,
		logger: zerolog.Nop(),
		tracer: noop.NewTracerProvider().Tracer("engine"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Steps returns the ordered step names of the pipeline.
func (p *Pipeline) Steps() []string {
	names := make([]string, 0, len(p.steps))
	for _, s := range p.steps {
		names = append(names, s.Name())
	}
	return names
}

// Run executes the pipeline. The returned report always covers every
// step; the returned error is the first step failure, nil on success.
func (p *Pipeline) Run(ctx context.Context, sc *StepContext) (*Report, error) {
	if sc.RunID == "" {
		sc.RunID = uuid.New().String()
	}
	if sc.Statuses == nil {
		sc.Statuses = make(map[string]StepStatus, len(p.steps))
	}
	for _, step := range p.steps {
		sc.Statuses[step.Name()] = StepStatusPending
	}

	report := &Report{
		RunID:     sc.RunID,
		Pipeline:  p.name,
		StartedAt: time.Now(),
	}

	ctx, span := p.tracer.Start(ctx, "pipeline."+p.name,
		trace.WithAttributes(
			attribute.String("backend", sc.Name),
			attribute.String("run_id", sc.RunID),
		))
	defer span.End()

	logger := p.logger.With().
		Str("pipeline", p.name).
		Str("backend", sc.Name).
		Str("run_id", sc.RunID).
		Logger()

	var failure error
	for _, step := range p.steps {
		if failure != nil {
			report.Results = append(report.Results, StepResult{
				Name:   step.Name(),
				Status: StepStatusPending,
			})
			continue
		}

		result, err := p.runStep(ctx, logger, step, sc)
		report.Results = append(report.Results, result)
		if err != nil {
			failure = err
		}
	}

	report.CompletedAt = time.Now()
	if p.metrics != nil {
		status := "succeeded"
		if failure != nil {
			status = "failed"
		}
		p.metrics.PipelineCompleted(p.name, status, report.CompletedAt.Sub(report.StartedAt))
	}
	if failure != nil {
		span.SetStatus(codes.Error, failure.Error())
	}
	return report, failure
}

func (p *Pipeline) runStep(ctx context.Context, logger zerolog.Logger, step Step, sc *StepContext) (StepResult, error) {
	name := step.Name()
	ctx, span := p.tracer.Start(ctx, "step."+name)
	defer span.End()

	skip, err := step.Skip(ctx, sc)
	if err != nil {
		sc.Statuses[name] = StepStatusFailed
		err = p.attach(err, sc, name)
		logger.Error().Err(err).Str("step", name).Msg("Skip probe failed")
		span.SetStatus(codes.Error, err.Error())
		p.recordStep(name, StepStatusFailed, 0)
		return StepResult{Name: name, Status: StepStatusFailed, Error: err.Error()}, err
	}
	if skip {
		sc.Statuses[name] = StepStatusSkipped
		logger.Debug().Str("step", name).Msg("Step skipped, already satisfied")
		p.recordStep(name, StepStatusSkipped, 0)
		return StepResult{Name: name, Status: StepStatusSkipped}, nil
	}

	sc.Statuses[name] = StepStatusRunning
	logger.Info().Str("step", name).Msg("Running step")
	started := time.Now()
	err = step.Run(ctx, sc)
	elapsed := time.Since(started)

	if err != nil {
		sc.Statuses[name] = StepStatusFailed
		err = p.attach(err, sc, name)
		logger.Error().Err(err).Str("step", name).Dur("duration", elapsed).Msg("Step failed")
		span.SetStatus(codes.Error, err.Error())
		p.recordStep(name, StepStatusFailed, elapsed)
		return StepResult{
			Name:     name,
			Status:   StepStatusFailed,
			Duration: elapsed,
			Error:    err.Error(),
		}, err
	}

	sc.Statuses[name] = StepStatusDone
	logger.Info().Str("step", name).Dur("duration", elapsed).Msg("Step done")
	p.recordStep(name, StepStatusDone, elapsed)
	return StepResult{Name: name, Status: StepStatusDone, Duration: elapsed}, nil
}

func (p *Pipeline) recordStep(name string, status StepStatus, d time.Duration) {
	if p.metrics != nil {
		p.metrics.StepExecuted(name, string(status), d)
	}
}

// attach adds backend and step context to classified errors that lack
// it; unclassified errors are wrapped as deployment failures.
func (p *Pipeline) attach(err error, sc *StepContext, step string) error {
	var e *Error
	if errors.As(err, &e) {
		if e.Backend == "" {
			e.Backend = sc.Name
		}
		if e.Step == "" {
			e.Step = step
		}
		return err
	}
	return NewDeploymentError("step failed", err).WithBackend(sc.Name).WithStep(step)
}
