package engine

import (
	"context"
	"errors"
	"testing"
)

// fakeStep is a scriptable step for pipeline tests.
type fakeStep struct {
	name     string
	skip     bool
	skipErr  error
	runErr   error
	skipped  int
	executed int
}

func (s *fakeStep) Name() string { return s.name }

func (s *fakeStep) Skip(ctx context.Context, sc *StepContext) (bool, error) {
	s.skipped++
	return s.skip, s.skipErr
}

func (s *fakeStep) Run(ctx context.Context, sc *StepContext) error {
	s.executed++
	return s.runErr
}

func newContext() *StepContext {
	return &StepContext{Name: "hitachi-vsp"}
}

func TestPipelineRunsAllSteps(t *testing.T) {
	first := &fakeStep{name: "first"}
	second := &fakeStep{name: "second"}
	p := NewPipeline("deploy", []Step{first, second})

	report, err := p.Run(context.Background(), newContext())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.executed != 1 || second.executed != 1 {
		t.Errorf("executions = %d/%d, want 1/1", first.executed, second.executed)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(report.Results))
	}
	for _, r := range report.Results {
		if r.Status != StepStatusDone {
			t.Errorf("step %s status = %s, want %s", r.Name, r.Status, StepStatusDone)
		}
	}
	if report.RunID == "" {
		t.Error("report missing run id")
	}
	if report.CompletedAt.Before(report.StartedAt) {
		t.Error("completed before started")
	}
}

func TestPipelineSkipsSatisfiedSteps(t *testing.T) {
	done := &fakeStep{name: "deploy-unit", skip: true}
	after := &fakeStep{name: "integrate"}
	p := NewPipeline("deploy", []Step{done, after})

	sc := newContext()
	report, err := p.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done.executed != 0 {
		t.Error("skipped step must not run")
	}
	if after.executed != 1 {
		t.Error("later step must still run")
	}
	if report.Results[0].Status != StepStatusSkipped {
		t.Errorf("status = %s, want %s", report.Results[0].Status, StepStatusSkipped)
	}
	if sc.Statuses["deploy-unit"] != StepStatusSkipped {
		t.Errorf("context status = %s, want %s", sc.Statuses["deploy-unit"], StepStatusSkipped)
	}
	if sc.Statuses["integrate"] != StepStatusDone {
		t.Errorf("context status = %s, want %s", sc.Statuses["integrate"], StepStatusDone)
	}
}

func TestPipelineHaltsOnFirstFailure(t *testing.T) {
	boom := NewDeploymentError("hook failed", nil)
	first := &fakeStep{name: "deploy-unit", runErr: boom}
	second := &fakeStep{name: "integrate"}
	third := &fakeStep{name: "persist-registration"}
	p := NewPipeline("deploy", []Step{first, second, third})

	sc := newContext()
	report, err := p.Run(context.Background(), sc)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsDeploymentFailure(err) {
		t.Errorf("error class lost: %v", err)
	}
	if second.skipped != 0 || second.executed != 0 || third.executed != 0 {
		t.Error("steps after failure must not be probed or run")
	}

	if len(report.Results) != 3 {
		t.Fatalf("results = %d, want 3", len(report.Results))
	}
	if report.Results[0].Status != StepStatusFailed {
		t.Errorf("failed step status = %s", report.Results[0].Status)
	}
	if report.Results[0].Error == "" {
		t.Error("failed step missing error message")
	}
	for _, r := range report.Results[1:] {
		if r.Status != StepStatusPending {
			t.Errorf("step %s status = %s, want %s", r.Name, r.Status, StepStatusPending)
		}
	}
	if sc.Statuses["integrate"] != StepStatusPending {
		t.Errorf("context status = %s, want %s", sc.Statuses["integrate"], StepStatusPending)
	}
}

func TestPipelineHaltsOnSkipProbeFailure(t *testing.T) {
	probe := &fakeStep{name: "check-not-exists", skipErr: NewTransientError("store unavailable", nil)}
	after := &fakeStep{name: "deploy-unit"}
	p := NewPipeline("deploy", []Step{probe, after})

	_, err := p.Run(context.Background(), newContext())
	if !IsTransient(err) {
		t.Fatalf("error = %v, want transient", err)
	}
	if probe.executed != 0 {
		t.Error("step must not run after its probe failed")
	}
	if after.executed != 0 {
		t.Error("later step must not run")
	}
}

func TestPipelineAttachesErrorContext(t *testing.T) {
	first := &fakeStep{name: "deploy-unit", runErr: NewConflictError("application exists", nil)}
	p := NewPipeline("deploy", []Step{first})

	_, err := p.Run(context.Background(), newContext())
	var classified *Error
	if !errors.As(err, &classified) {
		t.Fatalf("error = %v, want classified", err)
	}
	if classified.Backend != "hitachi-vsp" {
		t.Errorf("backend = %q", classified.Backend)
	}
	if classified.Step != "deploy-unit" {
		t.Errorf("step = %q", classified.Step)
	}
}

func TestPipelineWrapsUnclassifiedErrors(t *testing.T) {
	cause := errors.New("exit status 1")
	first := &fakeStep{name: "deploy-unit", runErr: cause}
	p := NewPipeline("deploy", []Step{first})

	_, err := p.Run(context.Background(), newContext())
	if !IsDeploymentFailure(err) {
		t.Errorf("error = %v, want deployment failure", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not preserved")
	}
}

func TestPipelinePreservesCallerRunID(t *testing.T) {
	p := NewPipeline("deploy", []Step{&fakeStep{name: "only"}})
	sc := newContext()
	sc.RunID = "resume-42"

	report, err := p.Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.RunID != "resume-42" {
		t.Errorf("run id = %q, want resume-42", report.RunID)
	}
}

func TestPipelineStepNames(t *testing.T) {
	p := NewPipeline("deploy", []Step{
		&fakeStep{name: "validate-config"},
		&fakeStep{name: "deploy-unit"},
	})
	names := p.Steps()
	if len(names) != 2 || names[0] != "validate-config" || names[1] != "deploy-unit" {
		t.Errorf("names = %v", names)
	}
}
