package engine

import "fmt"

// StepStatus represents the execution status of a single pipeline step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not been considered yet.
	// Every step starts pending at pipeline start.
	StepStatusPending StepStatus = "pending"

	// StepStatusSkipped indicates the step's effect was already
	// satisfied, so it was not executed.
	StepStatusSkipped StepStatus = "skipped"

	// StepStatusRunning indicates the step is currently executing.
	StepStatusRunning StepStatus = "running"

	// StepStatusDone indicates the step completed successfully.
	StepStatusDone StepStatus = "done"

	// StepStatusFailed indicates the step failed. The pipeline halts on
	// the first failed step.
	StepStatusFailed StepStatus = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSkipped || s == StepStatusDone || s == StepStatusFailed
}

// Validate checks if the step status is valid.
func (s StepStatus) Validate() error {
	switch s {
	case StepStatusPending, StepStatusSkipped, StepStatusRunning,
		StepStatusDone, StepStatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid step status: %s", s)
	}
}

// BackendStatus is the live workload status of a deployed backend as
// reported by the deployment helper.
type BackendStatus string

const (
	// BackendStatusActive indicates the backend unit is active and ready.
	BackendStatusActive BackendStatus = "active"

	// BackendStatusWaiting indicates the unit is deployed but still
	// settling.
	BackendStatusWaiting BackendStatus = "waiting"

	// BackendStatusBlocked indicates the unit is blocked on operator
	// action.
	BackendStatusBlocked BackendStatus = "blocked"

	// BackendStatusError indicates the unit is in an error state.
	BackendStatusError BackendStatus = "error"

	// BackendStatusUnknown indicates the live status could not be
	// determined; listings carry this together with the stale flag.
	BackendStatusUnknown BackendStatus = "unknown"
)
