package engine

import (
	"time"

	"github.com/juju/clock"
)

// BackendInfo is the derived view of a backend instance, combining the
// persisted registration record with a best-effort live status query.
type BackendInfo struct {
	// Name is the unique, immutable backend instance name.
	Name string `json:"name"`

	// Type is the backend type tag.
	Type string `json:"type"`

	// Principal is the principal volume application.
	Principal string `json:"principal"`

	// ModelUUID is the model the backend is deployed in.
	ModelUUID string `json:"model-uuid"`

	// Charm is the charm reported by the live deployment, when known.
	Charm string `json:"charm,omitempty"`

	// Status is the live workload status; unknown when the live query
	// failed.
	Status BackendStatus `json:"status"`

	// Stale marks info served from persisted data only, because the
	// live status query failed.
	Stale bool `json:"stale,omitempty"`

	// Config is the persisted configuration snapshot with credential
	// literals masked.
	Config map[string]string `json:"config,omitempty"`
}

// RetryPolicy bounds the readiness wait: a fixed number of polling
// attempts separated by a backoff interval. The policy always
// terminates, either on success or on exhausting the budget.
type RetryPolicy struct {
	// Attempts is the maximum number of polling attempts.
	Attempts int

	// Delay is the interval between attempts.
	Delay time.Duration

	// BackoffFunc optionally grows the delay per attempt; nil keeps the
	// interval fixed.
	BackoffFunc func(delay time.Duration, attempt int) time.Duration

	// Clock drives the waits; nil means the wall clock. Tests inject a
	// fake clock to make the bound deterministic.
	Clock clock.Clock
}

// DefaultRetryPolicy matches the charm deployment timeout used by the
// principal volume service: 240 attempts at 5s is 20 minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 240,
		Delay:    5 * time.Second,
	}
}

// StepContext carries the per-invocation data a pipeline run operates
// on. It is owned exclusively by one pipeline run and never shared
// across concurrent invocations; the deployer and store handles it
// holds are the only shared resources.
type StepContext struct {
	// RunID identifies this pipeline invocation.
	RunID string

	// Name is the target backend instance name.
	Name string

	// Backend is the resolved backend plugin.
	Backend Backend

	// Config is the validated desired configuration. Nil on the remove
	// path.
	Config BackendConfig

	// Principal is the principal volume application to integrate with.
	Principal string

	// PrincipalEndpoint is the relation endpoint on the principal side.
	PrincipalEndpoint string

	// ModelUUID is the target model.
	ModelUUID string

	// Deployer executes remote operations.
	Deployer Deployer

	// Store persists registration records.
	Store RegistrationStore

	// WaitPolicy bounds the readiness wait.
	WaitPolicy RetryPolicy

	// Statuses accumulates the status of each step, keyed by step name.
	// The pipeline owns all writes.
	Statuses map[string]StepStatus
}

// Status returns the recorded status of a step, or pending if the step
// has not been reached.
func (sc *StepContext) Status(step string) StepStatus {
	if s, ok := sc.Statuses[step]; ok {
		return s
	}
	return StepStatusPending
}
