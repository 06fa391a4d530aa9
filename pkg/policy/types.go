package policy

import "time"

// Severity indicates the impact of a policy violation.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is a Rego policy evaluated against backend add requests.
type Policy struct {
	// Name uniquely identifies the policy.
	Name string `json:"name"`

	// Description explains what the policy enforces.
	Description string `json:"description"`

	// Severity is the default severity of this policy's violations.
	Severity Severity `json:"severity"`

	// Enabled toggles evaluation.
	Enabled bool `json:"enabled"`

	// Rego is the policy source. Violations are collected from the
	// package's deny set.
	Rego string `json:"rego"`
}

// Input is the document policies are evaluated against.
type Input struct {
	// Name is the requested backend instance name.
	Name string `json:"name"`

	// Type is the backend type tag.
	Type string `json:"type"`

	// Principal is the principal volume application.
	Principal string `json:"principal"`

	// Config are the resolved charm options, with credentials already
	// replaced by secret references.
	Config map[string]string `json:"config"`
}

// Violation is a single policy violation.
type Violation struct {
	// Policy is the name of the violated policy.
	Policy string `json:"policy"`

	// Message describes the violation.
	Message string `json:"message"`

	// Severity is the violation severity.
	Severity string `json:"severity"`
}

// Result is the outcome of evaluating all enabled policies.
type Result struct {
	// Allowed is false when any violation is error or critical.
	Allowed bool `json:"allowed"`

	// Violations lists every violation found.
	Violations []Violation `json:"violations"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}
