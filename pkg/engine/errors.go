// Package engine provides the core types and interfaces for the storage
// backend orchestration engine: the step pipeline, the backend plugin
// contract, and the boundaries to the deployment helper and the
// registration store.
package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and
// surfacing decisions.
type ErrorClass string

const (
	// ErrorClassValidation indicates invalid user input. Never retried.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassNotFound indicates the referenced backend does not exist.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassConflict indicates a duplicate name or state conflict.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassTransient indicates a temporary infrastructure failure
	// that may succeed on retry. Examples: network timeouts, a unit
	// still settling.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassDeployment indicates the underlying unit deployment
	// failed. Not retried; the cause is preserved for diagnosis.
	ErrorClassDeployment ErrorClass = "deployment"

	// ErrorClassTimeout indicates a readiness wait exhausted its attempt
	// budget: the deployment was issued but is not yet healthy.
	ErrorClassTimeout ErrorClass = "timeout"
)

// Error represents a classified engine error with context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Backend is the backend name that caused the error, if applicable.
	Backend string `json:"backend,omitempty"`

	// Step is the pipeline step executing when the error occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Backend != "" && e.Step != "":
		return fmt.Sprintf("[%s] %s (backend=%s, step=%s)%s",
			e.Class, e.Message, e.Backend, e.Step, e.unwrapMessage())
	case e.Backend != "":
		return fmt.Sprintf("[%s] %s (backend=%s)%s",
			e.Class, e.Message, e.Backend, e.unwrapMessage())
	default:
		return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapMessage())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Code: ErrCodeValidation, Message: message, Err: err}
}

// NewNotFoundError creates a new not-found error.
func NewNotFoundError(message string, err error) *Error {
	return &Error{Class: ErrorClassNotFound, Code: ErrCodeNotFound, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *Error {
	return &Error{Class: ErrorClassConflict, Code: ErrCodeAlreadyExists, Message: message, Err: err}
}

// NewTransientError creates a new transient infrastructure error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Code: ErrCodeTransient, Message: message, Err: err}
}

// NewDeploymentError creates a new deployment failure wrapping the
// underlying cause.
func NewDeploymentError(message string, err error) *Error {
	return &Error{Class: ErrorClassDeployment, Code: ErrCodeDeployFailed, Message: message, Err: err}
}

// NewTimeoutError creates a new readiness timeout error.
func NewTimeoutError(message string, err error) *Error {
	return &Error{Class: ErrorClassTimeout, Code: ErrCodeTimeout, Message: message, Err: err}
}

// WithBackend adds backend context to an error.
func (e *Error) WithBackend(name string) *Error {
	e.Backend = name
	return e
}

// WithStep adds step context to an error.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// WithCode overrides the error code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// IsValidation returns true if the error is classified as validation.
func IsValidation(err error) bool {
	return hasClass(err, ErrorClassValidation)
}

// IsNotFound returns true if the error is classified as not-found.
func IsNotFound(err error) bool {
	return hasClass(err, ErrorClassNotFound)
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return hasClass(err, ErrorClassConflict)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return hasClass(err, ErrorClassTransient)
}

// IsDeploymentFailure returns true if the error is a deployment failure.
func IsDeploymentFailure(err error) bool {
	return hasClass(err, ErrorClassDeployment)
}

// IsTimeout returns true if the error is a readiness timeout.
func IsTimeout(err error) bool {
	return hasClass(err, ErrorClassTimeout)
}

// IsRetryable returns true if the error can be retried. Only transient
// errors are retryable; validation and conflict failures never are.
func IsRetryable(err error) bool {
	return IsTransient(err)
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeTransient     = "TRANSIENT_ERROR"
	ErrCodeDeployFailed  = "DEPLOY_FAILED"
	ErrCodeTimeout       = "TIMEOUT"
	ErrCodePolicyDenied  = "POLICY_DENIED"
)
