package engine

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		pred func(error) bool
		code string
	}{
		{"validation", NewValidationError("bad config", nil), IsValidation, "VALIDATION_ERROR"},
		{"not found", NewNotFoundError("no such backend", nil), IsNotFound, "NOT_FOUND"},
		{"conflict", NewConflictError("already registered", nil), IsConflict, "ALREADY_EXISTS"},
		{"transient", NewTransientError("connection refused", nil), IsTransient, "TRANSIENT_ERROR"},
		{"deployment", NewDeploymentError("hook failed", nil), IsDeploymentFailure, "DEPLOY_FAILED"},
		{"timeout", NewTimeoutError("budget exhausted", nil), IsTimeout, "TIMEOUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.pred(tt.err) {
				t.Errorf("predicate rejected its own class: %v", tt.err)
			}
			if tt.err.Code != tt.code {
				t.Errorf("code = %q, want %q", tt.err.Code, tt.code)
			}
			// Each predicate matches exactly one class.
			matches := 0
			for _, pred := range []func(error) bool{IsValidation, IsNotFound, IsConflict, IsTransient, IsDeploymentFailure, IsTimeout} {
				if pred(tt.err) {
					matches++
				}
			}
			if matches != 1 {
				t.Errorf("error matched %d classes, want 1", matches)
			}
		})
	}
}

func TestTimeoutIsDistinctFromDeploymentFailure(t *testing.T) {
	timeout := NewTimeoutError("did not become ready", nil)
	if IsDeploymentFailure(timeout) {
		t.Error("timeout must not classify as deployment failure")
	}
	if IsRetryable(timeout) {
		t.Error("timeout must not be retryable")
	}
}

func TestOnlyTransientIsRetryable(t *testing.T) {
	if !IsRetryable(NewTransientError("temporarily unavailable", nil)) {
		t.Error("transient must be retryable")
	}
	for _, err := range []error{
		NewValidationError("bad", nil),
		NewConflictError("dup", nil),
		NewNotFoundError("gone", nil),
		NewDeploymentError("broken", nil),
	} {
		if IsRetryable(err) {
			t.Errorf("%v must not be retryable", err)
		}
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("exit status 1")
	err := NewDeploymentError("deploy failed", cause).WithBackend("hitachi-vsp").WithStep("deploy-unit")

	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	var classified *Error
	if !errors.As(err, &classified) {
		t.Fatal("errors.As failed")
	}
	if classified.Backend != "hitachi-vsp" || classified.Step != "deploy-unit" {
		t.Errorf("context = %q/%q", classified.Backend, classified.Step)
	}
}

func TestPredicatesRejectForeignErrors(t *testing.T) {
	plain := errors.New("plain")
	for _, pred := range []func(error) bool{IsValidation, IsNotFound, IsConflict, IsTransient, IsDeploymentFailure, IsTimeout, IsRetryable} {
		if pred(plain) {
			t.Error("predicate matched an unclassified error")
		}
		if pred(nil) {
			t.Error("predicate matched nil")
		}
	}
}
