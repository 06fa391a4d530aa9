// Package deployer implements the deployment helper boundary: the
// bounded readiness wait, transient-error classification, and a juju
// CLI-backed implementation of the engine's Deployer interface.
package deployer

import (
	"context"
	"fmt"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// ReadyPredicate decides whether an application status satisfies the
// wait target.
type ReadyPredicate func(*engine.AppStatus) bool

// ActiveAndSettled is the canonical readiness target: workload active
// and unit agent idle.
func ActiveAndSettled(st *engine.AppStatus) bool {
	return st.Ready()
}

// WaitForStatus polls the application status until the predicate holds,
// bounded by the retry policy's attempt budget. The loop always
// terminates: on success, on a fatal error, or on exhausting the
// budget, in which case a timeout-class error is returned so callers
// can distinguish "issued but not yet healthy" from a failed
// deployment. Exactly policy.Attempts status calls are made when the
// predicate never holds.
func WaitForStatus(ctx context.Context, d engine.Deployer, app string, ready ReadyPredicate, policy engine.RetryPolicy) error {
	clk := policy.Clock
	if clk == nil {
		clk = clock.WallClock
	}

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			st, err := d.Status(ctx, app)
			if err != nil {
				return err
			}
			if !ready(st) {
				return engine.NewTransientError(
					fmt.Sprintf("application %s not ready: workload=%s agent=%s", app, st.Workload, st.Agent), nil)
			}
			return nil
		},
		// A just-issued deployment may briefly not be visible yet, so
		// not-found is retried alongside transient failures.
		IsFatalError: func(err error) bool {
			return !engine.IsRetryable(err) && !engine.IsNotFound(err)
		},
		Attempts:    policy.Attempts,
		Delay:       policy.Delay,
		BackoffFunc: policy.BackoffFunc,
		Clock:       clk,
		Stop:        ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if retry.IsAttemptsExceeded(err) || retry.IsDurationExceeded(err) {
		return engine.NewTimeoutError(
			fmt.Sprintf("application %s did not become ready within %d attempts", app, policy.Attempts),
			retry.LastError(err),
		).WithBackend(app)
	}
	if retry.IsRetryStopped(err) {
		return engine.NewTransientError("readiness wait interrupted", ctx.Err()).WithBackend(app)
	}
	return err
}
