package deployer

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock"

	"github.com/overcast-cloud/backendctl/pkg/deployer/deployertest"
	"github.com/overcast-cloud/backendctl/pkg/engine"
)

// instantClock fires every wait immediately so tests exercise the
// attempt budget without real sleeps.
type instantClock struct {
	clock.Clock
}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func testPolicy(attempts int) engine.RetryPolicy {
	return engine.RetryPolicy{
		Attempts: attempts,
		Delay:    time.Millisecond,
		Clock:    instantClock{clock.WallClock},
	}
}

func TestWaitForStatusSettles(t *testing.T) {
	fake := deployertest.New()
	fake.SettleAfter = 3
	if err := fake.Deploy(context.Background(), engine.DeploySpec{App: "hitachi-vsp", Charm: "cinder-volume-hitachi"}); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	err := WaitForStatus(context.Background(), fake, "hitachi-vsp", ActiveAndSettled, testPolicy(10))
	if err != nil {
		t.Fatalf("WaitForStatus: %v", err)
	}
	if got := fake.CallCount("status"); got != 3 {
		t.Errorf("status calls = %d, want 3", got)
	}
}

func TestWaitForStatusExhaustsAttempts(t *testing.T) {
	fake := deployertest.New()
	fake.Apps["hitachi-vsp"] = &engine.AppStatus{
		App:      "hitachi-vsp",
		Workload: engine.BackendStatusWaiting,
		Agent:    "executing",
	}

	err := WaitForStatus(context.Background(), fake, "hitachi-vsp", ActiveAndSettled, testPolicy(4))
	if !engine.IsTimeout(err) {
		t.Fatalf("err = %v, want timeout class", err)
	}
	if got := fake.CallCount("status"); got != 4 {
		t.Errorf("status calls = %d, want exactly 4", got)
	}
}

func TestWaitForStatusRetriesNotFound(t *testing.T) {
	// A just-issued deployment may not be visible yet; not-found must
	// consume the budget rather than abort the wait.
	fake := deployertest.New()

	err := WaitForStatus(context.Background(), fake, "absent", ActiveAndSettled, testPolicy(3))
	if !engine.IsTimeout(err) {
		t.Fatalf("err = %v, want timeout class", err)
	}
	if got := fake.CallCount("status"); got != 3 {
		t.Errorf("status calls = %d, want 3", got)
	}
}

func TestWaitForStatusFatalError(t *testing.T) {
	fake := deployertest.New()
	fake.FailWith["status"] = engine.NewDeploymentError("unit in error state", nil)

	err := WaitForStatus(context.Background(), fake, "hitachi-vsp", ActiveAndSettled, testPolicy(5))
	if !engine.IsDeploymentFailure(err) {
		t.Fatalf("err = %v, want deployment class", err)
	}
	if got := fake.CallCount("status"); got != 1 {
		t.Errorf("status calls = %d, want 1", got)
	}
}

func TestWaitForStatusCancelled(t *testing.T) {
	fake := deployertest.New()
	fake.Apps["hitachi-vsp"] = &engine.AppStatus{
		App:      "hitachi-vsp",
		Workload: engine.BackendStatusWaiting,
		Agent:    "executing",
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForStatus(ctx, fake, "hitachi-vsp", ActiveAndSettled, testPolicy(10))
	if !engine.IsTransient(err) {
		t.Fatalf("err = %v, want transient class", err)
	}
}
