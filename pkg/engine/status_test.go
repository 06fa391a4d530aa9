package engine

import "testing"

func TestStepStatusTerminal(t *testing.T) {
	terminal := map[StepStatus]bool{
		StepStatusPending: false,
		StepStatusRunning: false,
		StepStatusSkipped: true,
		StepStatusDone:    true,
		StepStatusFailed:  true,
	}
	for status, want := range terminal {
		if status.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, !want, want)
		}
		if err := status.Validate(); err != nil {
			t.Errorf("%s should validate: %v", status, err)
		}
	}
	if err := StepStatus("paused").Validate(); err == nil {
		t.Error("unknown status should not validate")
	}
}

func TestAppStatusReady(t *testing.T) {
	tests := []struct {
		workload BackendStatus
		agent    string
		want     bool
	}{
		{BackendStatusActive, "idle", true},
		{BackendStatusActive, "executing", false},
		{BackendStatusWaiting, "idle", false},
		{BackendStatusBlocked, "idle", false},
		{BackendStatusError, "idle", false},
	}
	for _, tt := range tests {
		s := &AppStatus{Workload: tt.workload, Agent: tt.agent}
		if s.Ready() != tt.want {
			t.Errorf("Ready(%s/%s) = %v, want %v", tt.workload, tt.agent, !tt.want, tt.want)
		}
	}
}

func TestAppStatusRelatedTo(t *testing.T) {
	s := &AppStatus{
		Relations: map[string][]string{
			"cinder-volume": {"cinder-volume", "other-app"},
		},
	}
	if !s.RelatedTo("cinder-volume", "cinder-volume") {
		t.Error("existing relation not found")
	}
	if s.RelatedTo("cinder-volume", "missing") {
		t.Error("matched a remote that is not related")
	}
	if s.RelatedTo("storage", "cinder-volume") {
		t.Error("matched a relation on the wrong endpoint")
	}
}
