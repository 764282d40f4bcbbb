package models

import "testing"

func TestParseEventType(t *testing.T) {
	tests := []struct {
		raw  string
		want EventType
	}{
		{"build-start", EventBuildStart},
		{"BUILD_FAILED", EventBuildFailed},
		{"Deploy-Complete", EventDeployComplete},
		{"deploy_timeout", EventDeployTimeout},
		{"  sync-failed  ", EventSyncFailed},
		{"WORKFLOW_FAILED", EventWorkflowFailed},
		{"test_complete", EventTestComplete},
		{"", EventUnknown},
		{"something-new", EventUnknown},
		{"build", EventUnknown},
		{"deploy-completed", EventUnknown},
	}

	for _, tt := range tests {
		if got := ParseEventType(tt.raw); got != tt.want {
			t.Errorf("ParseEventType(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestEventTypeTerminalSet(t *testing.T) {
	terminal := map[EventType]bool{
		EventDeployComplete: true,
		EventDeployTimeout:  true,
		EventWorkflowFailed: true,
		EventBuildFailed:    true,
		EventSyncFailed:     true,
	}

	all := []EventType{
		EventBuildStart, EventBuildComplete, EventBuildFailed,
		EventTestStart, EventTestComplete, EventTestFailed,
		EventSyncStart, EventSyncComplete, EventSyncFailed,
		EventDeployStart, EventDeployComplete, EventDeployTimeout,
		EventWorkflowFailed, EventUnknown,
	}

	for _, et := range all {
		if got := et.IsTerminal(); got != terminal[et] {
			t.Errorf("%s.IsTerminal() = %v, want %v", et, got, terminal[et])
		}
	}
}

func TestEventTypeStageKind(t *testing.T) {
	tests := []struct {
		et   EventType
		want StageKind
	}{
		{EventBuildStart, StageKindBuild},
		{EventBuildFailed, StageKindBuild},
		{EventTestComplete, StageKindTest},
		{EventSyncStart, StageKindSync},
		{EventSyncFailed, StageKindSync},
		{EventDeployComplete, StageKindDeploy},
		{EventDeployTimeout, StageKindDeploy},
		{EventWorkflowFailed, StageKindWorkflow},
		{EventUnknown, StageKindUnknown},
		{EventType("bogus"), StageKindUnknown},
	}

	for _, tt := range tests {
		if got := tt.et.StageKind(); got != tt.want {
			t.Errorf("%s.StageKind() = %q, want %q", tt.et, got, tt.want)
		}
	}
}

func TestEventIsFailure(t *testing.T) {
	// Type alone marks failure.
	ev := PipelineEvent{Type: EventTestFailed}
	if !ev.IsFailure() {
		t.Error("Expected test-failed event to be a failure")
	}

	// Explicit failed status marks failure even with an unknown type.
	ev = PipelineEvent{Type: EventUnknown, Status: StageStatusFailed}
	if !ev.IsFailure() {
		t.Error("Expected failed-status event to be a failure")
	}

	ev = PipelineEvent{Type: EventDeployComplete, Status: StageStatusSucceeded}
	if ev.IsFailure() {
		t.Error("Expected deploy-complete event to not be a failure")
	}
}
