package models

import "strings"

// EventType is the canonical, closed set of pipeline lifecycle markers.
// Wire payloads use an open string field with inconsistent casing; every
// raw token maps through ParseEventType so that anything unrecognized
// lands on EventUnknown instead of leaking through comparisons.
type EventType string

const (
	EventBuildStart     EventType = "build-start"
	EventBuildComplete  EventType = "build-complete"
	EventBuildFailed    EventType = "build-failed"
	EventTestStart      EventType = "test-start"
	EventTestComplete   EventType = "test-complete"
	EventTestFailed     EventType = "test-failed"
	EventSyncStart      EventType = "sync-start"
	EventSyncComplete   EventType = "sync-complete"
	EventSyncFailed     EventType = "sync-failed"
	EventDeployStart    EventType = "deploy-start"
	EventDeployComplete EventType = "deploy-complete"
	EventDeployTimeout  EventType = "deploy-timeout"
	EventWorkflowFailed EventType = "workflow-failed"
	EventUnknown        EventType = "unknown"
)

// ParseEventType maps a raw wire token to its canonical EventType.
// Matching is case-insensitive and treats underscores as hyphens, so
// "BUILD_FAILED" and "build-failed" both map to EventBuildFailed.
func ParseEventType(raw string) EventType {
	tok := strings.ToLower(strings.TrimSpace(raw))
	tok = strings.ReplaceAll(tok, "_", "-")
	switch t := EventType(tok); t {
	case EventBuildStart, EventBuildComplete, EventBuildFailed,
		EventTestStart, EventTestComplete, EventTestFailed,
		EventSyncStart, EventSyncComplete, EventSyncFailed,
		EventDeployStart, EventDeployComplete, EventDeployTimeout,
		EventWorkflowFailed:
		return t
	}
	return EventUnknown
}

// StageKind groups event types by the pipeline phase they belong to.
type StageKind string

const (
	StageKindBuild    StageKind = "build"
	StageKindTest     StageKind = "test"
	StageKindSync     StageKind = "sync"
	StageKindDeploy   StageKind = "deploy"
	StageKindWorkflow StageKind = "workflow"
	StageKindUnknown  StageKind = "unknown"
)

// StageKind returns the pipeline phase an event type belongs to.
func (t EventType) StageKind() StageKind {
	switch t {
	case EventBuildStart, EventBuildComplete, EventBuildFailed:
		return StageKindBuild
	case EventTestStart, EventTestComplete, EventTestFailed:
		return StageKindTest
	case EventSyncStart, EventSyncComplete, EventSyncFailed:
		return StageKindSync
	case EventDeployStart, EventDeployComplete, EventDeployTimeout:
		return StageKindDeploy
	case EventWorkflowFailed:
		return StageKindWorkflow
	}
	return StageKindUnknown
}

// IsTerminal reports whether observing this event type ends the
// pipeline: the run's endTime freezes at the event's timestamp.
func (t EventType) IsTerminal() bool {
	switch t {
	case EventDeployComplete, EventDeployTimeout, EventWorkflowFailed,
		EventBuildFailed, EventSyncFailed:
		return true
	}
	return false
}

// IsFailure reports whether the event type on its own marks a failure.
func (t EventType) IsFailure() bool {
	switch t {
	case EventBuildFailed, EventTestFailed, EventSyncFailed,
		EventDeployTimeout, EventWorkflowFailed:
		return true
	}
	return false
}
