// Package models defines the core domain types for the CI/CD monitor.
package models

import "time"

// PipelineStatus represents the aggregate state of a pipeline run.
type PipelineStatus string

const (
	PipelineStatusPending   PipelineStatus = "pending"
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusSucceeded PipelineStatus = "succeeded"
	PipelineStatusFailed    PipelineStatus = "failed"
	PipelineStatusCancelled PipelineStatus = "cancelled"
	PipelineStatusUnknown   PipelineStatus = "unknown"
)

// IsTerminal reports whether the status will not change further.
func (s PipelineStatus) IsTerminal() bool {
	switch s {
	case PipelineStatusSucceeded, PipelineStatusFailed, PipelineStatusCancelled:
		return true
	}
	return false
}

// StageStatus represents the state of a single pipeline stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
	StageStatusUnknown   StageStatus = "unknown"
)

// IsTerminal reports whether the stage status will not change further.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageStatusSucceeded, StageStatusFailed, StageStatusSkipped:
		return true
	}
	return false
}

// TriggerKind identifies what started a pipeline run.
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerWebhook  TriggerKind = "webhook"
	TriggerSchedule TriggerKind = "schedule"
	TriggerAPI      TriggerKind = "api"
	TriggerUnknown  TriggerKind = "unknown"
)

// Trigger describes the origin of a pipeline run.
type Trigger struct {
	Kind    TriggerKind `json:"kind"`
	User    string      `json:"user,omitempty"`
	Branch  string      `json:"branch,omitempty"`
	Commit  string      `json:"commit,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Pipeline represents one end-to-end CI/CD run for an application.
//
// Status is derived from stages and events, never assigned directly by
// a presentation layer. EndTime and Duration are set exactly once, when
// the first terminal event or stage transition is observed, and never
// regress afterwards.
type Pipeline struct {
	ID        string          `json:"id"`
	AppName   string          `json:"app_name"`
	Status    PipelineStatus  `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   *time.Time      `json:"end_time,omitempty"`
	Duration  *time.Duration  `json:"duration,omitempty"`
	Trigger   Trigger         `json:"trigger"`
	Stages    []Stage         `json:"stages,omitempty"`
	Events    []PipelineEvent `json:"events,omitempty"`

	// StageCount hints how many stages exist when Stages has not been
	// fetched yet, so list views can tell expandable runs from leaves.
	StageCount int `json:"stage_count,omitempty"`

	// DetailLoaded marks that a full snapshot (stages and events) has
	// been fetched for this pipeline, not just a list entry.
	DetailLoaded bool `json:"-"`
}

// FirstFailure returns the earliest failure event of the pipeline, or
// nil when none has been recorded.
func (p *Pipeline) FirstFailure() *PipelineEvent {
	for i := range p.Events {
		if p.Events[i].IsFailure() {
			return &p.Events[i]
		}
	}
	return nil
}

// FailureReason returns a short human-readable cause for a failed
// pipeline, preferring the first failure event's reason over its type.
func (p *Pipeline) FailureReason() string {
	ev := p.FirstFailure()
	if ev == nil {
		return ""
	}
	if ev.Reason != "" {
		return ev.Reason
	}
	if ev.RawType != "" {
		return ev.RawType
	}
	return string(ev.Type)
}

// Stage is a named phase of a pipeline with its own status and timing.
// CompletedAt being set implies the status is terminal.
type Stage struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Component    string            `json:"component,omitempty"`
	Status       StageStatus       `json:"status"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Details      map[string]string `json:"details,omitempty"`
	Duration     *time.Duration    `json:"duration,omitempty"`
}

// PipelineEvent is a timestamped lifecycle marker, the legacy
// representation still emitted by older backend versions.
type PipelineEvent struct {
	ID         string            `json:"id"`
	PipelineID string            `json:"pipeline_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"event_type"`
	StageID    string            `json:"stage_id,omitempty"`
	Status     StageStatus       `json:"status,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Details    map[string]string `json:"details,omitempty"`

	// RawType keeps the wire token the Type was mapped from, so
	// unrecognized markers stay inspectable in detail views.
	RawType string `json:"-"`
}

// IsFailure reports whether the event signals a failure, either through
// its mapped type or an explicit failed status on the payload.
func (e PipelineEvent) IsFailure() bool {
	return e.Type.IsFailure() || e.Status == StageStatusFailed
}

// Application is a deployable unit known to the control plane.
type Application struct {
	Name        string `json:"name"`
	Namespace   string `json:"namespace,omitempty"`
	Description string `json:"description,omitempty"`
}

// Metrics summarizes pipeline outcomes for one application over a period.
type Metrics struct {
	AppName        string         `json:"app_name"`
	Period         string         `json:"period"`
	TotalRuns      int            `json:"total_runs"`
	SucceededRuns  int            `json:"succeeded_runs"`
	FailedRuns     int            `json:"failed_runs"`
	SuccessRate    float64        `json:"success_rate"`
	AvgDuration    time.Duration  `json:"avg_duration"`
	FailureReasons map[string]int `json:"failure_reasons,omitempty"`
}
