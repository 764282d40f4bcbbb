package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

// Backend versions disagree on payload field names and casing. Each
// payload type below declares both spellings; normalization prefers the
// stage-style names (startedAt, completedAt, name, eventType) and falls
// back to the older ones (startTime, endTime, stageName, event_type).

// flexTime accepts the two timestamp encodings in the wild: RFC3339
// strings and epoch seconds. An unparseable value normalizes to the
// zero time rather than failing the whole payload.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, str)
		if err != nil {
			t.Time = time.Time{}
			return nil
		}
		t.Time = parsed
		return nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.Time = time.Time{}
		return nil
	}
	sec := int64(secs)
	nsec := int64((secs - float64(sec)) * float64(time.Second))
	t.Time = time.Unix(sec, nsec).UTC()
	return nil
}

type pipelinePayload struct {
	ID            string          `json:"id"`
	AppName       string          `json:"appName"`
	AppNameLegacy string          `json:"app_name"`
	Status        string          `json:"status"`
	Start         *flexTime       `json:"startedAt"`
	StartLegacy   *flexTime       `json:"startTime"`
	End           *flexTime       `json:"completedAt"`
	EndLegacy     *flexTime       `json:"endTime"`
	DurationSecs  *float64        `json:"duration"`
	Trigger       *triggerPayload `json:"trigger"`
	Stages        []stagePayload  `json:"stages"`
	Events        []eventPayload  `json:"events"`
	StageCount    int             `json:"stageCount"`
	StageCountAlt int             `json:"stage_count"`
}

func (p pipelinePayload) toPipeline() models.Pipeline {
	out := models.Pipeline{
		ID:        p.ID,
		AppName:   firstNonEmpty(p.AppName, p.AppNameLegacy),
		Status:    mapPipelineStatus(p.Status),
		StartTime: pickTime(p.Start, p.StartLegacy),
		EndTime:   pickTimePtr(p.End, p.EndLegacy),
		Trigger:   models.Trigger{Kind: models.TriggerUnknown},
	}

	switch {
	case p.DurationSecs != nil:
		d := time.Duration(*p.DurationSecs * float64(time.Second))
		out.Duration = &d
	case out.EndTime != nil && !out.StartTime.IsZero():
		d := out.EndTime.Sub(out.StartTime)
		out.Duration = &d
	}

	if p.Trigger != nil {
		out.Trigger = p.Trigger.toTrigger()
	}
	if len(p.Stages) > 0 {
		out.Stages = make([]models.Stage, len(p.Stages))
		for i, s := range p.Stages {
			out.Stages[i] = s.toStage()
		}
	}
	for _, e := range p.Events {
		out.Events = append(out.Events, e.toEvent(p.ID))
	}

	out.StageCount = len(out.Stages)
	if out.StageCount == 0 {
		if p.StageCount > 0 {
			out.StageCount = p.StageCount
		} else if p.StageCountAlt > 0 {
			out.StageCount = p.StageCountAlt
		}
	}
	return out
}

type stagePayload struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	NameLegacy   string                 `json:"stageName"`
	Component    string                 `json:"component"`
	Status       string                 `json:"status"`
	Start        *flexTime              `json:"startedAt"`
	StartLegacy  *flexTime              `json:"startTime"`
	End          *flexTime              `json:"completedAt"`
	EndLegacy    *flexTime              `json:"endTime"`
	DurationSecs *float64               `json:"duration"`
	ErrorMessage string                 `json:"errorMessage"`
	ErrorLegacy  string                 `json:"error_message"`
	Details      map[string]interface{} `json:"details"`
}

func (s stagePayload) toStage() models.Stage {
	out := models.Stage{
		ID:           s.ID,
		Name:         firstNonEmpty(s.Name, s.NameLegacy),
		Component:    s.Component,
		Status:       mapStageStatus(s.Status),
		StartedAt:    pickTime(s.Start, s.StartLegacy),
		ErrorMessage: firstNonEmpty(s.ErrorMessage, s.ErrorLegacy),
		Details:      stringDetails(s.Details),
	}

	// A completion stamp on a stage that is still pending or running is
	// backend skew; the stamp is dropped so that completedAt always
	// implies a terminal status.
	if end := pickTimePtr(s.End, s.EndLegacy); end != nil && out.Status.IsTerminal() {
		out.CompletedAt = end
	}

	switch {
	case s.DurationSecs != nil:
		d := time.Duration(*s.DurationSecs * float64(time.Second))
		out.Duration = &d
	case out.CompletedAt != nil && !out.StartedAt.IsZero():
		d := out.CompletedAt.Sub(out.StartedAt)
		out.Duration = &d
	}
	return out
}

type eventPayload struct {
	ID               string                 `json:"id"`
	PipelineID       string                 `json:"pipelineId"`
	PipelineIDLegacy string                 `json:"pipeline_id"`
	Timestamp        *flexTime              `json:"timestamp"`
	EventType        string                 `json:"eventType"`
	EventTypeLegacy  string                 `json:"event_type"`
	StageID          string                 `json:"stageId"`
	StageIDLegacy    string                 `json:"stage_id"`
	Status           string                 `json:"status"`
	Reason           string                 `json:"reason"`
	Message          string                 `json:"message"`
	Details          map[string]interface{} `json:"details"`
}

func (e eventPayload) toEvent(pipelineID string) models.PipelineEvent {
	raw := firstNonEmpty(e.EventType, e.EventTypeLegacy)
	out := models.PipelineEvent{
		ID:         e.ID,
		PipelineID: firstNonEmpty(e.PipelineID, e.PipelineIDLegacy, pipelineID),
		Type:       models.ParseEventType(raw),
		RawType:    raw,
		StageID:    firstNonEmpty(e.StageID, e.StageIDLegacy),
		Status:     mapStageStatus(e.Status),
		Reason:     firstNonEmpty(e.Reason, e.Message),
		Details:    stringDetails(e.Details),
	}
	if e.Timestamp != nil {
		out.Timestamp = e.Timestamp.Time
	}
	return out
}

type triggerPayload struct {
	Type       string `json:"type"`
	TypeLegacy string `json:"kind"`
	User       string `json:"user"`
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	Message    string `json:"message"`
}

func (t triggerPayload) toTrigger() models.Trigger {
	return models.Trigger{
		Kind:    mapTriggerKind(firstNonEmpty(t.Type, t.TypeLegacy)),
		User:    t.User,
		Branch:  t.Branch,
		Commit:  t.Commit,
		Message: t.Message,
	}
}

// DecodeEvent parses one wire event message into its canonical form.
// Both the push channel and the ConfigMap transport deliver events in
// this shape.
func DecodeEvent(data []byte) (models.PipelineEvent, error) {
	var p eventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return models.PipelineEvent{}, fmt.Errorf("decode event: %w", err)
	}
	return p.toEvent(""), nil
}

// DecodeEvents parses a JSON array of wire events.
func DecodeEvents(data []byte) ([]models.PipelineEvent, error) {
	var payloads []eventPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	events := make([]models.PipelineEvent, len(payloads))
	for i, p := range payloads {
		events[i] = p.toEvent("")
	}
	return events, nil
}

func mapPipelineStatus(raw string) models.PipelineStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "created", "waiting":
		return models.PipelineStatusPending
	case "running", "in_progress", "in-progress", "started", "active":
		return models.PipelineStatusRunning
	case "succeeded", "success", "successful", "completed", "complete":
		return models.PipelineStatusSucceeded
	case "failed", "failure", "error", "errored":
		return models.PipelineStatusFailed
	case "cancelled", "canceled", "aborted":
		return models.PipelineStatusCancelled
	default:
		return models.PipelineStatusUnknown
	}
}

func mapStageStatus(raw string) models.StageStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued", "created", "waiting":
		return models.StageStatusPending
	case "running", "in_progress", "in-progress", "started", "active":
		return models.StageStatusRunning
	case "succeeded", "success", "successful", "completed", "complete":
		return models.StageStatusSucceeded
	case "failed", "failure", "error", "errored", "timed_out", "timeout":
		return models.StageStatusFailed
	case "skipped":
		return models.StageStatusSkipped
	default:
		return models.StageStatusUnknown
	}
}

func mapTriggerKind(raw string) models.TriggerKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "manual", "user":
		return models.TriggerManual
	case "webhook", "push", "git":
		return models.TriggerWebhook
	case "schedule", "cron", "scheduled":
		return models.TriggerSchedule
	case "api":
		return models.TriggerAPI
	default:
		return models.TriggerUnknown
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func pickTime(vals ...*flexTime) time.Time {
	for _, v := range vals {
		if v != nil && !v.IsZero() {
			return v.Time
		}
	}
	return time.Time{}
}

func pickTimePtr(vals ...*flexTime) *time.Time {
	for _, v := range vals {
		if v != nil && !v.IsZero() {
			t := v.Time
			return &t
		}
	}
	return nil
}

func stringDetails(raw map[string]interface{}) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}
