// Package timeline projects a pipeline's stages onto a horizontal time
// axis for the Gantt view.
package timeline

import (
	"sort"
	"time"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

// minBarWidth keeps zero-duration stages visible: no bar occupies less
// than 2% of the span.
const minBarWidth = 0.02

// Bar is one stage positioned on the chart. Offset and Width are
// fractions of the chart span in [0, 1], with Offset+Width <= 1.
type Bar struct {
	StageID string
	Label   string
	Status  models.StageStatus
	Offset  float64
	Width   float64
	Start   time.Time
	End     time.Time
}

// Chart is the time-scaled projection of one pipeline.
type Chart struct {
	PipelineID string
	Start      time.Time
	Span       time.Duration
	Bars       []Bar
}

// Build projects a pipeline onto a chart. Unfinished stages extend to
// now, so running bars grow on every refresh. Pipelines that predate
// the stage model get bars derived from their event pairs instead.
func Build(p models.Pipeline, now time.Time) Chart {
	spans := stageSpans(p, now)
	chart := Chart{PipelineID: p.ID}
	if len(spans) == 0 {
		return chart
	}

	min := spans[0].start
	max := spans[0].end
	for _, s := range spans[1:] {
		if s.start.Before(min) {
			min = s.start
		}
		if s.end.After(max) {
			max = s.end
		}
	}
	if !p.StartTime.IsZero() && p.StartTime.Before(min) {
		min = p.StartTime
	}
	if p.EndTime != nil && p.EndTime.After(max) {
		max = *p.EndTime
	}

	span := max.Sub(min)
	chart.Start = min
	chart.Span = span

	for _, s := range spans {
		bar := Bar{
			StageID: s.id,
			Label:   s.label,
			Status:  s.status,
			Start:   s.start,
			End:     s.end,
		}
		if span > 0 {
			bar.Offset = float64(s.start.Sub(min)) / float64(span)
			bar.Width = float64(s.end.Sub(s.start)) / float64(span)
		}
		if bar.Width < minBarWidth {
			bar.Width = minBarWidth
		}
		if bar.Offset+bar.Width > 1 {
			bar.Offset = 1 - bar.Width
		}
		if bar.Offset < 0 {
			bar.Offset = 0
		}
		chart.Bars = append(chart.Bars, bar)
	}
	return chart
}

type stageSpan struct {
	id     string
	label  string
	status models.StageStatus
	start  time.Time
	end    time.Time
}

func stageSpans(p models.Pipeline, now time.Time) []stageSpan {
	if len(p.Stages) == 0 {
		return eventSpans(p, now)
	}

	// Running stages stop growing at the pipeline's own end when the
	// run has already finished.
	growUntil := now
	if p.EndTime != nil && growUntil.After(*p.EndTime) {
		growUntil = *p.EndTime
	}

	out := make([]stageSpan, 0, len(p.Stages))
	for _, s := range p.Stages {
		if s.StartedAt.IsZero() {
			continue
		}
		end := growUntil
		if s.CompletedAt != nil {
			end = *s.CompletedAt
		}
		if end.Before(s.StartedAt) {
			end = s.StartedAt
		}
		out = append(out, stageSpan{
			id:     s.ID,
			label:  s.Name,
			status: s.Status,
			start:  s.StartedAt,
			end:    end,
		})
	}
	return out
}

// eventSpans reconstructs stage bars from legacy event pairs: each
// phase opens on its start marker and closes on the matching complete,
// failed, or timeout marker. A workflow failure closes every open
// phase.
func eventSpans(p models.Pipeline, now time.Time) []stageSpan {
	if len(p.Events) == 0 {
		return nil
	}
	events := make([]models.PipelineEvent, len(p.Events))
	copy(events, p.Events)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})

	var out []stageSpan
	open := make(map[models.StageKind]int)
	for _, e := range events {
		if e.Timestamp.IsZero() {
			continue
		}
		kind := e.Type.StageKind()
		switch kind {
		case models.StageKindUnknown:
			continue
		case models.StageKindWorkflow:
			for k, idx := range open {
				out[idx].end = e.Timestamp
				out[idx].status = models.StageStatusFailed
				delete(open, k)
			}
			continue
		}

		if isPhaseStart(e.Type) {
			out = append(out, stageSpan{
				id:     spanID(e, kind),
				label:  string(kind),
				status: models.StageStatusRunning,
				start:  e.Timestamp,
				end:    e.Timestamp,
			})
			open[kind] = len(out) - 1
			continue
		}

		status := models.StageStatusSucceeded
		if e.IsFailure() {
			status = models.StageStatusFailed
		}
		if idx, ok := open[kind]; ok {
			out[idx].end = e.Timestamp
			out[idx].status = status
			delete(open, kind)
		} else {
			// End marker without a start: a zero-length bar at least
			// records that the phase happened.
			out = append(out, stageSpan{
				id:     spanID(e, kind),
				label:  string(kind),
				status: status,
				start:  e.Timestamp,
				end:    e.Timestamp,
			})
		}
	}

	growUntil := now
	if p.EndTime != nil && growUntil.After(*p.EndTime) {
		growUntil = *p.EndTime
	}
	for _, idx := range open {
		if out[idx].end.Before(growUntil) {
			out[idx].end = growUntil
		}
	}
	return out
}

func isPhaseStart(t models.EventType) bool {
	switch t {
	case models.EventBuildStart, models.EventTestStart,
		models.EventSyncStart, models.EventDeployStart:
		return true
	}
	return false
}

func spanID(e models.PipelineEvent, kind models.StageKind) string {
	if e.StageID != "" {
		return e.StageID
	}
	if e.ID != "" {
		return e.ID
	}
	return "evt-" + string(kind)
}
