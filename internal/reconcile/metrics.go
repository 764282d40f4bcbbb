package reconcile

import (
	"fmt"
	"time"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

// Metrics aggregates the cached pipelines for one application. A zero
// since means no time filter; an empty app matches every application.
func (r *Reconciler) Metrics(app string, since time.Time) models.Metrics {
	r.mu.RLock()
	runs := make([]models.Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		if app != "" && p.AppName != app {
			continue
		}
		if !since.IsZero() && p.StartTime.Before(since) {
			continue
		}
		runs = append(runs, *p)
	}
	r.mu.RUnlock()

	m := models.Metrics{AppName: app}
	var durationSum time.Duration
	var durationCount int

	for i := range runs {
		p := &runs[i]
		m.TotalRuns++
		switch p.Status {
		case models.PipelineStatusSucceeded:
			m.SucceededRuns++
		case models.PipelineStatusFailed:
			m.FailedRuns++
			if reason := p.FailureReason(); reason != "" {
				if m.FailureReasons == nil {
					m.FailureReasons = make(map[string]int)
				}
				m.FailureReasons[reason]++
			}
		}
		if p.Duration != nil {
			durationSum += *p.Duration
			durationCount++
		}
	}

	if m.TotalRuns > 0 {
		m.SuccessRate = float64(m.SucceededRuns) / float64(m.TotalRuns) * 100
	}
	if durationCount > 0 {
		m.AvgDuration = durationSum / time.Duration(durationCount)
	}
	return m
}

// Bottleneck thresholds for inter-event gaps.
const (
	bottleneckThreshold = 2 * time.Minute
	severeThreshold     = 5 * time.Minute
)

// Analysis score weights.
const (
	baseScore         = 100
	bottleneckPenalty = 10
	failurePenalty    = 20
)

// Severity levels for bottlenecks.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Analysis is a heuristic health report for one pipeline run. Score
// starts at 100 and loses 10 per bottleneck and 20 per failure; it is
// not floored and can go negative on a rough run.
type Analysis struct {
	PipelineID  string
	AppName     string
	Status      models.PipelineStatus
	Score       int
	Summary     string
	Bottlenecks []Bottleneck
	Failures    []FailurePoint
}

// Bottleneck is a suspicious gap between two consecutive events.
type Bottleneck struct {
	After    string
	Before   string
	Gap      time.Duration
	Severity string
}

// FailurePoint is one failed event in the run.
type FailurePoint struct {
	Type   models.EventType
	Reason string
	Time   time.Time
}

// Analyze derives bottlenecks, failure points and a heuristic score for
// a cached pipeline.
func (r *Reconciler) Analyze(id string) (*Analysis, error) {
	p, ok := r.Get(id)
	if !ok {
		return nil, ErrUnknownPipeline
	}

	a := &Analysis{
		PipelineID: p.ID,
		AppName:    p.AppName,
		Status:     p.Status,
		Score:      baseScore,
	}

	for i := 1; i < len(p.Events); i++ {
		prev, cur := p.Events[i-1], p.Events[i]
		if prev.Timestamp.IsZero() || cur.Timestamp.IsZero() {
			continue
		}
		gap := cur.Timestamp.Sub(prev.Timestamp)
		if gap <= bottleneckThreshold {
			continue
		}
		severity := SeverityMedium
		if gap > severeThreshold {
			severity = SeverityHigh
		}
		a.Bottlenecks = append(a.Bottlenecks, Bottleneck{
			After:    markerName(prev),
			Before:   markerName(cur),
			Gap:      gap,
			Severity: severity,
		})
	}

	for _, e := range p.Events {
		if !e.IsFailure() {
			continue
		}
		a.Failures = append(a.Failures, FailurePoint{
			Type:   e.Type,
			Reason: e.Reason,
			Time:   e.Timestamp,
		})
	}

	a.Score -= bottleneckPenalty * len(a.Bottlenecks)
	a.Score -= failurePenalty * len(a.Failures)
	a.Summary = summarize(&p)
	return a, nil
}

func markerName(e models.PipelineEvent) string {
	if e.Type != models.EventUnknown {
		return string(e.Type)
	}
	if e.RawType != "" {
		return e.RawType
	}
	return string(models.EventUnknown)
}

func summarize(p *models.Pipeline) string {
	switch p.Status {
	case models.PipelineStatusSucceeded:
		if p.Duration != nil {
			return fmt.Sprintf("Pipeline completed successfully in %s.", p.Duration.Round(time.Second))
		}
		return "Pipeline completed successfully."
	case models.PipelineStatusFailed:
		if reason := p.FailureReason(); reason != "" {
			return fmt.Sprintf("Pipeline failed: %s.", reason)
		}
		return "Pipeline failed."
	case models.PipelineStatusCancelled:
		return "Pipeline was cancelled before finishing."
	case models.PipelineStatusRunning:
		return "Pipeline is still running."
	case models.PipelineStatusPending:
		return "Pipeline has not started yet."
	default:
		return "Pipeline state is unknown."
	}
}
