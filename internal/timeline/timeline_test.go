package timeline

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

var chartBase = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return chartBase.Add(offset)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func TestBuildFullWindowStage(t *testing.T) {
	end := at(5 * time.Minute)
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		EndTime:   &end,
		Stages: []models.Stage{
			{ID: "s1", Name: "build", Status: models.StageStatusSucceeded, StartedAt: chartBase, CompletedAt: ptr(end)},
		},
	}

	c := Build(p, end)
	if len(c.Bars) != 1 {
		t.Fatalf("Expected 1 bar, got %d", len(c.Bars))
	}
	bar := c.Bars[0]
	if bar.Offset != 0 {
		t.Errorf("Expected offset 0 for a full-window stage, got %v", bar.Offset)
	}
	if bar.Width != 1.0 {
		t.Errorf("Expected width 1.0 for a full-window stage, got %v", bar.Width)
	}
	if c.Span != 5*time.Minute {
		t.Errorf("Expected span 5m, got %v", c.Span)
	}
}

func TestBuildClampsZeroDurationStage(t *testing.T) {
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Stages: []models.Stage{
			{ID: "s1", Name: "build", Status: models.StageStatusSucceeded, StartedAt: chartBase, CompletedAt: ptr(at(5 * time.Minute))},
			{ID: "s2", Name: "sync", Status: models.StageStatusSucceeded, StartedAt: at(2 * time.Minute), CompletedAt: ptr(at(2 * time.Minute))},
		},
	}

	c := Build(p, at(5*time.Minute))
	if len(c.Bars) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(c.Bars))
	}
	sync := c.Bars[1]
	if sync.Width != minBarWidth {
		t.Errorf("Expected zero-duration stage clamped to %v, got %v", minBarWidth, sync.Width)
	}
	if sync.Offset != 0.4 {
		t.Errorf("Expected offset 0.4, got %v", sync.Offset)
	}
}

func TestBuildRunningStageExtendsToNow(t *testing.T) {
	now := at(4 * time.Minute)
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Stages: []models.Stage{
			{ID: "s1", Name: "deploy", Status: models.StageStatusRunning, StartedAt: chartBase},
		},
	}

	c := Build(p, now)
	if len(c.Bars) != 1 {
		t.Fatalf("Expected 1 bar, got %d", len(c.Bars))
	}
	if !c.Bars[0].End.Equal(now) {
		t.Errorf("Expected running stage to extend to now, got end %v", c.Bars[0].End)
	}
	if c.Bars[0].Width != 1.0 {
		t.Errorf("Expected running stage width 1.0, got %v", c.Bars[0].Width)
	}
}

func TestBuildKeepsOffsetPlusWidthInRange(t *testing.T) {
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Stages: []models.Stage{
			{ID: "s1", Name: "build", Status: models.StageStatusSucceeded, StartedAt: chartBase, CompletedAt: ptr(at(5 * time.Minute))},
			{ID: "s2", Name: "deploy", Status: models.StageStatusSucceeded, StartedAt: at(5*time.Minute - time.Second), CompletedAt: ptr(at(5 * time.Minute))},
		},
	}

	c := Build(p, at(5*time.Minute))
	deploy := c.Bars[1]
	if deploy.Width != minBarWidth {
		t.Errorf("Expected clamped width %v, got %v", minBarWidth, deploy.Width)
	}
	if deploy.Offset+deploy.Width > 1.0 {
		t.Errorf("Expected offset+width <= 1, got %v", deploy.Offset+deploy.Width)
	}
}

func TestBuildSkipsUnstartedStages(t *testing.T) {
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Stages: []models.Stage{
			{ID: "s1", Name: "build", Status: models.StageStatusSucceeded, StartedAt: chartBase, CompletedAt: ptr(at(time.Minute))},
			{ID: "s2", Name: "deploy", Status: models.StageStatusPending},
		},
	}

	c := Build(p, at(2*time.Minute))
	if len(c.Bars) != 1 {
		t.Fatalf("Expected unstarted stage to be skipped, got %d bars", len(c.Bars))
	}
	if c.Bars[0].StageID != "s1" {
		t.Errorf("Expected bar for s1, got %s", c.Bars[0].StageID)
	}
}

func TestBuildEmptyPipeline(t *testing.T) {
	c := Build(models.Pipeline{ID: "p1", StartTime: chartBase}, at(time.Minute))
	if len(c.Bars) != 0 {
		t.Fatalf("Expected no bars for an empty pipeline, got %d", len(c.Bars))
	}
	if c.Span != 0 {
		t.Errorf("Expected zero span, got %v", c.Span)
	}
}

func TestBuildFromEventPairs(t *testing.T) {
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Events: []models.PipelineEvent{
			{ID: "e1", Type: models.EventBuildStart, Timestamp: chartBase},
			{ID: "e2", Type: models.EventBuildComplete, Timestamp: at(60 * time.Second)},
			{ID: "e3", Type: models.EventDeployStart, Timestamp: at(60 * time.Second)},
			{ID: "e4", Type: models.EventDeployTimeout, Timestamp: at(100 * time.Second)},
		},
	}

	c := Build(p, at(100*time.Second))
	if len(c.Bars) != 2 {
		t.Fatalf("Expected 2 bars from event pairs, got %d", len(c.Bars))
	}

	build := c.Bars[0]
	if build.Label != "build" || build.Status != models.StageStatusSucceeded {
		t.Errorf("Unexpected build bar: %+v", build)
	}
	if build.Offset != 0 || build.Width != 0.6 {
		t.Errorf("Expected build bar at 0/0.6, got %v/%v", build.Offset, build.Width)
	}

	deploy := c.Bars[1]
	if deploy.Label != "deploy" || deploy.Status != models.StageStatusFailed {
		t.Errorf("Unexpected deploy bar: %+v", deploy)
	}
	if deploy.Offset != 0.6 || deploy.Width != 0.4 {
		t.Errorf("Expected deploy bar at 0.6/0.4, got %v/%v", deploy.Offset, deploy.Width)
	}
}

func TestBuildWorkflowFailureClosesOpenPhases(t *testing.T) {
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Events: []models.PipelineEvent{
			{ID: "e1", Type: models.EventBuildStart, Timestamp: chartBase},
			{ID: "e2", Type: models.EventWorkflowFailed, Timestamp: at(50 * time.Second)},
		},
	}

	c := Build(p, at(2*time.Minute))
	if len(c.Bars) != 1 {
		t.Fatalf("Expected 1 bar, got %d", len(c.Bars))
	}
	bar := c.Bars[0]
	if bar.Status != models.StageStatusFailed {
		t.Errorf("Expected open phase closed as failed, got %s", bar.Status)
	}
	if !bar.End.Equal(at(50 * time.Second)) {
		t.Errorf("Expected phase closed at the workflow failure, got %v", bar.End)
	}
}

func TestRenderLinesAndDurations(t *testing.T) {
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Stages: []models.Stage{
			{ID: "s1", Name: "build", Status: models.StageStatusSucceeded, StartedAt: chartBase, CompletedAt: ptr(at(time.Minute))},
			{ID: "s2", Name: "deploy", Status: models.StageStatusRunning, StartedAt: at(time.Minute)},
		},
	}

	out := Render(Build(p, at(3*time.Minute)), 80, -1)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 2 bar lines plus the axis, got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], "build") || !strings.Contains(lines[0], "1m0s") {
		t.Errorf("Unexpected build line: %q", lines[0])
	}
	if !strings.Contains(lines[1], "deploy") || !strings.Contains(lines[1], "2m0s") {
		t.Errorf("Unexpected deploy line: %q", lines[1])
	}
	if !strings.Contains(lines[2], "10:00:00") || !strings.Contains(lines[2], "+3m0s") {
		t.Errorf("Unexpected axis line: %q", lines[2])
	}
}

func TestRenderTruncatesLabelsOnRunes(t *testing.T) {
	p := models.Pipeline{
		ID:        "p1",
		StartTime: chartBase,
		Stages: []models.Stage{
			{ID: "s1", Name: "déploiement-détaillé", Status: models.StageStatusSucceeded, StartedAt: chartBase, CompletedAt: ptr(at(time.Minute))},
		},
	}

	out := Render(Build(p, at(time.Minute)), 80, -1)
	if !utf8.ValidString(out) {
		t.Fatalf("Chart contains invalid UTF-8: %q", out)
	}
	if !strings.Contains(out, "déploiement-d") {
		t.Errorf("Expected label truncated on a rune boundary, got %q", out)
	}
}

func TestRenderEmptyChart(t *testing.T) {
	out := Render(Chart{}, 80, -1)
	if !strings.Contains(out, "no timeline data") {
		t.Errorf("Expected empty chart placeholder, got %q", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{90 * time.Second, "1m30s"},
		{0, "0s"},
		{500 * time.Millisecond, "0s"},
		{3661 * time.Second, "1h1m1s"},
		{-time.Second, "0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
