package tui

import (
	"testing"
	"time"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

func pipelineWithStages(id string, n int) models.Pipeline {
	p := models.Pipeline{
		ID:        id,
		AppName:   "demo",
		Status:    models.PipelineStatusRunning,
		StartTime: time.Unix(1000, 0),
	}
	for i := 0; i < n; i++ {
		p.Stages = append(p.Stages, models.Stage{
			ID:        id + "-stage",
			Name:      "build",
			Status:    models.StageStatusRunning,
			StartedAt: time.Unix(1000, 0),
		})
	}
	p.StageCount = n
	return p
}

func TestBuildRowsLoadingPlaceholder(t *testing.T) {
	rows := buildRows(nil, map[string]bool{}, true)
	if len(rows) != 1 || rows[0].kind != nodeLoading {
		t.Fatalf("expected single loading row, got %v", rows)
	}
}

func TestBuildRowsEmptyAfterLoad(t *testing.T) {
	rows := buildRows(nil, map[string]bool{}, false)
	if len(rows) != 1 || rows[0].kind != nodeEmpty {
		t.Fatalf("expected single empty row, got %v", rows)
	}
}

func TestBuildRowsExpandsOnlyMarkedPipelines(t *testing.T) {
	pipelines := []models.Pipeline{
		pipelineWithStages("p1", 2),
		pipelineWithStages("p2", 1),
	}
	expanded := map[string]bool{"p1": true}

	rows := buildRows(pipelines, expanded, false)

	// p1, its two stages, then p2 collapsed.
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	if rows[0].kind != nodePipeline || rows[0].pipeline.ID != "p1" {
		t.Errorf("row 0 should be pipeline p1")
	}
	if rows[1].kind != nodeStage || rows[1].parentID != "p1" {
		t.Errorf("row 1 should be a stage of p1")
	}
	if rows[3].kind != nodePipeline || rows[3].pipeline.ID != "p2" {
		t.Errorf("row 3 should be pipeline p2")
	}
}

func TestExpandableNeedsStagesOrHint(t *testing.T) {
	leaf := models.Pipeline{ID: "leaf"}
	if expandable(leaf) {
		t.Error("pipeline without stages or hint must be a leaf")
	}

	hinted := models.Pipeline{ID: "hinted", StageCount: 3}
	if !expandable(hinted) {
		t.Error("stage count hint should make the pipeline expandable")
	}

	withStages := pipelineWithStages("p1", 1)
	if !expandable(withStages) {
		t.Error("pipeline with stages should be expandable")
	}
}

func TestExpandedLeafStaysCollapsed(t *testing.T) {
	leaf := models.Pipeline{ID: "leaf", StartTime: time.Unix(1, 0)}
	rows := buildRows([]models.Pipeline{leaf}, map[string]bool{"leaf": true}, false)
	if len(rows) != 1 {
		t.Fatalf("leaf pipeline must not produce stage rows, got %d rows", len(rows))
	}
}

func TestClampCursor(t *testing.T) {
	cases := []struct {
		cursor, rows, want int
	}{
		{0, 0, 0},
		{5, 3, 2},
		{-1, 3, 0},
		{1, 3, 1},
	}
	for _, c := range cases {
		if got := clampCursor(c.cursor, c.rows); got != c.want {
			t.Errorf("clampCursor(%d, %d) = %d, want %d", c.cursor, c.rows, got, c.want)
		}
	}
}
