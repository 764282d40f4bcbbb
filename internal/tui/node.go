package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

// nodeKind enumerates what a tree row can be. renderNode switches over
// every kind, so an unmapped kind shows up in the UI instead of
// vanishing.
type nodeKind int

const (
	nodePipeline nodeKind = iota
	nodeStage
	nodeLoading
	nodeEmpty
)

// node is one visible row of the pipeline tree.
type node struct {
	kind     nodeKind
	pipeline models.Pipeline // set for nodePipeline
	stage    models.Stage    // set for nodeStage
	parentID string          // owning pipeline for nodeStage
}

// expandable reports whether a pipeline row can be opened: it needs a
// stage array or at least a stage count hint. Anything else is a leaf.
func expandable(p models.Pipeline) bool {
	return len(p.Stages) > 0 || p.StageCount > 0
}

// renderNode draws one tree row. selected rows get the highlight style,
// open marks an expanded pipeline, and the spinner string is only used
// by the loading placeholder.
func renderNode(n node, selected, open bool, spinnerView string) string {
	switch n.kind {
	case nodePipeline:
		return renderPipelineRow(n.pipeline, selected, open)
	case nodeStage:
		return renderStageRow(n.stage, selected)
	case nodeLoading:
		return itemStyle.Render(spinnerView + " Loading pipelines...")
	case nodeEmpty:
		return itemStyle.Render(lipgloss.NewStyle().Foreground(mutedColor).Render("No pipelines yet. Press r to refresh."))
	default:
		return fmt.Sprintf("unknown node kind %d", n.kind)
	}
}

func renderPipelineRow(p models.Pipeline, selected, open bool) string {
	arrow := "  "
	if expandable(p) {
		arrow = "▸ "
		if open {
			arrow = "▾ "
		}
	}

	id := p.ID
	if len(id) > 8 {
		id = id[:8]
	}

	dur := "-"
	if p.Duration != nil {
		dur = formatDuration(*p.Duration)
	} else if !p.StartTime.IsZero() && !p.Status.IsTerminal() {
		dur = formatDuration(time.Since(p.StartTime))
	}

	line := fmt.Sprintf("%s%s  %s  %s  %s", arrow, formatPipelineStatus(p.Status), p.AppName, id, dur)
	if selected {
		return selectedStyle.Render("▶ " + line)
	}
	return itemStyle.Render("  " + line)
}

func renderStageRow(s models.Stage, selected bool) string {
	dur := ""
	if s.Duration != nil {
		dur = "  " + formatDuration(*s.Duration)
	}

	line := fmt.Sprintf("    ├ %s %s%s", formatStageStatus(s.Status), s.Name, dur)
	if s.ErrorMessage != "" {
		line += "  " + lipgloss.NewStyle().Foreground(errorColor).Render(s.ErrorMessage)
	}
	if selected {
		return selectedStyle.Render("▶ " + line)
	}
	return itemStyle.Render("  " + line)
}

func formatPipelineStatus(status models.PipelineStatus) string {
	switch status {
	case models.PipelineStatusPending:
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ PENDING")
	case models.PipelineStatusRunning:
		return lipgloss.NewStyle().Foreground(cyanColor).Render("◑ RUNNING")
	case models.PipelineStatusSucceeded:
		return lipgloss.NewStyle().Foreground(successColor).Render("● DONE")
	case models.PipelineStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ FAILED")
	case models.PipelineStatusCancelled:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("◌ CANCELLED")
	default:
		return string(status)
	}
}

func formatStageStatus(status models.StageStatus) string {
	switch status {
	case models.StageStatusPending:
		return lipgloss.NewStyle().Foreground(warningColor).Render("○")
	case models.StageStatusRunning:
		return lipgloss.NewStyle().Foreground(cyanColor).Render("◑")
	case models.StageStatusSucceeded:
		return lipgloss.NewStyle().Foreground(successColor).Render("●")
	case models.StageStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗")
	case models.StageStatusSkipped:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("◌")
	default:
		return "?"
	}
}
