package tui

import (
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

// treeLimit caps how many pipelines the tree shows at once.
const treeLimit = 100

// buildRows flattens the pipeline cache into the visible tree rows.
// While the first list fetch is outstanding a single loading placeholder
// stands in for the whole tree; once resolved it is replaced atomically
// by the pipeline rows, or by an empty marker when nothing came back.
func buildRows(pipelines []models.Pipeline, expanded map[string]bool, loading bool) []node {
	if loading {
		return []node{{kind: nodeLoading}}
	}
	if len(pipelines) == 0 {
		return []node{{kind: nodeEmpty}}
	}

	var rows []node
	for _, p := range pipelines {
		rows = append(rows, node{kind: nodePipeline, pipeline: p})
		if !expanded[p.ID] || !expandable(p) {
			continue
		}
		for _, s := range p.Stages {
			rows = append(rows, node{kind: nodeStage, stage: s, parentID: p.ID})
		}
	}
	return rows
}

// clampCursor keeps the selection on a real row after the tree changes
// shape underneath it.
func clampCursor(cursor, rows int) int {
	if rows == 0 {
		return 0
	}
	if cursor >= rows {
		return rows - 1
	}
	if cursor < 0 {
		return 0
	}
	return cursor
}
