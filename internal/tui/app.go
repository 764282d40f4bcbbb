// Package tui provides the interactive terminal UI for the CI/CD
// monitor: the pipeline tree, the stage timeline, and the metrics and
// analysis views.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/cmxela/thinkube-cicd-monitor/internal/api"
	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
	"github.com/cmxela/thinkube-cicd-monitor/internal/notify"
	"github.com/cmxela/thinkube-cicd-monitor/internal/reconcile"
	"github.com/cmxela/thinkube-cicd-monitor/internal/stream"
	"github.com/cmxela/thinkube-cicd-monitor/internal/timeline"
)

// Options wires the TUI to the services owned by the watch command.
// Tracker and Notifier may be nil.
type Options struct {
	Client          *api.Client
	Reconciler      *reconcile.Reconciler
	Tracker         *stream.Tracker
	Notifier        *notify.Notifier
	RefreshInterval time.Duration
}

// App is the main TUI application model.
type App struct {
	client       *api.Client
	rec          *reconcile.Reconciler
	tracker      *stream.Tracker
	notifier     *notify.Notifier
	refreshEvery time.Duration

	width  int
	height int
	mode   string // "tree", "timeline", "metrics", "analysis"

	spin   spinner.Model
	detail viewport.Model

	loading  bool
	rows     []node
	cursor   int
	expanded map[string]bool
	fetching map[string]bool

	timelineID string
	chart      timeline.Chart
	barIdx     int

	metricsApp string
	metrics    models.Metrics
	analysis   *reconcile.Analysis

	message string
	notes   chan notify.Notification
}

// New creates the TUI application model.
func New(opts Options) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(cyanColor)

	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 30 * time.Second
	}

	return &App{
		client:       opts.Client,
		rec:          opts.Reconciler,
		tracker:      opts.Tracker,
		notifier:     opts.Notifier,
		refreshEvery: opts.RefreshInterval,
		mode:         "tree",
		spin:         sp,
		detail:       viewport.New(80, 20),
		loading:      true,
		expanded:     make(map[string]bool),
		fetching:     make(map[string]bool),
		notes:        make(chan notify.Notification, 16),
	}
}

// Run starts the TUI and blocks until the user quits. While it runs,
// notifications are routed to the message bar instead of the log.
func (a *App) Run() error {
	if a.notifier != nil {
		a.notifier.SetSink(func(n notify.Notification) {
			select {
			case a.notes <- n:
			default:
			}
		})
		defer a.notifier.SetSink(nil)
	}

	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spin.Tick,
		a.fetchList(),
		a.waitChange(),
		a.waitNote(),
		a.tickCmd(),
	)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.detail.Width = msg.Width
		a.detail.Height = msg.Height - 14
		if a.detail.Height < 3 {
			a.detail.Height = 3
		}

	case spinner.TickMsg:
		if a.loading {
			var cmd tea.Cmd
			a.spin, cmd = a.spin.Update(msg)
			a.rebuildTree()
			return a, cmd
		}

	case pipelinesLoadedMsg:
		a.loading = false
		a.rebuildTree()

	case detailLoadedMsg:
		delete(a.fetching, msg.id)
		a.rebuildTree()
		if a.mode == "timeline" && a.timelineID == msg.id {
			a.rebuildTimeline()
		}

	case detailFailedMsg:
		delete(a.fetching, msg.id)
		a.message = "Error: " + msg.err.Error()

	case changedMsg:
		a.rebuildTree()
		if a.mode == "timeline" {
			a.rebuildTimeline()
		}
		return a, a.waitChange()

	case tickMsg:
		if a.mode == "timeline" {
			a.rebuildTimeline()
		}
		return a, tea.Batch(a.fetchList(), a.tickCmd())

	case noteMsg:
		a.message = msg.Message
		return a, a.waitNote()

	case analysisMsg:
		a.analysis = msg.analysis
		a.mode = "analysis"

	case errMsg:
		a.message = "Error: " + msg.err.Error()
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return a, tea.Quit

	case "esc":
		if a.mode != "tree" {
			a.mode = "tree"
			a.analysis = nil
			a.rebuildTree()
		}

	case "up", "k":
		if a.mode == "tree" && a.cursor > 0 {
			a.cursor--
		} else if a.mode == "timeline" {
			a.detail.LineUp(1)
		}

	case "down", "j":
		if a.mode == "tree" && a.cursor < len(a.rows)-1 {
			a.cursor++
		} else if a.mode == "timeline" {
			a.detail.LineDown(1)
		}

	case "left", "h":
		if a.mode == "timeline" && a.barIdx > 0 {
			a.barIdx--
			a.scrollToBar()
		}

	case "right", "l":
		if a.mode == "timeline" && a.barIdx < len(a.chart.Bars)-1 {
			a.barIdx++
			a.scrollToBar()
		}

	case "enter":
		if a.mode == "tree" {
			return a, a.toggleSelected()
		}

	case "t":
		if p, ok := a.selectedPipeline(); ok {
			a.mode = "timeline"
			a.timelineID = p.ID
			a.barIdx = 0
			a.rebuildTimeline()
			if !p.DetailLoaded && !a.fetching[p.ID] {
				a.fetching[p.ID] = true
				return a, a.fetchDetail(p.ID)
			}
		}

	case "m":
		a.metricsApp = ""
		if p, ok := a.selectedPipeline(); ok {
			a.metricsApp = p.AppName
		}
		a.metrics = a.rec.Metrics(a.metricsApp, time.Time{})
		a.mode = "metrics"

	case "a":
		if p, ok := a.selectedPipeline(); ok {
			return a, a.analyze(p)
		}

	case "r":
		a.message = ""
		if a.mode == "timeline" && a.timelineID != "" {
			return a, tea.Batch(a.fetchList(), a.fetchDetail(a.timelineID))
		}
		return a, a.fetchList()
	}

	return a, nil
}

// toggleSelected expands or collapses the pipeline under the cursor.
// The first expansion marks the pipeline as interesting: its detail is
// fetched if missing and the stream tracker opens a push channel for
// it. That signal is the only coupling between the tree and the live
// update subscription.
func (a *App) toggleSelected() tea.Cmd {
	p, ok := a.selectedPipeline()
	if !ok || !expandable(p) {
		return nil
	}

	if a.expanded[p.ID] {
		delete(a.expanded, p.ID)
		a.rebuildTree()
		return nil
	}

	a.expanded[p.ID] = true
	if a.tracker != nil {
		a.tracker.Track(p.ID)
	}
	a.rebuildTree()

	if !p.DetailLoaded && !a.fetching[p.ID] {
		a.fetching[p.ID] = true
		return a.fetchDetail(p.ID)
	}
	return nil
}

func (a *App) selectedPipeline() (models.Pipeline, bool) {
	if a.cursor >= len(a.rows) {
		return models.Pipeline{}, false
	}
	row := a.rows[a.cursor]
	switch row.kind {
	case nodePipeline:
		return row.pipeline, true
	case nodeStage:
		return a.rec.Get(row.parentID)
	}
	return models.Pipeline{}, false
}

func (a *App) rebuildTree() {
	a.rows = buildRows(a.rec.RecentPipelines(treeLimit), a.expanded, a.loading)
	a.cursor = clampCursor(a.cursor, len(a.rows))
}

func (a *App) rebuildTimeline() {
	p, ok := a.rec.Get(a.timelineID)
	if !ok {
		a.chart = timeline.Chart{}
		return
	}
	a.chart = timeline.Build(p, time.Now())
	a.barIdx = clampCursor(a.barIdx, len(a.chart.Bars))
	a.detail.SetContent(a.renderStageDetail(p))
}

// scrollToBar keeps the detail entry for the selected bar in view.
func (a *App) scrollToBar() {
	a.detail.SetYOffset(a.barIdx * 2)
}

// View implements tea.Model.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Thinkube CI/CD Monitor"))
	if a.tracker != nil {
		tracked := len(a.tracker.Tracked())
		if tracked > 0 {
			b.WriteString("  " + headingStyle.Render(fmt.Sprintf("[%d live]", tracked)))
		}
	}
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", max(a.width, 20)) + "\n")

	switch a.mode {
	case "tree":
		b.WriteString(a.renderTree())
	case "timeline":
		b.WriteString(a.renderTimeline())
	case "metrics":
		b.WriteString(a.renderMetrics())
	case "analysis":
		b.WriteString(a.renderAnalysis())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case "tree":
		status = fmt.Sprintf(" Pipelines: %d | ↑↓:nav | Enter:expand | t:timeline | m:metrics | a:analyze | r:refresh | q:quit", a.pipelineCount())
	case "timeline":
		status = " ←→:select bar | ↑↓:scroll | r:refresh | Esc:back"
	default:
		status = " Esc:back | q:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 20)).Render(status))

	return b.String()
}

func (a *App) pipelineCount() int {
	n := 0
	for _, row := range a.rows {
		if row.kind == nodePipeline {
			n++
		}
	}
	return n
}

func (a *App) renderTree() string {
	height := a.height - 6
	if height < 5 {
		height = 5
	}

	lines := make([]string, 0, len(a.rows))
	for i, row := range a.rows {
		open := row.kind == nodePipeline && a.expanded[row.pipeline.ID]
		lines = append(lines, renderNode(row, i == a.cursor, open, a.spin.View()))
	}

	if len(lines) > height {
		start := a.cursor - height/2
		if start < 0 {
			start = 0
		}
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderTimeline() string {
	var b strings.Builder

	p, ok := a.rec.Get(a.timelineID)
	if !ok {
		return helpStyle.Render("  pipeline is no longer cached")
	}

	b.WriteString(fmt.Sprintf("  %s  %s\n\n", headingStyle.Render(p.AppName), shortID(p.ID)))
	b.WriteString(timeline.Render(a.chart, max(a.width-4, 40), a.barIdx))
	b.WriteString("\n\n")
	b.WriteString(a.detail.View())
	return b.String()
}

// renderStageDetail lists stages and events under the chart. Rows keep
// a fixed two-line rhythm so scrollToBar can line the selected bar up
// with its entry.
func (a *App) renderStageDetail(p models.Pipeline) string {
	var b strings.Builder

	for i, bar := range a.chart.Bars {
		label := bar.Label
		if label == "" {
			label = bar.StageID
		}
		line := fmt.Sprintf("%s %s  %s → %s",
			formatStageStatus(bar.Status), label,
			bar.Start.Format("15:04:05"), bar.End.Format("15:04:05"))
		if i == a.barIdx {
			b.WriteString(selectedStyle.Render("▶ " + line))
		} else {
			b.WriteString(itemStyle.Render("  " + line))
		}
		b.WriteString("\n")

		detail := ""
		for _, s := range p.Stages {
			if s.ID == bar.StageID && s.ErrorMessage != "" {
				detail = s.ErrorMessage
			}
		}
		b.WriteString(helpStyle.Render("      "+detail) + "\n")
	}

	if len(p.Events) > 0 {
		b.WriteString("\n" + headingStyle.Render("  Events") + "\n")
		for _, e := range p.Events {
			marker := string(e.Type)
			if e.Type == models.EventUnknown && e.RawType != "" {
				marker = e.RawType
			}
			line := fmt.Sprintf("  %s  %s", e.Timestamp.Format("15:04:05"), marker)
			if e.Reason != "" {
				line += "  " + e.Reason
			}
			b.WriteString(itemStyle.Render(line) + "\n")
		}
	}
	return b.String()
}

func (a *App) renderMetrics() string {
	var b strings.Builder

	scope := a.metricsApp
	if scope == "" {
		scope = "all applications"
	}
	b.WriteString("\n  " + headingStyle.Render("Metrics: "+scope) + "\n\n")
	b.WriteString(fmt.Sprintf("  Total runs:    %d\n", a.metrics.TotalRuns))
	b.WriteString(fmt.Sprintf("  Succeeded:     %d\n", a.metrics.SucceededRuns))
	b.WriteString(fmt.Sprintf("  Failed:        %d\n", a.metrics.FailedRuns))
	b.WriteString(fmt.Sprintf("  Success rate:  %.1f%%\n", a.metrics.SuccessRate))
	if a.metrics.AvgDuration > 0 {
		b.WriteString(fmt.Sprintf("  Avg duration:  %s\n", formatDuration(a.metrics.AvgDuration)))
	}
	if len(a.metrics.FailureReasons) > 0 {
		b.WriteString("\n  " + headingStyle.Render("Failure reasons") + "\n")
		for reason, count := range a.metrics.FailureReasons {
			b.WriteString(fmt.Sprintf("    %dx %s\n", count, reason))
		}
	}
	return b.String()
}

func (a *App) renderAnalysis() string {
	if a.analysis == nil {
		return "\n  " + a.spin.View() + " Analyzing..."
	}

	var b strings.Builder
	r := a.analysis

	b.WriteString(fmt.Sprintf("\n  %s  %s\n\n", headingStyle.Render("Analysis: "+r.AppName), shortID(r.PipelineID)))
	b.WriteString(fmt.Sprintf("  Status:  %s\n", formatPipelineStatus(r.Status)))
	b.WriteString(fmt.Sprintf("  Score:   %d\n", r.Score))
	b.WriteString(fmt.Sprintf("  %s\n", r.Summary))

	if len(r.Bottlenecks) > 0 {
		b.WriteString("\n  " + headingStyle.Render("Bottlenecks") + "\n")
		for _, bn := range r.Bottlenecks {
			b.WriteString(fmt.Sprintf("    [%s] %s between %s and %s\n",
				bn.Severity, formatDuration(bn.Gap), bn.After, bn.Before))
		}
	}
	if len(r.Failures) > 0 {
		b.WriteString("\n  " + headingStyle.Render("Failures") + "\n")
		for _, f := range r.Failures {
			line := fmt.Sprintf("    %s  %s", f.Time.Format("15:04:05"), f.Type)
			if f.Reason != "" {
				line += "  " + f.Reason
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

func (a *App) fetchList() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
		defer cancel()
		for _, p := range a.client.ListPipelines(ctx, api.ListOptions{Limit: treeLimit}) {
			a.rec.IngestSnapshot(p)
		}
		return pipelinesLoadedMsg{}
	}
}

func (a *App) fetchDetail(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
		defer cancel()
		p, err := a.client.GetPipeline(ctx, id)
		if err != nil {
			return detailFailedMsg{id: id, err: err}
		}
		a.rec.IngestSnapshot(*p)
		return detailLoadedMsg{id: id}
	}
}

// analyze makes sure the pipeline's events are loaded before running
// the analysis over the cached run.
func (a *App) analyze(p models.Pipeline) tea.Cmd {
	return func() tea.Msg {
		if !p.DetailLoaded {
			ctx, cancel := context.WithTimeout(context.Background(), api.DefaultTimeout)
			defer cancel()
			if full, err := a.client.GetPipeline(ctx, p.ID); err == nil {
				a.rec.IngestSnapshot(*full)
			}
		}
		res, err := a.rec.Analyze(p.ID)
		if err != nil {
			if errors.Is(err, reconcile.ErrUnknownPipeline) {
				return errMsg{fmt.Errorf("pipeline %s is no longer cached", shortID(p.ID))}
			}
			return errMsg{err}
		}
		return analysisMsg{analysis: res}
	}
}

func (a *App) waitChange() tea.Cmd {
	return func() tea.Msg {
		<-a.rec.Changed()
		return changedMsg{}
	}
}

func (a *App) waitNote() tea.Cmd {
	return func() tea.Msg {
		return noteMsg(<-a.notes)
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(a.refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

type pipelinesLoadedMsg struct{}

type detailLoadedMsg struct {
	id string
}

type detailFailedMsg struct {
	id  string
	err error
}

type changedMsg struct{}

type tickMsg time.Time

type noteMsg notify.Notification

type analysisMsg struct {
	analysis *reconcile.Analysis
}

type errMsg struct {
	err error
}
