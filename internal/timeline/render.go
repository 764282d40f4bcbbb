package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/cmxela/thinkube-cicd-monitor/internal/models"
)

var (
	barPending   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // Yellow
	barRunning   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // Cyan
	barSucceeded = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // Green
	barFailed    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // Red
	barMuted     = lipgloss.NewStyle().Foreground(lipgloss.Color("8")) // Gray

	axisStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
)

const labelWidth = 14

func barStyle(s models.StageStatus) lipgloss.Style {
	switch s {
	case models.StageStatusRunning:
		return barRunning
	case models.StageStatusSucceeded:
		return barSucceeded
	case models.StageStatusFailed:
		return barFailed
	case models.StageStatusPending:
		return barPending
	default:
		return barMuted
	}
}

// Render draws the chart as fixed-width text, one bar per stage, with a
// time axis underneath. selected highlights that bar's row; pass a
// negative index for no selection.
func Render(c Chart, width, selected int) string {
	if len(c.Bars) == 0 {
		return axisStyle.Render("no timeline data")
	}

	// Label column, bar area, duration column.
	barArea := width - labelWidth - 10
	if barArea < 10 {
		barArea = 10
	}

	var b strings.Builder
	for i, bar := range c.Bars {
		label := bar.Label
		if label == "" {
			label = bar.StageID
		}
		// Truncate on runes, not bytes, so multi-byte stage names stay
		// valid UTF-8.
		if r := []rune(label); len(r) > labelWidth-1 {
			label = string(r[:labelWidth-1])
		}

		lead := int(bar.Offset * float64(barArea))
		fill := int(bar.Width*float64(barArea) + 0.5)
		if fill < 1 {
			fill = 1
		}
		if lead+fill > barArea {
			lead = barArea - fill
			if lead < 0 {
				lead = 0
				fill = barArea
			}
		}

		name := fmt.Sprintf("%-*s", labelWidth, label)
		if i == selected {
			name = selectedStyle.Render(name)
		}
		b.WriteString(name)
		b.WriteString(strings.Repeat(" ", lead))
		b.WriteString(barStyle(bar.Status).Render(strings.Repeat("█", fill)))
		b.WriteString(strings.Repeat(" ", barArea-lead-fill))
		b.WriteString("  " + formatDuration(bar.End.Sub(bar.Start)))
		b.WriteString("\n")
	}

	b.WriteString(axisStyle.Render(axisLine(c, labelWidth+barArea)))
	return b.String()
}

func axisLine(c Chart, lineWidth int) string {
	left := c.Start.Format("15:04:05")
	right := "+" + formatDuration(c.Span)
	gap := lineWidth - len(left) - len(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}
