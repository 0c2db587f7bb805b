package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"convoy/internal/pipeline"
)

const runElapsedPrecision = 10 * time.Millisecond

var (
	summaryTitleStyle = lipgloss.NewStyle().Bold(true)
	summaryLabelStyle = lipgloss.NewStyle().Faint(true).Width(12)

	succeededStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	timedOutStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	cancelledStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
)

// renderSummary formats the terminal state of a run for stdout.
func renderSummary(run *pipeline.Run, outDir string) string {
	var sb strings.Builder

	sb.WriteString(summaryTitleStyle.Render(fmt.Sprintf("run %s", run.ID)))
	sb.WriteString("\n")

	row := func(label, value string) {
		sb.WriteString(summaryLabelStyle.Render(label))
		sb.WriteString(value)
		sb.WriteString("\n")
	}

	row("state", stateStyle(run.State).Render(string(run.State)))
	row("items", fmt.Sprintf("%d", len(run.WorkItems)))
	row("elapsed", run.Elapsed.Round(runElapsedPrecision).String())
	if run.Polls > 0 {
		row("polls", fmt.Sprintf("%d", run.Polls))
	}
	if len(run.Extraction.Copied) > 0 {
		row("extracted", fmt.Sprintf("%d artifact(s) -> %s", len(run.Extraction.Copied), outDir))
	}
	if len(run.Extraction.Skipped) > 0 {
		row("skipped", strings.Join(run.Extraction.Skipped, ", "))
	}
	if run.Err != nil {
		row("error", run.Err.Error())
	}

	return strings.TrimRight(sb.String(), "\n")
}

func stateStyle(s pipeline.State) lipgloss.Style {
	switch s {
	case pipeline.StateSucceeded:
		return succeededStyle
	case pipeline.StateTimedOut:
		return timedOutStyle
	case pipeline.StateCancelled:
		return cancelledStyle
	default:
		return failedStyle
	}
}
