package tui

import (
	"fmt"
	"strings"
	"time"
)

func (m Model) render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	width := 0
	for _, r := range m.rows {
		width = max(width, len(r.name))
	}
	for i, r := range m.rows {
		b.WriteString(m.renderRow(r, width))
		if i < len(m.rows)-1 {
			b.WriteByte('\n')
		}
	}

	out := boxStyle.Render(b.String()) + "\n"
	switch {
	case m.report != nil:
		rep := m.report
		out += statsStyle.Render(fmt.Sprintf("Tier %s  Score %d/100  Risk %s  %d finding(s)",
			rep.Tier, rep.SecurityScore, rep.RiskLevel, len(rep.Findings))) + "\n"
	case m.cancelled:
		out += reasonStyle.Render("Cancelled.") + "\n"
	default:
		out += helpBarStyle.Render(helpLine()) + "\n"
	}
	return out
}

func (m Model) renderRow(r row, width int) string {
	name := nameStyle.Render(fmt.Sprintf("%-*s", width, r.name))
	switch r.state {
	case stateRunning:
		return fmt.Sprintf("%s %s  %s", m.spinner.View(), name, runningStyle.Render("running"))
	case stateDone:
		stats := fmt.Sprintf("%d finding(s)", r.findings)
		if r.score != nil {
			stats += fmt.Sprintf("  score %d", *r.score)
		}
		return fmt.Sprintf("%s %s  %s  %s", doneStyle.Render("✓"), name, stats, pendingStyle.Render(formatDuration(r.duration)))
	case stateFailed:
		line := fmt.Sprintf("%s %s  %s  %s", failedStyle.Render("✗"), name, failedStyle.Render(string(r.failure)), pendingStyle.Render(formatDuration(r.duration)))
		if m.showDetails && r.reason != "" {
			line += "\n    " + reasonStyle.Render(r.reason)
		}
		return line
	default:
		return fmt.Sprintf("%s %s  %s", pendingStyle.Render("·"), name, pendingStyle.Render("waiting"))
	}
}

func helpLine() string {
	parts := make([]string, 0, 2)
	for _, k := range []struct{ key, desc string }{
		{keys.Details.Help().Key, keys.Details.Help().Desc},
		{keys.Quit.Help().Key, keys.Quit.Help().Desc},
	} {
		parts = append(parts, k.key+" "+k.desc)
	}
	return strings.Join(parts, " • ")
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
