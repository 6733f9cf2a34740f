package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/scoring"
)

var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorBlue   = lipgloss.Color("#8be9fd")
	colorPurple = lipgloss.Color("#bd93f9")
	colorOrange = lipgloss.Color("#ffb86c")
	colorDim    = lipgloss.Color("#6272a4")
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	degradedStyle = lipgloss.NewStyle().
			Foreground(colorOrange).
			Bold(true)

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityCritical: lipgloss.NewStyle().Foreground(colorRed).Bold(true),
		model.SeverityHigh:     lipgloss.NewStyle().Foreground(colorRed),
		model.SeverityMedium:   lipgloss.NewStyle().Foreground(colorOrange),
		model.SeverityLow:      lipgloss.NewStyle().Foreground(colorYellow),
		model.SeverityInfo:     lipgloss.NewStyle().Foreground(colorDim),
	}

	riskStyles = map[model.RiskLevel]lipgloss.Style{
		model.RiskSafe:   lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		model.RiskLow:    lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		model.RiskMedium: lipgloss.NewStyle().Foreground(colorOrange).Bold(true),
		model.RiskHigh:   lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	}
)

// painter applies styles only when colour output is on.
type painter bool

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p {
		return text
	}
	return s.Render(text)
}

func renderText(w io.Writer, rep model.ConsolidatedReport, opts Options) error {
	p := painter(opts.Color)
	var b strings.Builder

	title := "Audit report"
	if name := subject(opts.Metadata); name != "" {
		title += ": " + name
	}
	b.WriteString(p.paint(headerStyle, title) + "\n")

	risk := p.paint(riskStyles[rep.RiskLevel], string(rep.RiskLevel))
	fmt.Fprintf(&b, "Score %d/100  Risk %s  Tier %s\n", rep.SecurityScore, risk, rep.Tier)
	if rep.Degraded {
		b.WriteString(p.paint(degradedStyle, "Degraded: fewer sources than configured contributed to this report.") + "\n")
	}
	if rep.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", rep.Error)
	}
	if rep.ContractType != "" {
		fmt.Fprintf(&b, "Contract type: %s\n", rep.ContractType)
	}
	if len(rep.KeyFeatures) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(rep.KeyFeatures, ", "))
	}
	if rep.Overview != "" {
		b.WriteString("\n" + rep.Overview + "\n")
	}

	b.WriteString("\n" + p.paint(sectionStyle, fmt.Sprintf("Findings (%d)", len(rep.Findings))) + "\n")
	if len(rep.Findings) == 0 {
		b.WriteString("  No issues found.\n")
	} else {
		b.WriteString("  " + p.paint(dimStyle, breakdown(rep.Findings)) + "\n")
	}
	for i, f := range rep.Findings {
		sev := p.paint(severityStyles[f.Severity], fmt.Sprintf("%-8s", f.Severity))
		fmt.Fprintf(&b, "\n  %d. %s %s", i+1, sev, f.Title)
		if f.ConsensusCount > 1 {
			b.WriteString(p.paint(dimStyle, fmt.Sprintf("  [%d sources: %s]", f.ConsensusCount, strings.Join(f.Sources, ", "))))
		} else if f.SourceTag != "" {
			b.WriteString(p.paint(dimStyle, "  ["+f.SourceTag+"]"))
		}
		b.WriteString("\n")
		if f.CodeReference != "" {
			b.WriteString("     " + reference(p, f.CodeReference) + "\n")
		}
		writeWrapped(&b, "     ", f.Description)
		if f.Impact != "" {
			writeWrapped(&b, "     Impact: ", f.Impact)
		}
		if f.Recommendation != "" {
			writeWrapped(&b, "     Fix: ", f.Recommendation)
		}
	}

	if len(rep.Sources) > 0 {
		b.WriteString("\n" + p.paint(sectionStyle, "Sources") + "\n")
		for _, s := range rep.Sources {
			if s.OK {
				score := "-"
				if s.Score != nil {
					score = fmt.Sprintf("%d", *s.Score)
				}
				fmt.Fprintf(&b, "  %s %-24s %d finding(s), score %s\n", p.paint(riskStyles[model.RiskSafe], "ok  "), s.Source, s.Findings, score)
				continue
			}
			fmt.Fprintf(&b, "  %s %-24s %s: %s\n", p.paint(riskStyles[model.RiskHigh], "fail"), s.Source, s.Failure, s.Reason)
		}
	}

	if rep.AnalysisDiscussion != "" {
		b.WriteString("\n" + p.paint(sectionStyle, "Discussion") + "\n")
		for _, line := range strings.Split(rep.AnalysisDiscussion, "\n") {
			b.WriteString("  " + line + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// reference renders a code reference, highlighting the Solidity part.
func reference(p painter, ref string) string {
	line, code := ParseReference(ref)
	loc := ""
	if line > 0 {
		loc = p.paint(dimStyle, fmt.Sprintf("L%d", line)) + "  "
	}
	if code == "" {
		return strings.TrimSpace(loc)
	}
	if !p {
		return loc + code
	}
	return loc + HighlightSolidity([]string{code})[0].ANSI()
}

func writeWrapped(b *strings.Builder, prefix, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	indent := strings.Repeat(" ", len(prefix))
	for i, line := range wrap(text, 88-len(prefix)) {
		if i == 0 {
			b.WriteString(prefix + line + "\n")
		} else {
			b.WriteString(indent + line + "\n")
		}
	}
}

// wrap breaks text into lines of at most width runes on word boundaries.
func wrap(text string, width int) []string {
	if width < 20 {
		width = 20
	}
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) > width {
				lines = append(lines, line)
				line = w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return lines
}

// breakdown summarizes the score deductions per severity.
func breakdown(findings []model.Finding) string {
	var parts []string
	for _, d := range scoring.Deductions(findings) {
		parts = append(parts, fmt.Sprintf("%d %s (-%d)", d.Count, d.Severity, d.Points))
	}
	return strings.Join(parts, "  ")
}

func subject(meta model.ContractMetadata) string {
	switch {
	case meta.Name != "" && meta.Address != "":
		return fmt.Sprintf("%s (%s)", meta.Name, meta.Address)
	case meta.Address != "":
		return meta.Address
	case meta.Name != "":
		return meta.Name
	default:
		return meta.SourcePath
	}
}
