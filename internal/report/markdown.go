package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/sprite-ai/solaudit/internal/model"
)

func renderMarkdown(w io.Writer, rep model.ConsolidatedReport, opts Options) error {
	var b strings.Builder

	title := "Audit Report"
	if name := subject(opts.Metadata); name != "" {
		title += ": " + name
	}
	fmt.Fprintf(&b, "## %s\n\n", title)
	fmt.Fprintf(&b, "**Score:** %d/100 | **Risk:** %s | **Tier:** %s | **Findings:** %d\n\n",
		rep.SecurityScore, rep.RiskLevel, rep.Tier, len(rep.Findings))
	if rep.Degraded {
		b.WriteString("> **Degraded:** fewer sources than configured contributed to this report.\n\n")
	}
	if rep.Error != "" {
		fmt.Fprintf(&b, "> **Error:** %s\n\n", rep.Error)
	}
	if rep.Overview != "" {
		b.WriteString(rep.Overview + "\n\n")
	}
	if rep.ContractType != "" || len(rep.KeyFeatures) > 0 {
		fmt.Fprintf(&b, "**Contract type:** %s", orDash(rep.ContractType))
		if len(rep.KeyFeatures) > 0 {
			fmt.Fprintf(&b, " | **Features:** %s", strings.Join(rep.KeyFeatures, ", "))
		}
		b.WriteString("\n\n")
	}

	if len(rep.Findings) == 0 {
		b.WriteString("No issues found.\n")
	} else {
		fmt.Fprintf(&b, "**Deductions:** %s\n\n", breakdown(rep.Findings))
		b.WriteString("| # | Severity | Finding | Location | Sources |\n")
		b.WriteString("|---|----------|---------|----------|---------|\n")
		for i, f := range rep.Findings {
			loc := ""
			if f.CodeReference != "" {
				loc = "`" + strings.ReplaceAll(f.CodeReference, "`", "'") + "`"
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n",
				i+1, f.Severity, cell(f.Title), loc, cell(strings.Join(f.Sources, ", ")))
		}

		b.WriteString("\n### Details\n")
		for i, f := range rep.Findings {
			fmt.Fprintf(&b, "\n#### %d. [%s] %s\n\n", i+1, f.Severity, f.Title)
			if f.Description != "" {
				b.WriteString(f.Description + "\n\n")
			}
			if f.Impact != "" {
				fmt.Fprintf(&b, "- **Impact:** %s\n", f.Impact)
			}
			if f.Recommendation != "" {
				fmt.Fprintf(&b, "- **Recommendation:** %s\n", f.Recommendation)
			}
			fmt.Fprintf(&b, "- **Consensus:** %d\n", f.ConsensusCount)
		}
	}

	if len(rep.Sources) > 0 {
		b.WriteString("\n### Sources\n\n")
		for _, s := range rep.Sources {
			if s.OK {
				fmt.Fprintf(&b, "- `%s`: %d finding(s)\n", s.Source, s.Findings)
			} else {
				fmt.Fprintf(&b, "- `%s`: failed (%s) %s\n", s.Source, s.Failure, s.Reason)
			}
		}
	}

	if rep.AnalysisDiscussion != "" {
		b.WriteString("\n### Discussion\n\n")
		b.WriteString(rep.AnalysisDiscussion + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// cell escapes text for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
