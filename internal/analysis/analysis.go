// Package analysis implements the pattern scanner: a fixed table of textual
// vulnerability signatures applied to Solidity source.
package analysis

import (
	"fmt"
	"strings"

	"github.com/sprite-ai/solaudit/internal/model"
)

// SourceName identifies pattern scanner results.
const SourceName = "pattern-scanner"

// Scan applies every rule to src. It never fails; an empty source simply
// yields no findings.
func Scan(src string) model.AnalysisResult {
	lines := splitLines(src)

	var findings []model.Finding
	for _, r := range rules {
		if f, ok := applyRule(r, src, lines); ok {
			findings = append(findings, f)
		}
	}

	obs := Observe(src)
	return model.AnalysisResult{
		Source:       SourceName,
		Overview:     overview(len(lines), findings, obs),
		ContractType: obs.ContractType,
		KeyFeatures:  obs.Features(),
		Findings:     findings,
		RiskLevel:    model.RiskUnknown,
	}
}

func applyRule(r Rule, src string, lines []string) (model.Finding, bool) {
	if r.fileLevel != nil {
		n, hit := r.fileLevel(src)
		if !hit {
			return model.Finding{}, false
		}
		return newFinding(r, n, lines, 1), true
	}

	first, count := 0, 0
	for i, line := range lines {
		if isComment(line) {
			continue
		}
		if !r.pattern.MatchString(line) {
			continue
		}
		if r.unless != nil && r.unless.MatchString(line) {
			continue
		}
		if count == 0 {
			first = i + 1
		}
		count++
	}
	if count == 0 {
		return model.Finding{}, false
	}
	return newFinding(r, first, lines, count), true
}

func newFinding(r Rule, lineNum int, lines []string, count int) model.Finding {
	desc := r.Description
	if count > 1 {
		desc = fmt.Sprintf("%s (%d occurrences)", desc, count)
	}
	ref := ""
	if lineNum > 0 && lineNum <= len(lines) {
		ref = fmt.Sprintf("L%d: %s", lineNum, strings.TrimSpace(lines[lineNum-1]))
	}
	return model.Finding{
		Title:          r.Title,
		Description:    desc,
		Severity:       r.Severity,
		CodeReference:  ref,
		Impact:         impactFor(r.Severity),
		Recommendation: r.Recommendation,
		SourceTag:      SourceName,
		ConsensusCount: 1,
		Sources:        []string{SourceName},
	}
}

func impactFor(sev model.Severity) string {
	switch sev {
	case model.SeverityCritical, model.SeverityHigh:
		return "Can lead to loss of funds or loss of control over the contract."
	case model.SeverityMedium:
		return "Can be exploited under specific conditions."
	case model.SeverityLow:
		return "Limited impact; worth fixing for robustness."
	default:
		return "Informational."
	}
}

func overview(nLines int, findings []model.Finding, obs Observations) string {
	if len(findings) == 0 {
		return fmt.Sprintf("Pattern scan of %d lines (%s) matched no vulnerability signatures.", nLines, obs.ContractType)
	}
	counts := make(map[model.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	var parts []string
	for _, sev := range model.Severities {
		if c := counts[sev]; c > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c, strings.ToLower(string(sev))))
		}
	}
	return fmt.Sprintf("Pattern scan of %d lines (%s) matched %d signature(s): %s.",
		nLines, obs.ContractType, len(findings), strings.Join(parts, ", "))
}

func splitLines(src string) []string {
	if src == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
}

// isComment reports comment-only lines, which rules ignore.
func isComment(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*") || strings.HasPrefix(trimmed, "*")
}
