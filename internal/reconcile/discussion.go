package reconcile

import (
	"fmt"
	"strings"

	"github.com/sprite-ai/solaudit/internal/model"
)

type verdictCounts struct {
	confirmed, disputed, modified, unclassified, added int
}

// NoAIAnalysis opens the discussion of a pattern-only report.
const NoAIAnalysis = "No AI analysis was available"

func discussReconciled(st run, validator string, c verdictCounts, own string, findings []model.Finding) string {
	var b strings.Builder
	writeSources(&b, st)
	fmt.Fprintf(&b, "Validator %s reviewed %d finding(s): %d confirmed, %d disputed, %d modified, %d unclassified; it proposed %d additional finding(s).\n",
		validator, c.confirmed+c.disputed+c.modified+c.unclassified, c.confirmed, c.disputed, c.modified, c.unclassified, c.added)
	if own != "" {
		b.WriteString("\n")
		b.WriteString(own)
		b.WriteString("\n")
	}
	writeConsensus(&b, findings)
	return strings.TrimSpace(b.String())
}

func discussSingle(st run, chosen, reason string) string {
	var b strings.Builder
	writeSources(&b, st)
	fmt.Fprintf(&b, "Reconciliation did not occur (%s). Findings are taken from %s alone, which reported the highest security score among the successful sources.\n",
		reason, chosen)
	return strings.TrimSpace(b.String())
}

func discussPatternOnly(st run) string {
	var b strings.Builder
	b.WriteString(NoAIAnalysis)
	b.WriteString("; this report is based on the pattern scanner alone.\n")
	writeSources(&b, st)
	return strings.TrimSpace(b.String())
}

func writeSources(b *strings.Builder, st run) {
	var ok []string
	for _, r := range st.successes {
		ok = append(ok, r.Source)
	}
	if len(ok) > 0 {
		fmt.Fprintf(b, "Sources used: %s.\n", strings.Join(ok, ", "))
	}
	if len(st.failed) > 0 {
		var failed []string
		for _, r := range st.failed {
			failed = append(failed, fmt.Sprintf("%s (%s)", r.Source, r.FailureKind))
		}
		fmt.Fprintf(b, "Sources that failed: %s.\n", strings.Join(failed, ", "))
	}
}

// writeConsensus lists findings backed by more than one source, strongest
// agreement first.
func writeConsensus(b *strings.Builder, findings []model.Finding) {
	var shared []model.Finding
	for _, f := range findings {
		if f.ConsensusCount > 1 {
			shared = append(shared, f)
		}
	}
	if len(shared) == 0 {
		b.WriteString("\nNo finding was reported by more than one source.\n")
		return
	}
	for i := 1; i < len(shared); i++ {
		for j := i; j > 0 && shared[j].ConsensusCount > shared[j-1].ConsensusCount; j-- {
			shared[j], shared[j-1] = shared[j-1], shared[j]
		}
	}
	b.WriteString("\nFindings with agreement across sources:\n")
	for _, f := range shared {
		fmt.Fprintf(b, "- [%s] %s (%d sources: %s)\n", f.Severity, f.Title, f.ConsensusCount, strings.Join(f.Sources, ", "))
	}
}
