package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/solaudit/internal/model"
)

func sample() model.ConsolidatedReport {
	return model.ConsolidatedReport{
		Overview:     "A simple vault.",
		ContractType: "Vault",
		KeyFeatures:  []string{"Ownable", "Pausable"},
		Findings: []model.Finding{
			{
				Title:          "Reentrancy in withdraw",
				Description:    "External call before state update.",
				Severity:       model.SeverityCritical,
				CodeReference:  "L42: msg.sender.call{value: amt}(\"\")",
				Impact:         "Funds can be drained.",
				Recommendation: "Apply checks-effects-interactions.",
				SourceTag:      "model-a",
				ConsensusCount: 2,
				Sources:        []string{"model-a", "model-b"},
			},
			{
				Title:          "Floating pragma | unpinned",
				Description:    "Compiler version is not pinned.",
				Severity:       model.SeverityInfo,
				SourceTag:      "pattern-scanner",
				ConsensusCount: 1,
				Sources:        []string{"pattern-scanner"},
			},
		},
		SecurityScore:      80,
		RiskLevel:          model.RiskLow,
		Tier:               model.TierReconciled,
		AnalysisDiscussion: "Sources used: model-a, model-b.\nValidator agreed.",
		Sources: []model.SourceStatus{
			{Source: "model-a", OK: true, Findings: 1, Score: model.Score(75)},
			{Source: "model-c", Failure: model.FailureTimeout, Reason: "deadline exceeded"},
		},
		GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func render(t *testing.T, f Format, opts Options) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sample(), f, opts))
	return buf.String()
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatText},
		{"TEXT", FormatText},
		{"md", FormatMarkdown},
		{"json", FormatJSON},
		{"sarif", FormatSARIF},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	_, err := ParseFormat("html")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		risk model.RiskLevel
		want int
	}{
		{model.RiskSafe, 0},
		{model.RiskLow, 1},
		{model.RiskMedium, 1},
		{model.RiskHigh, 2},
		{model.RiskUnknown, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(model.ConsolidatedReport{RiskLevel: tt.risk}), tt.risk)
	}
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		in   string
		line int
		code string
	}{
		{"L12: require(tx.origin == owner)", 12, "require(tx.origin == owner)"},
		{"L7", 7, ""},
		{"line 30 - foo()", 30, "foo()"},
		{"withdraw()", 0, "withdraw()"},
		{"", 0, ""},
	}
	for _, tt := range tests {
		line, code := ParseReference(tt.in)
		assert.Equal(t, tt.line, line, tt.in)
		assert.Equal(t, tt.code, code, tt.in)
	}
}

// --- Renderers ---

func TestRenderTextPlain(t *testing.T) {
	out := render(t, FormatText, Options{Metadata: model.ContractMetadata{Name: "Vault", Address: "0xabc"}})

	assert.True(t, strings.HasPrefix(out, "Audit report: Vault (0xabc)\n"))
	assert.Contains(t, out, "Score 80/100  Risk LowRisk  Tier reconciled")
	assert.Contains(t, out, "1. CRITICAL Reentrancy in withdraw  [2 sources: model-a, model-b]")
	assert.Contains(t, out, "L42  msg.sender.call")
	assert.Contains(t, out, "1 CRITICAL (-20)  1 INFO (-0)")
	assert.Contains(t, out, "Impact: Funds can be drained.")
	assert.Contains(t, out, "model-c")
	assert.Contains(t, out, "timeout: deadline exceeded")
	assert.Contains(t, out, "  Validator agreed.")
	assert.NotContains(t, out, "\x1b[")
}

func TestRenderTextDegraded(t *testing.T) {
	rep := sample()
	rep.Degraded = true
	rep.Findings = nil
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep, FormatText, Options{}))
	assert.Contains(t, buf.String(), "Degraded:")
	assert.Contains(t, buf.String(), "No issues found.")
}

func TestRenderJSON(t *testing.T) {
	out := render(t, FormatJSON, Options{})
	var got model.ConsolidatedReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, sample(), got)
}

func TestRenderMarkdown(t *testing.T) {
	out := render(t, FormatMarkdown, Options{})
	assert.Contains(t, out, "**Score:** 80/100 | **Risk:** LowRisk")
	assert.Contains(t, out, "**Deductions:** 1 CRITICAL (-20)  1 INFO (-0)")
	assert.Contains(t, out, "| 1 | CRITICAL | Reentrancy in withdraw |")
	assert.Contains(t, out, `Floating pragma \| unpinned`)
	assert.Contains(t, out, "#### 1. [CRITICAL] Reentrancy in withdraw")
	assert.Contains(t, out, "- `model-c`: failed (timeout) deadline exceeded")
}

func TestRenderSARIF(t *testing.T) {
	out := render(t, FormatSARIF, Options{ArtifactURI: "./contracts/Vault.sol", ToolVersion: "1.2.3"})

	var doc sarifLog
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	run := doc.Runs[0]
	assert.Equal(t, "1.2.3", run.Tool.Driver.Version)
	require.Len(t, run.Tool.Driver.Rules, 2)
	require.Len(t, run.Results, 2)

	r := run.Results[0]
	assert.Equal(t, "reentrancy-in-withdraw", r.RuleID)
	assert.Equal(t, "error", r.Level)
	assert.Equal(t, "contracts/Vault.sol", r.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, 42, r.Locations[0].PhysicalLocation.Region.StartLine)
	assert.Equal(t, 2, r.Properties.ConsensusCount)

	assert.Equal(t, "note", run.Results[1].Level)
	assert.Equal(t, 1, run.Results[1].Locations[0].PhysicalLocation.Region.StartLine)
	assert.Equal(t, "floating-pragma-unpinned", run.Results[1].RuleID)
}

func TestRuleID(t *testing.T) {
	assert.Equal(t, "tx-origin-used-for-authorization", ruleID("tx.origin used for authorization"))
	assert.Equal(t, "finding", ruleID("!!!"))
}

// --- Highlighting ---

func TestHighlightSolidity(t *testing.T) {
	lines := []string{
		"contract Vault {",
		"    function withdraw() external {}",
		"}",
	}
	hl := HighlightSolidity(lines)
	require.Len(t, hl, len(lines))
	for i, line := range lines {
		assert.Equal(t, line, hl[i].Plain())
	}
	assert.Greater(t, len(hl[1].Tokens), 1)
}

func TestHighlightPreservesEmptyLines(t *testing.T) {
	hl := HighlightSolidity([]string{"uint a;", "", ""})
	require.Len(t, hl, 3)
	assert.Equal(t, "", hl[2].Plain())
}
