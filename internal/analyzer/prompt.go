package analyzer

import (
	"fmt"
	"strings"

	"github.com/sprite-ai/solaudit/internal/model"
)

// DefaultMaxSourceBytes bounds the source embedded in a prompt.
const DefaultMaxSourceBytes = 48000

const auditInstructions = `You are a smart contract security auditor. Analyze the Solidity source
below for vulnerabilities. Report only issues you can point to in the code.`

const validateInstructions = `You are a senior smart contract auditor reviewing the findings of other
auditors. For every numbered finding decide CONFIRM (correct as stated),
DISPUTE (false positive) or MODIFY (real, but title, severity or details are
wrong; supply the corrected finding). Then add any important issue the
other auditors missed.`

const auditFormat = `Respond with a single JSON object in a ` + "```json" + ` block:
{
  "overview": "one paragraph summary",
  "contractType": "ERC20 | ERC721 | Proxy | ...",
  "keyFeatures": ["..."],
  "findings": [
    {"title": "...", "description": "...", "severity": "CRITICAL|HIGH|MEDIUM|LOW|INFO",
     "codeReference": "function or line", "impact": "...", "recommendation": "..."}
  ],
  "securityScore": 0-100,
  "riskLevel": "Safe | LowRisk | MediumRisk | HighRisk"
}`

const validateFormat = `Respond with a single JSON object in a ` + "```json" + ` block:
{
  "verdicts": [{"index": 0, "verdict": "CONFIRM|DISPUTE|MODIFY", "reason": "...",
                "modified": {"title": "...", "description": "...", "severity": "...",
                             "codeReference": "...", "impact": "...", "recommendation": "..."}}],
  "additionalFindings": [ ...same shape as a finding... ],
  "discussion": "how the auditors agreed and disagreed",
  "overview": "...",
  "contractType": "...",
  "keyFeatures": ["..."],
  "securityScore": 0-100
}`

// BuildPrompt renders the system and user messages for req. Output is a
// pure function of req and maxSourceBytes.
func BuildPrompt(req Request, maxSourceBytes int) (system, user string) {
	var b strings.Builder

	writeMetadata(&b, req.Metadata)
	b.WriteString("\nSource code:\n```solidity\n")
	b.WriteString(TruncateSource(req.Source, maxSourceBytes))
	b.WriteString("\n```\n")

	if !req.Validation() {
		b.WriteString("\n")
		b.WriteString(auditFormat)
		return auditInstructions, b.String()
	}

	b.WriteString("\nFindings to review:\n")
	for i, f := range PriorFindings(req.Prior) {
		fmt.Fprintf(&b, "[%d] (%s) %s, severity %s", i, f.SourceTag, f.Title, f.Severity)
		if f.CodeReference != "" {
			fmt.Fprintf(&b, ", at %s", f.CodeReference)
		}
		b.WriteString("\n")
		if f.Description != "" {
			fmt.Fprintf(&b, "    %s\n", f.Description)
		}
	}
	for _, r := range req.Prior {
		if r.SecurityScore != nil {
			fmt.Fprintf(&b, "Auditor %s scored the contract %d/100.\n", r.Source, *r.SecurityScore)
		}
	}
	b.WriteString("\n")
	b.WriteString(validateFormat)
	return validateInstructions, b.String()
}

// PriorFindings flattens prior results into the indexed list a validation
// prompt presents. Verdict indices refer to positions in this slice.
func PriorFindings(prior []model.AnalysisResult) []model.Finding {
	var out []model.Finding
	for _, r := range prior {
		if r.Failed() {
			continue
		}
		out = append(out, r.Findings...)
	}
	return out
}

func writeMetadata(b *strings.Builder, m model.ContractMetadata) {
	b.WriteString("Contract:\n")
	field := func(k, v string) {
		if v != "" {
			fmt.Fprintf(b, "- %s: %s\n", k, v)
		}
	}
	field("Name", m.Name)
	field("Address", m.Address)
	field("Network", m.Network)
	field("Compiler", m.CompilerVersion)
	field("Path", m.SourcePath)
}

// TruncateSource keeps the first two thirds and the last third of the
// budget, joined by an explicit marker naming the dropped byte count.
func TruncateSource(src string, max int) string {
	if max <= 0 {
		max = DefaultMaxSourceBytes
	}
	if len(src) <= max {
		return src
	}
	head := max * 2 / 3
	tail := max - head
	dropped := len(src) - head - tail
	return src[:head] + fmt.Sprintf("\n// [... %d bytes truncated ...]\n", dropped) + src[len(src)-tail:]
}
