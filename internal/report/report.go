// Package report renders a ConsolidatedReport for people and tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/sprite-ai/solaudit/internal/model"
)

// Format names an output format.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatSARIF    Format = "sarif"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown, FormatSARIF}

// ParseFormat accepts a format name, case-insensitively. "md" is markdown.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case "md":
		return FormatMarkdown, nil
	case FormatJSON, FormatMarkdown, FormatSARIF:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want one of %v)", s, Formats)
}

// Options control rendering.
type Options struct {
	// Color enables ANSI styling in text output.
	Color bool
	// ArtifactURI names the audited file in SARIF output.
	ArtifactURI string
	// ToolVersion is reported in SARIF output.
	ToolVersion string
	// Metadata describes the audited contract, when known.
	Metadata model.ContractMetadata
}

// Render writes rep to w in format f.
func Render(w io.Writer, rep model.ConsolidatedReport, f Format, opts Options) error {
	switch f {
	case FormatJSON:
		return renderJSON(w, rep)
	case FormatMarkdown:
		return renderMarkdown(w, rep, opts)
	case FormatSARIF:
		return renderSARIF(w, rep, opts)
	case FormatText, "":
		return renderText(w, rep, opts)
	}
	return fmt.Errorf("unknown format %q", f)
}

func renderJSON(w io.Writer, rep model.ConsolidatedReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// ExitCode maps the overall risk to a process exit code:
// 0 safe, 1 low or medium risk, 2 high risk.
func ExitCode(rep model.ConsolidatedReport) int {
	switch rep.RiskLevel {
	case model.RiskHigh:
		return 2
	case model.RiskLow, model.RiskMedium:
		return 1
	default:
		return 0
	}
}

var referenceRe = regexp.MustCompile(`^(?i:L|line\s*)(\d+)(?:\s*[:\-]\s*(.*))?$`)

// ParseReference splits a code reference such as "L12: require(x)" into
// its line number and code. Line is 0 when the reference has none.
func ParseReference(ref string) (line int, code string) {
	ref = strings.TrimSpace(ref)
	m := referenceRe.FindStringSubmatch(ref)
	if m == nil {
		return 0, ref
	}
	n, _ := strconv.Atoi(m[1])
	return n, strings.TrimSpace(m[2])
}
