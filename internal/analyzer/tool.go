package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sprite-ai/solaudit/internal/model"
)

// ToolKind selects the command line and output parser of a Tool.
type ToolKind string

const (
	ToolSlither ToolKind = "slither"
	ToolSolhint ToolKind = "solhint"
)

// Tool runs an external static analyzer over a temporary copy of the source
// and re-emits its report as canonical findings JSON.
type Tool struct {
	Kind    ToolKind
	Binary  string // defaults to the kind's name on PATH
	Timeout time.Duration
}

func (t *Tool) Name() string { return string(t.Kind) }

func (t *Tool) Analyze(ctx context.Context, req Request) (string, error) {
	name := t.Name()
	if req.Validation() {
		return "", model.Fail(name, model.FailureConfig, "static tools cannot validate findings")
	}

	bin := t.Binary
	if bin == "" {
		bin = string(t.Kind)
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return "", model.Fail(name, model.FailureConfig, "%s not found: %v", bin, err)
	}

	dir, err := os.MkdirTemp("", "solaudit-"+name+"-")
	if err != nil {
		return "", model.Fail(name, model.FailureTransport, "creating scratch dir: %v", err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, contractFileName(req.Metadata))
	if err := os.WriteFile(file, []byte(req.Source), 0o600); err != nil {
		return "", model.Fail(name, model.FailureTransport, "writing source: %v", err)
	}

	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var args []string
	switch t.Kind {
	case ToolSlither:
		args = []string{file, "--json", "-"}
	case ToolSolhint:
		args = []string{"-f", "json", file}
	default:
		return "", model.Fail(name, model.FailureConfig, "unknown tool kind %q", t.Kind)
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// Both tools exit non-zero when they report issues, so the exit status
	// only matters when stdout is unusable.
	runErr := cmd.Run()
	if ctx.Err() != nil {
		return "", AsFailure(name, ctx.Err())
	}

	var findings []ToolFinding
	switch t.Kind {
	case ToolSlither:
		findings, err = ParseSlither(stdout.Bytes())
	case ToolSolhint:
		findings, err = ParseSolhint(stdout.Bytes())
	}
	if err != nil {
		if runErr != nil {
			return "", model.Fail(name, model.FailureTransport, "%v: %s", runErr, firstLine(stderr.String()))
		}
		return "", model.Fail(name, model.FailureParse, "%v", err)
	}
	return canonicalJSON(name, findings)
}

// ToolFinding is the canonical finding shape a Tool emits.
type ToolFinding struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Severity       string `json:"severity"`
	CodeReference  string `json:"codeReference,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

func canonicalJSON(name string, findings []ToolFinding) (string, error) {
	if findings == nil {
		findings = []ToolFinding{}
	}
	doc := struct {
		Overview string        `json:"overview"`
		Findings []ToolFinding `json:"findings"`
	}{
		Overview: fmt.Sprintf("%s reported %d issue(s).", name, len(findings)),
		Findings: findings,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", model.Fail(name, model.FailureParse, "encoding findings: %v", err)
	}
	return string(b), nil
}

type slitherJSON struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Results struct {
		Detectors []struct {
			Check       string `json:"check"`
			Impact      string `json:"impact"`
			Confidence  string `json:"confidence"`
			Description string `json:"description"`
			Elements    []struct {
				SourceMapping struct {
					Lines []int `json:"lines"`
				} `json:"source_mapping"`
			} `json:"elements"`
		} `json:"detectors"`
	} `json:"results"`
}

// ParseSlither converts `slither --json -` output.
func ParseSlither(b []byte) ([]ToolFinding, error) {
	var doc slitherJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decoding slither output: %w", err)
	}
	if !doc.Success && doc.Error != "" {
		return nil, fmt.Errorf("slither: %s", doc.Error)
	}

	out := make([]ToolFinding, 0, len(doc.Results.Detectors))
	for _, d := range doc.Results.Detectors {
		ref := ""
		for _, e := range d.Elements {
			if len(e.SourceMapping.Lines) > 0 {
				ref = fmt.Sprintf("L%d", e.SourceMapping.Lines[0])
				break
			}
		}
		out = append(out, ToolFinding{
			Title:         d.Check,
			Description:   strings.TrimSpace(d.Description),
			Severity:      string(slitherSeverity(d.Impact)),
			CodeReference: ref,
		})
	}
	return out, nil
}

func slitherSeverity(impact string) model.Severity {
	switch strings.ToLower(strings.TrimSpace(impact)) {
	case "high":
		return model.SeverityHigh
	case "medium":
		return model.SeverityMedium
	case "low":
		return model.SeverityLow
	default:
		return model.SeverityInfo
	}
}

type solhintReport struct {
	FilePath string `json:"filePath"`
	Messages []struct {
		RuleID   string `json:"ruleId"`
		Severity any    `json:"severity"` // 2 | 1 | "Error" | "Warning"
		Message  string `json:"message"`
		Line     int    `json:"line"`
	} `json:"messages"`
}

// ParseSolhint converts `solhint -f json` output.
func ParseSolhint(b []byte) ([]ToolFinding, error) {
	var reports []solhintReport
	if err := json.Unmarshal(b, &reports); err != nil {
		return nil, fmt.Errorf("decoding solhint output: %w", err)
	}

	var out []ToolFinding
	for _, r := range reports {
		for _, m := range r.Messages {
			if m.RuleID == "" {
				continue
			}
			out = append(out, ToolFinding{
				Title:         m.RuleID,
				Description:   m.Message,
				Severity:      string(solhintSeverity(m.Severity)),
				CodeReference: fmt.Sprintf("L%d", m.Line),
			})
		}
	}
	return out, nil
}

func solhintSeverity(v any) model.Severity {
	switch t := v.(type) {
	case float64:
		if t >= 2 {
			return model.SeverityMedium
		}
		return model.SeverityLow
	case string:
		switch strings.ToLower(t) {
		case "error":
			return model.SeverityMedium
		case "warning", "warn":
			return model.SeverityLow
		}
	}
	return model.SeverityInfo
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_]`)

func contractFileName(m model.ContractMetadata) string {
	if m.Name == "" {
		return "Contract.sol"
	}
	return unsafeFileChars.ReplaceAllString(m.Name, "_") + ".sol"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
