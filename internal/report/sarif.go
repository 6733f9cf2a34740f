package report

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sprite-ai/solaudit/internal/model"
)

// SARIF 2.1.0 document types, limited to the fields solaudit emits.
type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules,omitempty"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	ShortDescription sarifMessage `json:"shortDescription"`
	Help             sarifMessage `json:"help,omitempty"`
}

type sarifResult struct {
	RuleID     string          `json:"ruleId"`
	Level      string          `json:"level"`
	Message    sarifMessage    `json:"message"`
	Locations  []sarifLocation `json:"locations"`
	Properties sarifProperties `json:"properties"`
}

type sarifProperties struct {
	Severity       model.Severity `json:"severity"`
	ConsensusCount int            `json:"consensusCount"`
	Sources        []string       `json:"sources,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text,omitempty"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
}

const sarifSchema = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

func renderSARIF(w io.Writer, rep model.ConsolidatedReport, opts Options) error {
	uri := toURI(opts.ArtifactURI)
	if uri == "" {
		uri = toURI(opts.Metadata.SourcePath)
	}
	if uri == "" {
		uri = "contract.sol"
	}

	var rules []sarifRule
	seen := make(map[string]bool)
	results := make([]sarifResult, 0, len(rep.Findings))
	for _, f := range rep.Findings {
		id := ruleID(f.Title)
		if !seen[id] {
			seen[id] = true
			rules = append(rules, sarifRule{
				ID:               id,
				ShortDescription: sarifMessage{Text: f.Title},
				Help:             sarifMessage{Text: f.Recommendation},
			})
		}
		line, _ := ParseReference(f.CodeReference)
		if line <= 0 {
			line = 1
		}
		msg := f.Title
		if d := strings.TrimSpace(f.Description); d != "" {
			msg += ": " + d
		}
		results = append(results, sarifResult{
			RuleID:  id,
			Level:   sevToLevel(f.Severity),
			Message: sarifMessage{Text: msg},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: uri},
					Region:           sarifRegion{StartLine: line},
				},
			}},
			Properties: sarifProperties{
				Severity:       f.Severity,
				ConsensusCount: f.ConsensusCount,
				Sources:        f.Sources,
			},
		})
	}

	doc := sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    "solaudit",
				Version: opts.ToolVersion,
				Rules:   rules,
			}},
			Results: results,
		}},
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func sevToLevel(s model.Severity) string {
	switch s {
	case model.SeverityCritical, model.SeverityHigh:
		return "error"
	case model.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

// ruleID turns a finding title into a stable kebab-case rule id.
func ruleID(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	id := strings.TrimSuffix(b.String(), "-")
	if id == "" {
		return "finding"
	}
	return id
}

func toURI(p string) string {
	p = filepath.ToSlash(strings.TrimSpace(p))
	for strings.HasPrefix(p, "../") {
		p = strings.TrimPrefix(p, "../")
	}
	return strings.TrimPrefix(p, "./")
}
