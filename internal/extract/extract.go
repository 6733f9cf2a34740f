// Package extract turns loosely formatted analyzer output into a normalized
// AnalysisResult.
package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sprite-ai/solaudit/internal/model"
)

// NarrativeLimit caps the description of the fallback finding, in bytes.
const NarrativeLimit = 600

// Placeholders for fields analyzers commonly omit.
const (
	ImpactPlaceholder         = "Impact not specified by the analyzer."
	RecommendationPlaceholder = "Review the affected code and apply an appropriate fix."
)

// FindingsKeys are the top-level keys that mark a findings object.
var FindingsKeys = []string{"findings", "vulnerabilities", "issues"}

// Extract parses raw analyzer output attributed to source. It returns an
// *model.AnalyzerFailure of kind parse when nothing usable can be recovered.
func Extract(raw, source string) (model.AnalysisResult, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return model.AnalysisResult{}, model.Fail(source, model.FailureParse, "empty response")
	}

	if obj, ok := LocateJSON(text, FindingsKeys...); ok {
		return FromObject(obj, source), nil
	}

	if text[0] == '{' || text[0] == '[' {
		if obj, ok := parseObject(text); ok {
			return FromObject(obj, source), nil
		}
		return model.AnalysisResult{}, model.Fail(source, model.FailureParse,
			"unrecoverable JSON (%d bytes)", len(text))
	}
	return narrative(text, source), nil
}

// FromObject reads a decoded JSON object as an analysis result.
func FromObject(obj map[string]any, source string) model.AnalysisResult {
	f := normalizeFields(obj)
	res := model.AnalysisResult{
		Source:       source,
		Overview:     stringField(f, "overview", "summary", "description"),
		ContractType: stringField(f, "contracttype", "type"),
		KeyFeatures:  stringList(lookup(f, "keyfeatures", "features")),
		RiskLevel:    model.RiskUnknown,
	}
	if v := lookup(f, "securityscore", "score"); v != nil {
		if n, ok := parseScore(v); ok {
			res.SecurityScore = model.Score(n)
		}
	}
	if s := stringField(f, "risklevel", "risk"); s != "" {
		res.RiskLevel = model.ParseRiskLevel(s)
	}

	if items, ok := lookup(f, "findings", "vulnerabilities", "issues").([]any); ok {
		res.Findings = ParseFindings(items, source)
	}
	return res
}

// ParseFindings converts a decoded JSON array into findings tagged with
// source. Entries with neither title nor description are skipped.
func ParseFindings(items []any, source string) []model.Finding {
	var out []model.Finding
	for _, item := range items {
		var f model.Finding
		switch v := item.(type) {
		case string:
			f.Title = strings.TrimSpace(v)
		case map[string]any:
			f = findingFromObject(normalizeFields(v))
		default:
			continue
		}
		if f.Title == "" && f.Description == "" {
			continue
		}
		if f.Title == "" {
			f.Title = titleFrom(f.Description)
		}
		if f.Severity == "" {
			f.Severity = model.SeverityInfo
		}
		if f.Impact == "" {
			f.Impact = ImpactPlaceholder
		}
		if f.Recommendation == "" {
			f.Recommendation = RecommendationPlaceholder
		}
		f.SourceTag = source
		f.ConsensusCount = 1
		f.Sources = []string{source}
		out = append(out, f)
	}
	return out
}

func findingFromObject(f map[string]any) model.Finding {
	out := model.Finding{
		Title:          stringField(f, "title", "name", "issue", "vulnerability"),
		Description:    stringField(f, "description", "details", "detail", "explanation"),
		Impact:         stringField(f, "impact"),
		Recommendation: stringField(f, "recommendation", "fix", "mitigation", "remediation"),
	}
	if s := stringField(f, "severity", "risk", "level"); s != "" {
		out.Severity = model.ParseSeverity(s)
	}
	switch v := lookup(f, "codereference", "location", "line", "code", "reference").(type) {
	case float64:
		out.CodeReference = fmt.Sprintf("L%d", int(v))
	case nil:
	default:
		out.CodeReference = stringify(v)
	}
	return out
}

func narrative(text, source string) model.AnalysisResult {
	return model.AnalysisResult{
		Source:   source,
		Overview: "Unstructured response; findings could not be extracted reliably.",
		Findings: []model.Finding{{
			Title:          "Unstructured analysis from " + source,
			Description:    truncateStr(text, NarrativeLimit),
			Severity:       model.SeverityInfo,
			Impact:         ImpactPlaceholder,
			Recommendation: RecommendationPlaceholder,
			SourceTag:      source,
			ConsensusCount: 1,
			Sources:        []string{source},
		}},
		RiskLevel:     model.RiskUnknown,
		LowConfidence: true,
	}
}

// titleFrom derives a title from the first sentence of a description.
func titleFrom(desc string) string {
	s := desc
	if i := strings.IndexAny(s, ".\n"); i > 0 {
		s = s[:i]
	}
	return truncateStr(strings.TrimSpace(s), 80)
}

// truncateStr cuts s to at most n bytes without splitting a rune.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
