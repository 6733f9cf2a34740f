package reconcile

import (
	"strings"
	"unicode"

	"github.com/sprite-ai/solaudit/internal/extract"
	"github.com/sprite-ai/solaudit/internal/model"
)

// Matcher decides whether two findings describe the same issue.
type Matcher struct {
	// SimilarityThreshold is the minimum token Jaccard similarity of titles.
	SimilarityThreshold float64
	// MinSubstringLen is the minimum normalized title length for
	// substring containment to count as a match.
	MinSubstringLen int
}

// DefaultMatcher returns the matcher used when none is configured.
func DefaultMatcher() Matcher {
	return Matcher{SimilarityThreshold: 0.75, MinSubstringLen: 12}
}

// Same reports whether a and b are near-identical by title or description.
func (m Matcher) Same(a, b model.Finding) bool {
	ta, tb := normalizeText(a.Title), normalizeText(b.Title)
	if ta != "" && ta == tb {
		return true
	}
	if len(ta) >= m.MinSubstringLen && len(tb) >= m.MinSubstringLen &&
		(strings.Contains(ta, tb) || strings.Contains(tb, ta)) {
		return true
	}
	if jaccard(tokens(ta), tokens(tb)) >= m.SimilarityThreshold {
		return true
	}
	da, db := normalizeText(a.Description), normalizeText(b.Description)
	return da != "" && da == db
}

// Dedupe folds near-identical findings reported by different sources
// together, keeping first-seen order. Two findings that share a source are
// distinct issues by that source's own account and are never merged. A
// merged finding carries the highest severity, the longest description,
// and the union of sources; ConsensusCount is the number of sources.
func (m Matcher) Dedupe(findings []model.Finding) []model.Finding {
	var out []model.Finding
	for _, f := range findings {
		f = f.Clone()
		if len(f.Sources) == 0 && f.SourceTag != "" {
			f.Sources = []string{f.SourceTag}
		}
		merged := false
		for i := range out {
			if overlaps(out[i].Sources, f.Sources) {
				continue
			}
			if m.Same(out[i], f) {
				mergeInto(&out[i], f)
				merged = true
				break
			}
		}
		if !merged {
			f.ConsensusCount = max(len(f.Sources), 1)
			out = append(out, f)
		}
	}
	return out
}

func mergeInto(dst *model.Finding, src model.Finding) {
	if src.Severity.Rank() > dst.Severity.Rank() {
		dst.Severity = src.Severity
	}
	if len(src.Description) > len(dst.Description) {
		dst.Description = src.Description
	}
	if dst.CodeReference == "" {
		dst.CodeReference = src.CodeReference
	}
	if isPlaceholder(dst.Impact, extract.ImpactPlaceholder) && !isPlaceholder(src.Impact, extract.ImpactPlaceholder) {
		dst.Impact = src.Impact
	}
	if isPlaceholder(dst.Recommendation, extract.RecommendationPlaceholder) && !isPlaceholder(src.Recommendation, extract.RecommendationPlaceholder) {
		dst.Recommendation = src.Recommendation
	}
	for _, s := range src.Sources {
		if !contains(dst.Sources, s) {
			dst.Sources = append(dst.Sources, s)
		}
	}
	dst.ConsensusCount = max(len(dst.Sources), 1)
}

func isPlaceholder(s, placeholder string) bool {
	return s == "" || s == placeholder
}

func overlaps(a, b []string) bool {
	for _, s := range b {
		if contains(a, s) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// normalizeText lowercases s and collapses every run of non-alphanumerics
// into one space.
func normalizeText(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// stopwords carry no identity in finding titles.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "in": true, "of": true, "on": true, "to": true,
	"for": true, "and": true, "via": true, "with": true, "by": true, "at": true,
	"vulnerability": true, "issue": true, "potential": true, "possible": true,
	"function": true, "risk": true,
}

func tokens(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		if !stopwords[w] {
			out[w] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
