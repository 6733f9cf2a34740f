// Package scoring maps surviving findings and analyzer-reported scores to a
// single security score and risk level.
package scoring

import (
	"math"

	"github.com/sprite-ai/solaudit/internal/model"
)

// Risk thresholds, inclusive lower bounds.
const (
	SafeThreshold   = 90
	LowThreshold    = 75
	MediumThreshold = 60
)

// Score computes the security score and risk level. Deductions are summed
// once per finding regardless of consensus. When selfReported is non-empty
// the deduction score is averaged with the mean of the reported scores.
func Score(findings []model.Finding, selfReported []int) (int, model.RiskLevel) {
	deducted := 100
	for _, f := range findings {
		deducted -= f.Severity.Deduction()
	}

	// Only the final value is clamped; a deficit below zero still pulls
	// the average down.
	score := float64(deducted)
	if len(selfReported) > 0 {
		var sum float64
		for _, s := range selfReported {
			sum += float64(clamp(s))
		}
		mean := sum / float64(len(selfReported))
		score = (score + mean) / 2
	}

	final := clamp(int(math.Round(score)))
	return final, Level(final)
}

// Level maps a 0-100 score to a risk level.
func Level(score int) model.RiskLevel {
	switch {
	case score >= SafeThreshold:
		return model.RiskSafe
	case score >= LowThreshold:
		return model.RiskLow
	case score >= MediumThreshold:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

// Breakdown counts findings per severity, in severity order.
type Breakdown struct {
	Severity model.Severity
	Count    int
	Points   int
}

// Deductions returns the per-severity deduction breakdown for findings.
func Deductions(findings []model.Finding) []Breakdown {
	counts := make(map[model.Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	var out []Breakdown
	for _, sev := range model.Severities {
		if c := counts[sev]; c > 0 {
			out = append(out, Breakdown{Severity: sev, Count: c, Points: c * sev.Deduction()})
		}
	}
	return out
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
