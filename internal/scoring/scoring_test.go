package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sprite-ai/solaudit/internal/model"
)

func findings(sevs ...model.Severity) []model.Finding {
	out := make([]model.Finding, 0, len(sevs))
	for i, s := range sevs {
		out = append(out, model.Finding{Title: string(s) + string(rune('a'+i)), Severity: s, ConsensusCount: 1})
	}
	return out
}

func TestScore(t *testing.T) {
	tests := []struct {
		name      string
		findings  []model.Finding
		reported  []int
		wantScore int
		wantLevel model.RiskLevel
	}{
		{"clean", nil, nil, 100, model.RiskSafe},
		{"single medium", findings(model.SeverityMedium), nil, 95, model.RiskSafe},
		{"one critical", findings(model.SeverityCritical), nil, 80, model.RiskLow},
		{"info is free", findings(model.SeverityInfo, model.SeverityInfo), nil, 100, model.RiskSafe},
		{"mixed", findings(model.SeverityHigh, model.SeverityMedium, model.SeverityLow), nil, 83, model.RiskLow},
		{"floor at zero", findings(model.SeverityCritical, model.SeverityCritical, model.SeverityCritical,
			model.SeverityCritical, model.SeverityCritical, model.SeverityCritical), nil, 0, model.RiskHigh},
		{"averaged with reported", findings(model.SeverityCritical), []int{60}, 70, model.RiskMedium},
		{"mean of reported", nil, []int{80, 90}, 93, model.RiskSafe},
		{"fractional mean", findings(model.SeverityLow), []int{90, 91}, 94, model.RiskSafe},
		{"rounds half away from zero", findings(model.SeverityMedium), []int{90}, 93, model.RiskSafe},
		{"reported clamped", nil, []int{250}, 100, model.RiskSafe},
		{"deficit carried into average", findings(model.SeverityCritical, model.SeverityCritical, model.SeverityCritical,
			model.SeverityCritical, model.SeverityCritical, model.SeverityCritical, model.SeverityCritical,
			model.SeverityCritical, model.SeverityCritical, model.SeverityCritical), []int{100}, 0, model.RiskHigh},
		{"partial deficit", findings(model.SeverityCritical, model.SeverityCritical, model.SeverityCritical,
			model.SeverityCritical, model.SeverityCritical, model.SeverityCritical), []int{100}, 40, model.RiskHigh},
		{"high risk", findings(model.SeverityCritical, model.SeverityCritical, model.SeverityHigh), nil, 50, model.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, level := Score(tt.findings, tt.reported)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantLevel, level)
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	fs := findings(model.SeverityHigh, model.SeverityLow, model.SeverityMedium)
	first, firstLevel := Score(fs, []int{72, 64})
	for i := 0; i < 50; i++ {
		s, l := Score(fs, []int{72, 64})
		assert.Equal(t, first, s)
		assert.Equal(t, firstLevel, l)
	}
}

func TestScoreMonotonicInCriticals(t *testing.T) {
	sets := [][]model.Finding{
		nil,
		findings(model.SeverityLow),
		findings(model.SeverityHigh, model.SeverityMedium),
		findings(model.SeverityCritical, model.SeverityCritical, model.SeverityCritical, model.SeverityCritical, model.SeverityCritical),
	}
	reportedSets := [][]int{nil, {100}, {0}, {55, 95}}

	for _, base := range sets {
		for _, reported := range reportedSets {
			before, _ := Score(base, reported)
			withCrit := append(append([]model.Finding(nil), base...), model.Finding{Title: "extra", Severity: model.SeverityCritical})
			after, _ := Score(withCrit, reported)
			assert.LessOrEqual(t, after, before, "adding a critical raised the score (base=%v reported=%v)", base, reported)
		}
	}
}

func TestLevelThresholds(t *testing.T) {
	assert.Equal(t, model.RiskSafe, Level(90))
	assert.Equal(t, model.RiskLow, Level(89))
	assert.Equal(t, model.RiskLow, Level(75))
	assert.Equal(t, model.RiskMedium, Level(74))
	assert.Equal(t, model.RiskMedium, Level(60))
	assert.Equal(t, model.RiskHigh, Level(59))
}

func TestDeductions(t *testing.T) {
	b := Deductions(findings(model.SeverityHigh, model.SeverityHigh, model.SeverityInfo))
	assert.Equal(t, []Breakdown{
		{Severity: model.SeverityHigh, Count: 2, Points: 20},
		{Severity: model.SeverityInfo, Count: 1, Points: 0},
	}, b)
}
