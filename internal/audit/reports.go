package audit

import (
	"fmt"
	"time"

	"github.com/sprite-ai/solaudit/internal/model"
)

// SourceTag marks findings the audit service produces itself.
const SourceTag = "audit"

// Unavailable is the report for a contract whose source could not be
// obtained: a single informational finding, score 0, high risk.
func Unavailable(address, network, reason string, now time.Time) model.ConsolidatedReport {
	subject := address
	if network != "" {
		subject = fmt.Sprintf("%s on %s", address, network)
	}
	return model.ConsolidatedReport{
		Overview:           fmt.Sprintf("Source code for %s could not be retrieved, so it was not analyzed.", subject),
		ContractType:       "Unknown",
		KeyFeatures:        []string{},
		AnalysisDiscussion: fmt.Sprintf("No analyzer ran: %s. An unverified contract cannot be assessed and should be treated as high risk.", reason),
		Findings: []model.Finding{{
			Title:          "Source code unavailable",
			Description:    fmt.Sprintf("The source of %s could not be fetched: %s.", subject, reason),
			Severity:       model.SeverityInfo,
			Impact:         "The contract's behaviour cannot be reviewed; its security properties are unknown.",
			Recommendation: "Verify the contract source on the block explorer, or audit the source directly.",
			SourceTag:      SourceTag,
			ConsensusCount: 1,
			Sources:        []string{SourceTag},
		}},
		SecurityScore: 0,
		RiskLevel:     model.RiskHigh,
		Degraded:      true,
		Tier:          model.TierSourceUnavailable,
		Error:         reason,
		GeneratedAt:   now.UTC(),
	}
}

// Cancelled is the report for a caller that stopped waiting.
func Cancelled(cause error, now time.Time) model.ConsolidatedReport {
	reason := "cancelled"
	if cause != nil {
		reason = "cancelled: " + cause.Error()
	}
	return model.ConsolidatedReport{
		Overview:           "The audit was cancelled before it completed.",
		KeyFeatures:        []string{},
		AnalysisDiscussion: "The request ended before a report was available (" + reason + ").",
		Findings:           []model.Finding{},
		SecurityScore:      0,
		RiskLevel:          model.RiskHigh,
		Degraded:           true,
		Tier:               model.TierFailed,
		Error:              reason,
		GeneratedAt:        now.UTC(),
	}
}
