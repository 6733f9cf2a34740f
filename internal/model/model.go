// Package model defines the core data types shared across solaudit.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Severity of a single finding.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// ParseSeverity normalizes raw analyzer text into a Severity.
// Unrecognized values become SeverityInfo.
func ParseSeverity(raw string) Severity {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.Trim(s, `"'*_ `)
	switch s {
	case "CRITICAL", "CRIT":
		return SeverityCritical
	case "HIGH":
		return SeverityHigh
	case "MEDIUM", "MED", "MODERATE":
		return SeverityMedium
	case "LOW":
		return SeverityLow
	case "INFO", "INFORMATIONAL", "NOTE":
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

// Deduction is the number of points a finding of this severity removes from
// a perfect score.
func (s Severity) Deduction() int {
	switch s {
	case SeverityCritical:
		return 20
	case SeverityHigh:
		return 10
	case SeverityMedium:
		return 5
	case SeverityLow:
		return 2
	default:
		return 0
	}
}

// Rank orders severities; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string {
	return string(s)
}

// RiskLevel categorizes the overall risk of a contract.
type RiskLevel string

const (
	RiskSafe    RiskLevel = "Safe"
	RiskLow     RiskLevel = "LowRisk"
	RiskMedium  RiskLevel = "MediumRisk"
	RiskHigh    RiskLevel = "HighRisk"
	RiskUnknown RiskLevel = "Unknown"
)

// ParseRiskLevel accepts the loose spellings analyzers use ("low risk",
// "HIGH_RISK", "medium").
func ParseRiskLevel(raw string) RiskLevel {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
	switch s {
	case "safe", "none", "norisk", "minimal":
		return RiskSafe
	case "lowrisk", "low":
		return RiskLow
	case "mediumrisk", "medium", "moderate", "moderaterisk":
		return RiskMedium
	case "highrisk", "high", "critical", "criticalrisk":
		return RiskHigh
	default:
		return RiskUnknown
	}
}

func (r RiskLevel) String() string {
	return string(r)
}

// Finding is one reported issue.
type Finding struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Severity       Severity `json:"severity"`
	CodeReference  string   `json:"codeReference,omitempty"`
	Impact         string   `json:"impact,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
	SourceTag      string   `json:"sourceTag"`
	ConsensusCount int      `json:"consensusCount"`
	Sources        []string `json:"sources,omitempty"` // distinct sources backing this finding
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s (%s, consensus %d)", f.Severity, f.Title, f.SourceTag, f.ConsensusCount)
}

// Clone returns a copy that shares no slices with f.
func (f Finding) Clone() Finding {
	if f.Sources != nil {
		f.Sources = append([]string(nil), f.Sources...)
	}
	return f
}

// FailureKind classifies why an analyzer produced no usable result.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureTimeout   FailureKind = "timeout"
	FailureRateLimit FailureKind = "rate_limit"
	FailureParse     FailureKind = "parse"
	FailurePanic     FailureKind = "panic"
	FailureConfig    FailureKind = "config"
)

// AnalyzerFailure is the failure arm of an analyzer call. Adapters return it
// instead of letting transport or parse errors escape.
type AnalyzerFailure struct {
	Source string
	Kind   FailureKind
	Reason string
}

func (e *AnalyzerFailure) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Kind, e.Reason)
}

// Fail builds an AnalyzerFailure with a formatted reason.
func Fail(source string, kind FailureKind, format string, args ...any) *AnalyzerFailure {
	return &AnalyzerFailure{Source: source, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// ContractMetadata describes the contract under audit.
type ContractMetadata struct {
	Address         string `json:"address,omitempty"`
	Network         string `json:"network,omitempty"`
	Name            string `json:"name,omitempty"`
	CompilerVersion string `json:"compilerVersion,omitempty"`
	SourcePath      string `json:"sourcePath,omitempty"`
}

// AnalysisResult is the normalized output of one analyzer.
type AnalysisResult struct {
	Source        string        `json:"source"`
	Overview      string        `json:"overview"`
	ContractType  string        `json:"contractType"`
	KeyFeatures   []string      `json:"keyFeatures,omitempty"`
	Findings      []Finding     `json:"findings"`
	SecurityScore *int          `json:"securityScore,omitempty"`
	RiskLevel     RiskLevel     `json:"riskLevel,omitempty"`
	Error         string        `json:"error,omitempty"`
	FailureKind   FailureKind   `json:"failureKind,omitempty"`
	LowConfidence bool          `json:"lowConfidence,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
}

// Failed reports whether r is a failed result.
func (r AnalysisResult) Failed() bool {
	return r.Error != ""
}

// FailedResult converts a failure into a result with no findings.
func FailedResult(f *AnalyzerFailure) AnalysisResult {
	return AnalysisResult{
		Source:      f.Source,
		Error:       f.Reason,
		FailureKind: f.Kind,
		RiskLevel:   RiskUnknown,
	}
}

// Score returns a pointer to v, for filling SecurityScore.
func Score(v int) *int {
	return &v
}

// Tier identifies which degradation tier produced a report.
type Tier string

const (
	TierReconciled        Tier = "reconciled"
	TierSingleSource      Tier = "single-source"
	TierPatternOnly       Tier = "pattern-only"
	TierSourceUnavailable Tier = "source-unavailable"
	TierFailed            Tier = "failed"
)

// SourceStatus records how one analyzer fared during a run.
type SourceStatus struct {
	Source   string      `json:"source"`
	OK       bool        `json:"ok"`
	Findings int         `json:"findings"`
	Score    *int        `json:"score,omitempty"`
	Failure  FailureKind `json:"failure,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// ConsolidatedReport is the final output of an audit.
type ConsolidatedReport struct {
	Overview           string         `json:"overview"`
	ContractType       string         `json:"contractType"`
	KeyFeatures        []string       `json:"keyFeatures"`
	AnalysisDiscussion string         `json:"analysisDiscussion"`
	Findings           []Finding      `json:"findings"`
	SecurityScore      int            `json:"securityScore"`
	RiskLevel          RiskLevel      `json:"riskLevel"`
	Degraded           bool           `json:"degraded"`
	Tier               Tier           `json:"tier"`
	Sources            []SourceStatus `json:"sources,omitempty"`
	Error              string         `json:"error,omitempty"`
	GeneratedAt        time.Time      `json:"generatedAt"`
}

// Clone deep-copies the report so the caller owns it independently.
func (r ConsolidatedReport) Clone() ConsolidatedReport {
	out := r
	if r.KeyFeatures != nil {
		out.KeyFeatures = append([]string(nil), r.KeyFeatures...)
	}
	if r.Findings != nil {
		out.Findings = make([]Finding, len(r.Findings))
		for i, f := range r.Findings {
			out.Findings[i] = f.Clone()
		}
	}
	if r.Sources != nil {
		out.Sources = make([]SourceStatus, len(r.Sources))
		for i, s := range r.Sources {
			out.Sources[i] = s
			if s.Score != nil {
				out.Sources[i].Score = Score(*s.Score)
			}
		}
	}
	return out
}

// CountBySeverity returns the number of findings at each severity.
func (r ConsolidatedReport) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}
