// Package reconcile merges per-source analysis results into one consolidated
// report, falling back to fewer sources when reconciliation is impossible.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sprite-ai/solaudit/internal/analysis"
	"github.com/sprite-ai/solaudit/internal/analyzer"
	"github.com/sprite-ai/solaudit/internal/logging"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/orchestrator"
	"github.com/sprite-ai/solaudit/internal/scoring"
)

// Options configures a Reconciler.
type Options struct {
	// Validator cross-checks the other sources. Nil disables reconciliation.
	Validator analyzer.Analyzer
	// ValidatorTimeout bounds the validator call; zero uses the caller's
	// context only.
	ValidatorTimeout time.Duration
	Matcher          Matcher
	Observer         orchestrator.Observer
	Log              *zap.SugaredLogger
	Now              func() time.Time
}

// Reconciler builds consolidated reports.
type Reconciler struct {
	opts Options
	log  *zap.SugaredLogger
}

// New creates a Reconciler. A zero Matcher is replaced by DefaultMatcher.
func New(opts Options) *Reconciler {
	if opts.Matcher == (Matcher{}) {
		opts.Matcher = DefaultMatcher()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{opts: opts, log: logging.OrNop(opts.Log)}
}

// run is the working state of one reconciliation.
type run struct {
	scan      *model.AnalysisResult
	ai        []model.AnalysisResult
	successes []model.AnalysisResult
	statuses  []model.SourceStatus
	failed    []model.AnalysisResult
}

func partition(results []model.AnalysisResult) run {
	var r run
	for i := range results {
		res := results[i]
		r.statuses = append(r.statuses, statusOf(res))
		if res.Failed() {
			r.failed = append(r.failed, res)
			continue
		}
		r.successes = append(r.successes, res)
		if res.Source == analysis.SourceName {
			if r.scan == nil {
				r.scan = &results[i]
			}
			continue
		}
		r.ai = append(r.ai, res)
	}
	return r
}

func statusOf(res model.AnalysisResult) model.SourceStatus {
	st := model.SourceStatus{
		Source:   res.Source,
		OK:       !res.Failed(),
		Findings: len(res.Findings),
		Failure:  res.FailureKind,
		Reason:   res.Error,
	}
	if res.SecurityScore != nil {
		st.Score = model.Score(*res.SecurityScore)
	}
	return st
}

// Reconcile produces the consolidated report for results. It never panics;
// each failure drops to the next tier.
func (r *Reconciler) Reconcile(ctx context.Context, results []model.AnalysisResult, src string, meta model.ContractMetadata) (rep model.ConsolidatedReport) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorw("reconciliation panicked", "panic", p)
			rep = r.Fallback(results, fmt.Sprintf("internal error: %v", p))
		}
	}()

	st := partition(results)
	if len(st.ai) == 0 {
		return r.patternOnly(st)
	}
	if r.opts.Validator == nil {
		return r.singleBest(st, "no validator is configured")
	}

	rep, err := r.validate(ctx, st, src, meta)
	if err != nil {
		r.log.Warnw("validation failed, using single best source", "source", r.opts.Validator.Name(), "error", err)
		return r.singleBest(st, err.Error())
	}
	return rep
}

// Fallback builds the best report available without a validator. It is
// used when reconciliation cannot proceed and never panics.
func (r *Reconciler) Fallback(results []model.AnalysisResult, reason string) (rep model.ConsolidatedReport) {
	defer func() {
		if p := recover(); p != nil {
			rep = Failed(fmt.Sprintf("fallback failed: %v", p), r.opts.Now())
		}
	}()
	st := partition(results)
	if len(st.ai) == 0 {
		return r.patternOnly(st)
	}
	return r.singleBest(st, reason)
}

// Failed is the report for a run in which not even the pattern scanner
// produced a result.
func Failed(reason string, now time.Time) model.ConsolidatedReport {
	return model.ConsolidatedReport{
		Overview:           "The audit could not be performed.",
		KeyFeatures:        []string{},
		AnalysisDiscussion: "No analysis ran: " + reason + ".",
		Findings:           []model.Finding{},
		SecurityScore:      0,
		RiskLevel:          model.RiskHigh,
		Degraded:           true,
		Tier:               model.TierFailed,
		Error:              reason,
		GeneratedAt:        now.UTC(),
	}
}

func (r *Reconciler) validate(ctx context.Context, st run, src string, meta model.ContractMetadata) (rep model.ConsolidatedReport, err error) {
	v := r.opts.Validator
	name := v.Name()

	obs := r.opts.Observer
	if obs != nil {
		obs.SourceStarted(name)
	}
	status := model.SourceStatus{Source: name}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("validator panicked: %v", p)
		}
		if err != nil {
			status.OK = false
			status.Reason = err.Error()
			var af *model.AnalyzerFailure
			if errors.As(err, &af) {
				status.Failure = af.Kind
				status.Reason = af.Reason
			} else if status.Failure == "" {
				status.Failure = model.FailureParse
			}
		}
		if obs != nil {
			res := model.AnalysisResult{Source: name, Error: status.Reason, FailureKind: status.Failure}
			if err == nil {
				res.Error = ""
				res.SecurityScore = status.Score
			}
			obs.SourceFinished(res)
		}
	}()

	if r.opts.ValidatorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.ValidatorTimeout)
		defer cancel()
	}

	prior := st.successes
	raw, err := v.Analyze(ctx, analyzer.Request{Source: src, Metadata: meta, Prior: prior})
	if err != nil {
		return model.ConsolidatedReport{}, analyzer.AsFailure(name, err)
	}

	flat := analyzer.PriorFindings(prior)
	val, err := parseValidation(raw, name, len(flat))
	if err != nil {
		return model.ConsolidatedReport{}, err
	}

	var merged []model.Finding
	var counts verdictCounts
	for i, f := range flat {
		j, ok := val.judgments[i]
		if !ok {
			counts.unclassified++
			merged = append(merged, f)
			continue
		}
		switch j.verdict {
		case Confirm:
			counts.confirmed++
			merged = append(merged, f)
		case Dispute:
			counts.disputed++
		case Modify:
			counts.modified++
			if j.modified == nil {
				merged = append(merged, f)
				continue
			}
			mod := j.modified.Clone()
			mod.SourceTag = f.SourceTag
			mod.Sources = append([]string(nil), f.Sources...)
			merged = append(merged, mod)
		}
	}
	counts.added = len(val.additions)
	merged = append(merged, val.additions...)

	findings := sortFindings(r.opts.Matcher.Dedupe(merged))

	var scores []int
	for _, res := range st.ai {
		if res.SecurityScore != nil {
			scores = append(scores, *res.SecurityScore)
		}
	}
	if val.score != nil {
		scores = append(scores, *val.score)
	}
	score, level := scoring.Score(findings, scores)

	status.OK = true
	status.Findings = len(val.additions)
	if val.score != nil {
		status.Score = model.Score(*val.score)
	}

	overview, ctype := val.overview, val.contractType
	if overview == "" {
		overview = firstNonEmpty(st.ai, func(a model.AnalysisResult) string { return a.Overview })
	}
	if ctype == "" {
		ctype = firstNonEmpty(st.ai, func(a model.AnalysisResult) string { return a.ContractType })
	}
	if ctype == "" && st.scan != nil {
		ctype = st.scan.ContractType
	}

	features := mergeFeatures(val.keyFeatures, st.successes)

	statuses := append(append([]model.SourceStatus(nil), st.statuses...), status)
	rep = model.ConsolidatedReport{
		Overview:      overview,
		ContractType:  ctype,
		KeyFeatures:   features,
		Findings:      findings,
		SecurityScore: score,
		RiskLevel:     level,
		Tier:          model.TierReconciled,
		Sources:       statuses,
		GeneratedAt:   r.opts.Now().UTC(),
	}
	rep.AnalysisDiscussion = discussReconciled(st, name, counts, val.discussion, findings)
	return rep, nil
}

// singleBest picks the AI result with the highest self-reported score
// (ties and missing scores resolve to configuration order).
func (r *Reconciler) singleBest(st run, reason string) model.ConsolidatedReport {
	best := 0
	for i, res := range st.ai {
		if res.SecurityScore == nil {
			continue
		}
		cur := st.ai[best].SecurityScore
		if cur == nil || *res.SecurityScore > *cur {
			best = i
		}
	}
	chosen := st.ai[best]

	findings := make([]model.Finding, 0, len(chosen.Findings))
	for _, f := range chosen.Findings {
		f = f.Clone()
		f.SourceTag = chosen.Source
		f.Sources = []string{chosen.Source}
		f.ConsensusCount = 1
		findings = append(findings, f)
	}
	findings = sortFindings(findings)

	var scores []int
	if chosen.SecurityScore != nil {
		scores = []int{*chosen.SecurityScore}
	}
	score, level := scoring.Score(findings, scores)

	ctype := chosen.ContractType
	if ctype == "" && st.scan != nil {
		ctype = st.scan.ContractType
	}
	return model.ConsolidatedReport{
		Overview:           chosen.Overview,
		ContractType:       ctype,
		KeyFeatures:        mergeFeatures(chosen.KeyFeatures, scanOnly(st)),
		AnalysisDiscussion: discussSingle(st, chosen.Source, reason),
		Findings:           findings,
		SecurityScore:      score,
		RiskLevel:          level,
		Degraded:           true,
		Tier:               model.TierSingleSource,
		Sources:            st.statuses,
		GeneratedAt:        r.opts.Now().UTC(),
	}
}

func (r *Reconciler) patternOnly(st run) model.ConsolidatedReport {
	if st.scan == nil {
		return Failed("no analyzer produced a result", r.opts.Now())
	}
	scan := *st.scan
	findings := make([]model.Finding, 0, len(scan.Findings))
	for _, f := range scan.Findings {
		findings = append(findings, f.Clone())
	}
	findings = sortFindings(findings)
	score, level := scoring.Score(findings, nil)

	return model.ConsolidatedReport{
		Overview:           scan.Overview,
		ContractType:       scan.ContractType,
		KeyFeatures:        mergeFeatures(scan.KeyFeatures, nil),
		AnalysisDiscussion: discussPatternOnly(st),
		Findings:           findings,
		SecurityScore:      score,
		RiskLevel:          level,
		Degraded:           true,
		Tier:               model.TierPatternOnly,
		Sources:            st.statuses,
		GeneratedAt:        r.opts.Now().UTC(),
	}
}

// sortFindings orders by severity, then consensus, keeping input order for
// ties.
func sortFindings(fs []model.Finding) []model.Finding {
	if fs == nil {
		fs = []model.Finding{}
	}
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Severity.Rank() != fs[j].Severity.Rank() {
			return fs[i].Severity.Rank() > fs[j].Severity.Rank()
		}
		return fs[i].ConsensusCount > fs[j].ConsensusCount
	})
	return fs
}

func mergeFeatures(first []string, results []model.AnalysisResult) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(s string) {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(s))
	}
	for _, s := range first {
		add(s)
	}
	for _, res := range results {
		for _, s := range res.KeyFeatures {
			add(s)
		}
	}
	return out
}

func scanOnly(st run) []model.AnalysisResult {
	if st.scan == nil {
		return nil
	}
	return []model.AnalysisResult{*st.scan}
}

func firstNonEmpty(rs []model.AnalysisResult, field func(model.AnalysisResult) string) string {
	for _, r := range rs {
		if s := field(r); s != "" {
			return s
		}
	}
	return ""
}
