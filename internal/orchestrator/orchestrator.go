// Package orchestrator fans one contract out to every analysis source under
// a shared deadline and collects one result per source.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/sprite-ai/solaudit/internal/analysis"
	"github.com/sprite-ai/solaudit/internal/analyzer"
	"github.com/sprite-ai/solaudit/internal/extract"
	"github.com/sprite-ai/solaudit/internal/logging"
	"github.com/sprite-ai/solaudit/internal/model"
)

// Observer receives progress events. Calls may come from any goroutine.
type Observer interface {
	SourceStarted(source string)
	SourceFinished(result model.AnalysisResult)
}

// Orchestrator runs analyzers concurrently.
type Orchestrator struct {
	log  *zap.SugaredLogger
	scan func(src string) model.AnalysisResult
}

// New creates an Orchestrator.
func New(log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{log: logging.OrNop(log), scan: analysis.Scan}
}

type outcome struct {
	index  int
	result model.AnalysisResult
}

// Run returns the pattern scanner's result followed by one result per
// distinct source, in configuration order. Sources still running when the
// deadline elapses are reported as timeouts. Run never fails.
func (o *Orchestrator) Run(ctx context.Context, src string, meta model.ContractMetadata,
	sources []analyzer.Analyzer, deadline time.Duration, obs Observer) []model.AnalysisResult {

	if obs == nil {
		obs = nopObserver{}
	}

	obs.SourceStarted(analysis.SourceName)
	scan := o.runScan(src)
	obs.SourceFinished(scan)

	sources = o.dedupe(sources)
	results := make([]model.AnalysisResult, len(sources))
	done := make([]bool, len(sources))

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, deadline)
	}
	defer cancel()

	ch := make(chan outcome, len(sources))
	req := analyzer.Request{Source: src, Metadata: meta}
	for i, a := range sources {
		obs.SourceStarted(a.Name())
		go func(i int, a analyzer.Analyzer) {
			ch <- outcome{index: i, result: o.invoke(runCtx, a, req)}
		}(i, a)
	}

	remaining := len(sources)
	for remaining > 0 {
		select {
		case out := <-ch:
			results[out.index] = out.result
			done[out.index] = true
			remaining--
			obs.SourceFinished(out.result)
		case <-runCtx.Done():
			reason := "deadline exceeded"
			if ctx.Err() == context.Canceled {
				reason = "cancelled"
			}
			for i, a := range sources {
				if done[i] {
					continue
				}
				o.log.Warnw("analyzer still running at deadline", "source", a.Name())
				results[i] = model.FailedResult(model.Fail(a.Name(), model.FailureTimeout, "%s", reason))
				obs.SourceFinished(results[i])
			}
			remaining = 0
		}
	}

	return append([]model.AnalysisResult{scan}, results...)
}

// runScan runs the pattern scanner; a panic becomes a failed result.
func (o *Orchestrator) runScan(src string) (res model.AnalysisResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("pattern scanner panicked", "panic", r)
			res = model.FailedResult(model.Fail(analysis.SourceName, model.FailurePanic, "%v", r))
		}
		res.Duration = time.Since(start)
	}()
	return o.scan(src)
}

// invoke calls one adapter and extracts its output. Panics and failures
// become failed results.
func (o *Orchestrator) invoke(ctx context.Context, a analyzer.Analyzer, req analyzer.Request) (res model.AnalysisResult) {
	name := a.Name()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.log.Errorw("analyzer panicked", "source", name, "panic", r, "stack", string(debug.Stack()))
			res = model.FailedResult(model.Fail(name, model.FailurePanic, "%v", r))
		}
		res.Duration = time.Since(start)
		if res.Failed() {
			o.log.Warnw("analyzer failed", "source", name, "kind", res.FailureKind, "reason", res.Error, "duration", res.Duration)
		} else {
			o.log.Infow("analyzer finished", "source", name, "findings", len(res.Findings), "duration", res.Duration)
		}
	}()

	raw, err := a.Analyze(ctx, req)
	if err != nil {
		return model.FailedResult(analyzer.AsFailure(name, err))
	}
	res, err = extract.Extract(raw, name)
	if err != nil {
		return model.FailedResult(analyzer.AsFailure(name, err))
	}
	return res
}

// dedupe drops adapters whose name was already seen; the first wins.
func (o *Orchestrator) dedupe(sources []analyzer.Analyzer) []analyzer.Analyzer {
	seen := make(map[string]bool, len(sources)+1)
	seen[analysis.SourceName] = true
	out := make([]analyzer.Analyzer, 0, len(sources))
	for _, a := range sources {
		if a == nil {
			continue
		}
		if seen[a.Name()] {
			o.log.Warnw("duplicate analyzer name dropped", "source", a.Name())
			continue
		}
		seen[a.Name()] = true
		out = append(out, a)
	}
	return out
}

type nopObserver struct{}

func (nopObserver) SourceStarted(string)                {}
func (nopObserver) SourceFinished(model.AnalysisResult) {}

// String renders a short summary of results, used in logs.
func String(results []model.AnalysisResult) string {
	ok, failed := 0, 0
	for _, r := range results {
		if r.Failed() {
			failed++
		} else {
			ok++
		}
	}
	return fmt.Sprintf("%d ok, %d failed", ok, failed)
}
