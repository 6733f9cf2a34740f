// Package analyzer defines the adapter interface every analysis source
// implements, and the concrete adapters: hosted language models, external
// static analysis tools, and fixed responses.
package analyzer

import (
	"context"
	"errors"

	"github.com/sprite-ai/solaudit/internal/model"
)

// Request is one analysis call. A non-empty Prior turns it into a
// validation pass over earlier results.
type Request struct {
	Source   string
	Metadata model.ContractMetadata
	Prior    []model.AnalysisResult
}

// Validation reports whether r asks for cross-validation.
func (r Request) Validation() bool {
	return len(r.Prior) > 0
}

// Analyzer produces raw analysis text for a request. A non-nil error is
// always a *model.AnalyzerFailure.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, req Request) (string, error)
}

// AsFailure converts any error into an AnalyzerFailure attributed to source.
// Existing failures pass through unchanged.
func AsFailure(source string, err error) *model.AnalyzerFailure {
	var af *model.AnalyzerFailure
	if errors.As(err, &af) {
		return af
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.Fail(source, model.FailureTimeout, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return model.Fail(source, model.FailureTimeout, "cancelled")
	}
	return model.Fail(source, model.FailureTransport, "%v", err)
}

// Func adapts a plain function to the Analyzer interface.
type Func struct {
	ID string
	Fn func(ctx context.Context, req Request) (string, error)
}

func (f Func) Name() string { return f.ID }

func (f Func) Analyze(ctx context.Context, req Request) (string, error) {
	out, err := f.Fn(ctx, req)
	if err != nil {
		return "", AsFailure(f.ID, err)
	}
	return out, nil
}
