package analyzer

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sprite-ai/solaudit/internal/logging"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/retry"
)

// Completer sends one system+user exchange to a hosted model and returns
// the text of its reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// LLM is an Analyzer backed by a hosted language model.
type LLM struct {
	name           string
	backend        Completer
	timeout        time.Duration
	limiter        *rate.Limiter
	maxSourceBytes int
	attempts       int
	baseDelay      time.Duration
	log            *zap.SugaredLogger
}

// LLMOption configures an LLM adapter.
type LLMOption func(*LLM)

// WithTimeout bounds every call, retries included.
func WithTimeout(d time.Duration) LLMOption {
	return func(l *LLM) { l.timeout = d }
}

// WithRatePerMinute limits calls to n per minute with a burst of one.
func WithRatePerMinute(n int) LLMOption {
	return func(l *LLM) {
		if n > 0 {
			l.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// WithLimiter shares an existing limiter, so several adapters over one
// backend draw from the same budget.
func WithLimiter(lim *rate.Limiter) LLMOption {
	return func(l *LLM) {
		if lim != nil {
			l.limiter = lim
		}
	}
}

// WithMaxSourceBytes sets the prompt source budget.
func WithMaxSourceBytes(n int) LLMOption {
	return func(l *LLM) { l.maxSourceBytes = n }
}

// WithRetry sets the attempt count and initial backoff.
func WithRetry(attempts int, baseDelay time.Duration) LLMOption {
	return func(l *LLM) {
		l.attempts = attempts
		l.baseDelay = baseDelay
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.SugaredLogger) LLMOption {
	return func(l *LLM) { l.log = log }
}

// NewLLM builds an adapter named name over backend.
func NewLLM(name string, backend Completer, opts ...LLMOption) *LLM {
	l := &LLM{
		name:           name,
		backend:        backend,
		timeout:        90 * time.Second,
		limiter:        rate.NewLimiter(rate.Inf, 1),
		maxSourceBytes: DefaultMaxSourceBytes,
		attempts:       3,
		baseDelay:      500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = logging.OrNop(l.log)
	return l
}

func (l *LLM) Name() string { return l.name }

func (l *LLM) Analyze(ctx context.Context, req Request) (string, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return "", AsFailure(l.name, ctx.Err())
		}
		return "", model.Fail(l.name, model.FailureRateLimit, "rate limiter: %v", err)
	}

	system, user := BuildPrompt(req, l.maxSourceBytes)

	var out string
	attempt := 0
	err := retry.Do(ctx, l.attempts, l.baseDelay, retryable, func() error {
		attempt++
		s, err := l.backend.Complete(ctx, system, user)
		if err != nil {
			l.log.Debugw("completion failed", "source", l.name, "attempt", attempt, "error", err)
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return "", l.classify(ctx, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", model.Fail(l.name, model.FailureParse, "empty completion")
	}
	return out, nil
}

func (l *LLM) classify(ctx context.Context, err error) *model.AnalyzerFailure {
	if ctx.Err() != nil {
		return AsFailure(l.name, ctx.Err())
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == 429:
			return model.Fail(l.name, model.FailureRateLimit, "%v", se)
		case se.Code == 401 || se.Code == 403:
			return model.Fail(l.name, model.FailureConfig, "%v", se)
		}
	}
	var pe *payloadError
	if errors.As(err, &pe) {
		return model.Fail(l.name, model.FailureParse, "%v", pe)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.Fail(l.name, model.FailureTimeout, "%v", err)
	}
	return AsFailure(l.name, err)
}

// retryable reports whether err is worth another attempt: rate limits,
// server errors and network failures are; other client errors are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == 429 || se.Code >= 500
	}
	var pe *payloadError
	return !errors.As(err, &pe)
}
