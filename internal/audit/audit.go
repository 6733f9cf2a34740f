// Package audit is the entry point for running an audit end to end: fetch
// source, fan out to analyzers, reconcile, cache and record. Nothing below
// it escapes as an error or a panic; every outcome is a report.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sprite-ai/solaudit/internal/analyzer"
	"github.com/sprite-ai/solaudit/internal/logging"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/orchestrator"
	"github.com/sprite-ai/solaudit/internal/reconcile"
	"github.com/sprite-ai/solaudit/internal/source"
	"github.com/sprite-ai/solaudit/internal/store"
)

// Audit modes; part of the in-flight and cache key.
const (
	ModeValidated = "validated"
	ModeFast      = "fast"
)

const (
	defaultDeadline    = 3 * time.Minute
	defaultSinkTimeout = 5 * time.Second
	fetchBudget        = 30 * time.Second
)

// Options tune a single audit.
type Options struct {
	// UseValidator enables cross-validation of the sources.
	UseValidator bool
	// Deadline bounds the analyzer fan-out; zero uses the service default.
	Deadline time.Duration
	// Observer receives progress events. Only the caller that starts a
	// run is observed; callers that join an in-flight run are not.
	Observer orchestrator.Observer
}

func (o Options) mode() string {
	if o.UseValidator {
		return ModeValidated
	}
	return ModeFast
}

// Config wires a Service.
type Config struct {
	Provider         source.Provider
	Sources          []analyzer.Analyzer
	Validator        analyzer.Analyzer
	Cache            store.Cache
	Sink             store.Sink
	Matcher          reconcile.Matcher
	Deadline         time.Duration
	ValidatorTimeout time.Duration
	SinkTimeout      time.Duration
	Log              *zap.SugaredLogger
	Now              func() time.Time
}

// Service runs audits. At most one run per key is in flight; concurrent
// callers for the same key share its report.
type Service struct {
	cfg   Config
	log   *zap.SugaredLogger
	group singleflight.Group
}

// New creates a Service, filling defaults for zero durations.
func New(cfg Config) *Service {
	if cfg.Deadline <= 0 {
		cfg.Deadline = defaultDeadline
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{cfg: cfg, log: logging.OrNop(cfg.Log)}
}

// Sources returns the names of the configured analyzers.
func (s *Service) Sources() []string {
	names := make([]string, 0, len(s.cfg.Sources))
	for _, a := range s.cfg.Sources {
		if a != nil {
			names = append(names, a.Name())
		}
	}
	return names
}

// ValidatorName is the configured validator, or "" when there is none.
func (s *Service) ValidatorName() string {
	if s.cfg.Validator == nil {
		return ""
	}
	return s.cfg.Validator.Name()
}

// AuditContract audits the verified source of address on network.
func (s *Service) AuditContract(ctx context.Context, address, network string, opts Options) model.ConsolidatedReport {
	address = strings.TrimSpace(address)
	network = source.NormalizeNetwork(network)
	key := store.Key(address, network, opts.mode())

	return s.shared(ctx, key, func(runCtx context.Context) model.ConsolidatedReport {
		rep := s.fetchAndAnalyze(runCtx, address, network, opts)
		s.finish(runCtx, key, address, network, opts.mode(), rep)
		return rep
	})
}

// AuditSource audits source code supplied directly. Identical submissions
// in flight at the same time share one run.
func (s *Service) AuditSource(ctx context.Context, meta model.ContractMetadata, code string, opts Options) model.ConsolidatedReport {
	subject := meta.Address
	if subject == "" {
		sum := sha256.Sum256([]byte(code))
		subject = "sha256:" + hex.EncodeToString(sum[:])
	}
	key := store.Key(subject, meta.Network, opts.mode())

	return s.shared(ctx, key, func(runCtx context.Context) model.ConsolidatedReport {
		var rep model.ConsolidatedReport
		if strings.TrimSpace(code) == "" {
			rep = reconcile.Failed("empty source", s.cfg.Now())
		} else {
			rep = s.analyze(runCtx, key, code, meta, opts)
		}
		s.finish(runCtx, key, meta.Address, meta.Network, opts.mode(), rep)
		return rep
	})
}

// shared serves key from the cache or joins the in-flight run for it,
// starting one if none exists. The run is detached from ctx so one
// caller's cancellation does not affect the others; a caller whose ctx
// ends first receives a cancelled report.
func (s *Service) shared(ctx context.Context, key string, run func(context.Context) model.ConsolidatedReport) model.ConsolidatedReport {
	if rep, ok := s.cached(ctx, key); ok {
		return rep
	}

	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(detached, s.cfg.Deadline+s.cfg.ValidatorTimeout+fetchBudget)
		defer cancel()
		return s.safely(runCtx, key, run), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			s.log.Debugw("joined in-flight audit", "key", key)
		}
		return res.Val.(model.ConsolidatedReport).Clone()
	case <-ctx.Done():
		s.log.Infow("caller left before audit finished", "key", key, "error", ctx.Err())
		return Cancelled(ctx.Err(), s.cfg.Now())
	}
}

func (s *Service) safely(ctx context.Context, key string, run func(context.Context) model.ConsolidatedReport) (rep model.ConsolidatedReport) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Errorw("audit panicked", "key", key, "panic", p)
			rep = reconcile.Failed(fmt.Sprintf("internal error: %v", p), s.cfg.Now())
		}
	}()
	return run(ctx)
}

func (s *Service) cached(ctx context.Context, key string) (model.ConsolidatedReport, bool) {
	if s.cfg.Cache == nil {
		return model.ConsolidatedReport{}, false
	}
	rep, err := s.cfg.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrCacheMiss) {
			s.log.Warnw("cache lookup failed", "key", key, "error", err)
		}
		return model.ConsolidatedReport{}, false
	}
	s.log.Debugw("cache hit", "key", key)
	return rep, true
}

func (s *Service) fetchAndAnalyze(ctx context.Context, address, network string, opts Options) model.ConsolidatedReport {
	if s.cfg.Provider == nil {
		return Unavailable(address, network, "no source provider is configured", s.cfg.Now())
	}
	fetchCtx, cancel := context.WithTimeout(ctx, fetchBudget)
	c, err := s.cfg.Provider.Fetch(fetchCtx, address, network)
	cancel()
	if err != nil {
		s.log.Warnw("source unavailable", "address", address, "network", network, "error", err)
		return Unavailable(address, network, err.Error(), s.cfg.Now())
	}
	if strings.TrimSpace(c.Code) == "" {
		return Unavailable(address, network, "explorer returned empty source", s.cfg.Now())
	}
	meta := c.Metadata
	if meta.Address == "" {
		meta.Address = address
	}
	if meta.Network == "" {
		meta.Network = network
	}
	return s.analyze(ctx, store.Key(address, network, opts.mode()), c.Code, meta, opts)
}

func (s *Service) analyze(ctx context.Context, key, code string, meta model.ContractMetadata, opts Options) model.ConsolidatedReport {
	start := time.Now()
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = s.cfg.Deadline
	}

	results := orchestrator.New(s.log).Run(ctx, code, meta, s.cfg.Sources, deadline, opts.Observer)

	var validator analyzer.Analyzer
	if opts.UseValidator {
		validator = s.cfg.Validator
	}
	rep := reconcile.New(reconcile.Options{
		Validator:        validator,
		ValidatorTimeout: s.cfg.ValidatorTimeout,
		Matcher:          s.cfg.Matcher,
		Observer:         opts.Observer,
		Log:              s.log,
		Now:              s.cfg.Now,
	}).Reconcile(ctx, results, code, meta)

	s.log.Infow("audit complete",
		"key", key,
		"tier", rep.Tier,
		"score", rep.SecurityScore,
		"findings", len(rep.Findings),
		"sources", orchestrator.String(results),
		"duration", time.Since(start),
	)
	return rep
}

// finish caches a complete report and hands the run to the sink. Store
// errors are logged only.
func (s *Service) finish(ctx context.Context, key, address, network, mode string, rep model.ConsolidatedReport) {
	if s.cfg.Cache != nil && !rep.Degraded {
		if err := s.cfg.Cache.Put(ctx, key, rep.Clone()); err != nil {
			s.log.Warnw("cache store failed", "key", key, "error", err)
		}
	}
	if s.cfg.Sink == nil {
		return
	}

	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SinkTimeout)
	defer cancel()
	rec := store.NewRecord(address, network, mode, rep.Clone(), s.cfg.Now())
	if err := s.cfg.Sink.Save(sinkCtx, rec); err != nil {
		s.log.Warnw("audit sink failed", "key", key, "id", rec.ID, "error", err)
	}
}
