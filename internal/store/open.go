package store

import (
	"context"

	"go.uber.org/zap"

	"github.com/sprite-ai/solaudit/internal/config"
	"github.com/sprite-ai/solaudit/internal/logging"
)

// Backends is the set of stores opened from configuration.
type Backends struct {
	Sink    Multi
	Cache   Cache
	// History is the first queryable sink: Postgres, then Redis.
	History History

	closers []func()
}

// Open connects every backend cfg names. A backend that cannot be reached
// is logged and left out; Open itself never fails. Without Redis the cache
// is in-process.
func Open(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) *Backends {
	log = logging.OrNop(log)
	b := &Backends{}

	if cfg.DatabaseURL != "" {
		if pg, err := OpenPostgres(ctx, cfg.DatabaseURL); err != nil {
			log.Warnw("postgres sink disabled", "error", err)
		} else {
			b.Sink = append(b.Sink, pg)
			b.History = pg
			b.closers = append(b.closers, pg.Close)
		}
	}

	if cfg.RedisAddr != "" {
		if r, err := NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CacheTTL); err != nil {
			log.Warnw("redis cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			b.Sink = append(b.Sink, r)
			b.Cache = r
			if b.History == nil {
				b.History = r
			}
			b.closers = append(b.closers, func() { _ = r.Close() })
		}
	}
	if b.Cache == nil && cfg.CacheTTL > 0 {
		b.Cache = NewMemory(cfg.CacheTTL)
	}

	if cfg.S3Endpoint != "" {
		o, err := NewObjectStore(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL, cfg.ReportsBucket)
		if err == nil {
			err = o.EnsureBucket(ctx)
		}
		if err != nil {
			log.Warnw("object store sink disabled", "endpoint", cfg.S3Endpoint, "error", err)
		} else {
			b.Sink = append(b.Sink, o)
		}
	}

	if cfg.NATSURL != "" {
		if ev, err := NewEvents(cfg.NATSURL); err != nil {
			log.Warnw("event publisher disabled", "url", cfg.NATSURL, "error", err)
		} else {
			b.Sink = append(b.Sink, ev)
			b.closers = append(b.closers, ev.Close)
		}
	}

	log.Debugw("stores opened", "sinks", len(b.Sink), "cache", b.Cache != nil)
	return b
}

// Close releases every connection Open made.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
