// Package store persists completed audits and caches recent reports.
//
// Every backend sits behind Sink or Cache. The audit service treats both as
// best effort: a store error is logged and never changes the report a
// caller receives.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sprite-ai/solaudit/internal/model"
)

// ErrCacheMiss is returned by Cache.Get when no fresh report exists.
var ErrCacheMiss = errors.New("store: cache miss")

// Record is one completed audit plus its run metadata.
type Record struct {
	ID        uuid.UUID                `json:"id"`
	Address   string                   `json:"address,omitempty"`
	Network   string                   `json:"network,omitempty"`
	Mode      string                   `json:"mode"`
	CreatedAt time.Time                `json:"createdAt"`
	Report    model.ConsolidatedReport `json:"report"`
}

// NewRecord stamps a report with a fresh ID.
func NewRecord(address, network, mode string, rep model.ConsolidatedReport, now time.Time) Record {
	return Record{
		ID:        uuid.New(),
		Address:   address,
		Network:   network,
		Mode:      mode,
		CreatedAt: now.UTC(),
		Report:    rep,
	}
}

// Key identifies an audit for the in-flight registry and the cache.
func (r Record) Key() string {
	return Key(r.Address, r.Network, r.Mode)
}

// Key builds the cache key for an address on a network in a mode.
// Addresses are case-insensitive.
func Key(address, network, mode string) string {
	return strings.ToLower(strings.TrimSpace(address)) + "|" + strings.ToLower(network) + "|" + mode
}

// Sink receives completed audits.
type Sink interface {
	Save(ctx context.Context, rec Record) error
}

// Cache returns recent reports by key.
type Cache interface {
	Get(ctx context.Context, key string) (model.ConsolidatedReport, error)
	Put(ctx context.Context, key string, rep model.ConsolidatedReport) error
}

// History lists recently saved audits, newest first.
type History interface {
	Recent(ctx context.Context, n int) ([]Record, error)
}

// Multi fans a record out to several sinks. Every sink is attempted; the
// errors of those that fail are joined.
type Multi []Sink

func (m Multi) Save(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
