package store

import (
	"context"
	"sync"
	"time"

	"github.com/sprite-ai/solaudit/internal/model"
)

// Memory is an in-process Sink and Cache. It backs the CLI and tests.
type Memory struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	records []Record
	cache   map[string]cached
}

type cached struct {
	report  model.ConsolidatedReport
	expires time.Time
}

// NewMemory returns a Memory whose cached reports expire after ttl.
// A zero ttl keeps them forever.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{TTL: ttl, cache: make(map[string]cached)}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Memory) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Report = rec.Report.Clone()
	m.records = append(m.records, rec)
	return nil
}

// Records returns a copy of every saved record, oldest first.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	for i, r := range m.records {
		r.Report = r.Report.Clone()
		out[i] = r
	}
	return out
}

// Recent returns up to n saved records, newest first.
func (m *Memory) Recent(_ context.Context, n int) ([]Record, error) {
	if n <= 0 {
		return nil, nil
	}
	all := m.Records()
	out := make([]Record, 0, min(n, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, key string) (model.ConsolidatedReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cache[key]
	if !ok {
		return model.ConsolidatedReport{}, ErrCacheMiss
	}
	if !c.expires.IsZero() && !m.now().Before(c.expires) {
		delete(m.cache, key)
		return model.ConsolidatedReport{}, ErrCacheMiss
	}
	return c.report.Clone(), nil
}

func (m *Memory) Put(_ context.Context, key string, rep model.ConsolidatedReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cache == nil {
		m.cache = make(map[string]cached)
	}
	c := cached{report: rep.Clone()}
	if m.TTL > 0 {
		c.expires = m.now().Add(m.TTL)
	}
	m.cache[key] = c
	return nil
}
