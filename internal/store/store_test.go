package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/solaudit/internal/config"
	"github.com/sprite-ai/solaudit/internal/model"
)

var created = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func sampleReport() model.ConsolidatedReport {
	return model.ConsolidatedReport{
		Overview:      "vault",
		ContractType:  "ERC20",
		KeyFeatures:   []string{"Ownable"},
		Findings:      []model.Finding{{Title: "Reentrancy", Severity: model.SeverityCritical, SourceTag: "a", ConsensusCount: 2, Sources: []string{"a", "b"}}},
		SecurityScore: 80,
		RiskLevel:     model.RiskLow,
		Tier:          model.TierReconciled,
		Sources:       []model.SourceStatus{{Source: "a", OK: true, Score: model.Score(70)}},
		GeneratedAt:   created,
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "0xabc|mainnet|validated", Key(" 0xABC ", "Mainnet", "validated"))
	rec := NewRecord("0xAbC", "mainnet", "validated", sampleReport(), created)
	assert.Equal(t, Key("0xabc", "mainnet", "validated"), rec.Key())
	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, created, rec.CreatedAt)
}

// --- Memory ---

func TestMemorySinkCopies(t *testing.T) {
	m := NewMemory(0)
	rec := NewRecord("0x1", "mainnet", "fast", sampleReport(), created)
	require.NoError(t, m.Save(context.Background(), rec))

	rec.Report.Findings[0].Sources[0] = "mutated"
	got := m.Records()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Report.Findings[0].Sources[0])

	got[0].Report.KeyFeatures[0] = "mutated"
	assert.Equal(t, "Ownable", m.Records()[0].Report.KeyFeatures[0])
}

func TestMemoryRecentNewestFirst(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	for _, addr := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, m.Save(ctx, NewRecord(addr, "mainnet", "fast", sampleReport(), created)))
	}
	got, err := m.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "0x3", got[0].Address)
	assert.Equal(t, "0x2", got[1].Address)

	got, err = m.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryCacheExpires(t *testing.T) {
	now := created
	m := NewMemory(time.Minute)
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, m.Put(ctx, "k", sampleReport()))
	got, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, sampleReport(), got)

	now = now.Add(time.Minute)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheWithoutTTL(t *testing.T) {
	var m Memory
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "k", sampleReport()))
	_, err := m.Get(ctx, "k")
	assert.NoError(t, err)
}

// --- Multi ---

type failingSink struct{ calls int }

func (f *failingSink) Save(context.Context, Record) error {
	f.calls++
	return errors.New("unreachable")
}

func TestMultiAttemptsEverySink(t *testing.T) {
	bad := &failingSink{}
	good := NewMemory(0)
	m := Multi{bad, nil, good}

	err := m.Save(context.Background(), NewRecord("", "", "local", sampleReport(), created))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, good.Records(), 1)

	assert.NoError(t, Multi{}.Save(context.Background(), Record{}))
}

// --- Object keys and events ---

func TestObjectKey(t *testing.T) {
	rec := NewRecord("0xABC", "mainnet", "validated", sampleReport(), created)
	key := ObjectKey(rec)
	assert.True(t, strings.HasPrefix(key, "reports/mainnet/0xabc/20260304T050607Z-"), key)
	assert.True(t, strings.HasSuffix(key, rec.ID.String()+".json"))

	local := NewRecord("", "", "local", sampleReport(), created)
	assert.True(t, strings.HasPrefix(ObjectKey(local), "reports/local/local/"))
}

func TestCompletedEvent(t *testing.T) {
	rec := NewRecord("0x1", "mainnet", "validated", sampleReport(), created)
	ev := CompletedEvent(rec)
	assert.Equal(t, rec.ID.String(), ev.ID)
	assert.Equal(t, model.TierReconciled, ev.Tier)
	assert.Equal(t, 80, ev.SecurityScore)
	assert.Equal(t, 1, ev.Findings[model.SeverityCritical])
}

// --- Open ---

func TestOpenWithoutBackends(t *testing.T) {
	b := Open(context.Background(), &config.Config{}, nil)
	defer b.Close()
	assert.Empty(t, b.Sink)
	assert.Nil(t, b.Cache)

	b = Open(context.Background(), &config.Config{CacheTTL: time.Minute}, nil)
	_, ok := b.Cache.(*Memory)
	assert.True(t, ok)
}

// --- Integration ---

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if testing.Short() || addr == "" {
		t.Skip("Skipping redis integration test: REDIS_ADDR not set")
	}
	r, err := NewRedis(addr, os.Getenv("REDIS_PASSWORD"), 0, time.Minute)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	key := Key(uuid.NewString(), "test", "fast")
	_, err = r.Get(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, r.Put(ctx, key, sampleReport()))
	got, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 80, got.SecurityScore)
	assert.Equal(t, []string{"a", "b"}, got.Findings[0].Sources)

	rec := NewRecord("0x1", "test", "fast", sampleReport(), created)
	require.NoError(t, r.Save(ctx, rec))
	recent, err := r.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, rec.ID, recent[0].ID)
}

func TestPostgresSaveAndRecent(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if testing.Short() || url == "" {
		t.Skip("Skipping postgres integration test: DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := OpenPostgres(ctx, url)
	require.NoError(t, err)
	defer pg.Close()

	addr := "0x" + strings.ReplaceAll(uuid.NewString(), "-", "")
	rec := NewRecord(addr, "test", "validated", sampleReport(), time.Now())
	require.NoError(t, pg.Save(ctx, rec))

	recent, err := pg.Recent(ctx, 10)
	require.NoError(t, err)
	var found bool
	for _, got := range recent {
		if got.ID == rec.ID {
			found = true
			assert.Equal(t, model.TierReconciled, got.Report.Tier)
		}
	}
	assert.True(t, found, "saved audit not among recent rows")
}
