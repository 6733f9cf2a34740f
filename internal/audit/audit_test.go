package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/solaudit/internal/analyzer"
	"github.com/sprite-ai/solaudit/internal/model"
	"github.com/sprite-ai/solaudit/internal/source"
	"github.com/sprite-ai/solaudit/internal/store"
)

const (
	vault   = "0x2222222222222222222222222222222222222222"
	code    = "pragma solidity 0.8.20;\ncontract Vault { function f() external { require(tx.origin == address(1)); } }"
	answer  = `{"overview": "vault", "contractType": "Vault", "findings": [{"title": "Reentrancy in withdraw", "severity": "HIGH"}], "securityScore": 70}`
	verdict = `{"verdicts": []}`
)

type fakeProvider struct {
	code  string
	err   error
	panic bool
	calls int32
}

func (p *fakeProvider) Fetch(ctx context.Context, address, network string) (source.Contract, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.panic {
		panic("explorer client bug")
	}
	if p.err != nil {
		return source.Contract{}, p.err
	}
	return source.Contract{Code: p.code, Metadata: model.ContractMetadata{Name: "Vault"}}, nil
}

func static(name string) analyzer.Analyzer {
	return &analyzer.Static{ID: name, Response: answer}
}

type failingSink struct{}

func (failingSink) Save(context.Context, store.Record) error { return errors.New("database down") }

// --- Source unavailable ---

func TestAuditContractUnverified(t *testing.T) {
	sink := store.NewMemory(0)
	svc := New(Config{
		Provider: &fakeProvider{err: source.ErrUnverified},
		Sources:  []analyzer.Analyzer{static("a")},
		Sink:     sink,
	})

	rep := svc.AuditContract(context.Background(), vault, "mainnet", Options{UseValidator: true})

	assert.Equal(t, model.TierSourceUnavailable, rep.Tier)
	assert.True(t, rep.Degraded)
	assert.Equal(t, 0, rep.SecurityScore)
	assert.Equal(t, model.RiskHigh, rep.RiskLevel)
	require.Len(t, rep.Findings, 1)
	assert.Equal(t, model.SeverityInfo, rep.Findings[0].Severity)
	assert.Contains(t, rep.Error, "not verified")

	records := sink.Records()
	require.Len(t, records, 1)
	assert.Equal(t, vault, records[0].Address)
	assert.Equal(t, ModeValidated, records[0].Mode)
}

func TestAuditContractWithoutProvider(t *testing.T) {
	rep := New(Config{}).AuditContract(context.Background(), vault, "", Options{})
	assert.Equal(t, model.TierSourceUnavailable, rep.Tier)
	assert.Contains(t, rep.Overview, "on mainnet")
}

func TestAuditContractEmptySource(t *testing.T) {
	rep := New(Config{Provider: &fakeProvider{code: "  \n"}}).AuditContract(context.Background(), vault, "mainnet", Options{})
	assert.Equal(t, model.TierSourceUnavailable, rep.Tier)
}

// --- Full runs ---

func TestAuditContractReconciled(t *testing.T) {
	provider := &fakeProvider{code: code}
	svc := New(Config{
		Provider:  provider,
		Sources:   []analyzer.Analyzer{static("a"), static("b")},
		Validator: &analyzer.Static{ID: "judge", Response: verdict},
	})

	rep := svc.AuditContract(context.Background(), vault, "mainnet", Options{UseValidator: true})

	assert.Equal(t, model.TierReconciled, rep.Tier)
	assert.False(t, rep.Degraded)
	require.NotEmpty(t, rep.Findings)
	assert.Equal(t, "Reentrancy in withdraw", rep.Findings[0].Title)
	assert.Equal(t, 2, rep.Findings[0].ConsensusCount)
	assert.Empty(t, rep.Error)
}

func TestAuditFastModeSkipsValidator(t *testing.T) {
	called := false
	svc := New(Config{
		Provider: &fakeProvider{code: code},
		Sources:  []analyzer.Analyzer{static("a")},
		Validator: analyzer.Func{ID: "judge", Fn: func(context.Context, analyzer.Request) (string, error) {
			called = true
			return verdict, nil
		}},
	})

	rep := svc.AuditContract(context.Background(), vault, "mainnet", Options{})
	assert.False(t, called)
	assert.Equal(t, model.TierSingleSource, rep.Tier)
}

func TestAuditSourceEmptyIsTotalFailure(t *testing.T) {
	sink := store.NewMemory(0)
	rep := New(Config{Sink: sink}).AuditSource(context.Background(), model.ContractMetadata{}, " \t\n", Options{})

	assert.Equal(t, model.TierFailed, rep.Tier)
	assert.Equal(t, "empty source", rep.Error)
	assert.Equal(t, 0, rep.SecurityScore)
	assert.Len(t, sink.Records(), 1)
}

func TestAuditSourceDeadline(t *testing.T) {
	block := analyzer.Func{ID: "slow", Fn: func(ctx context.Context, _ analyzer.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	svc := New(Config{Sources: []analyzer.Analyzer{block}})

	start := time.Now()
	rep := svc.AuditSource(context.Background(), model.ContractMetadata{}, code, Options{Deadline: 50 * time.Millisecond})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, model.TierPatternOnly, rep.Tier)
	assert.Contains(t, rep.AnalysisDiscussion, "slow (timeout)")
}

// --- Containment ---

func TestProviderPanicBecomesFailedReport(t *testing.T) {
	rep := New(Config{Provider: &fakeProvider{panic: true}}).AuditContract(context.Background(), vault, "mainnet", Options{})
	assert.Equal(t, model.TierFailed, rep.Tier)
	assert.Contains(t, rep.Error, "explorer client bug")
}

func TestSinkFailureDoesNotChangeReport(t *testing.T) {
	cfg := Config{Sources: []analyzer.Analyzer{static("a")}}
	want := New(cfg).AuditSource(context.Background(), model.ContractMetadata{}, code, Options{})

	cfg.Sink = failingSink{}
	got := New(cfg).AuditSource(context.Background(), model.ContractMetadata{}, code, Options{})

	assert.Equal(t, want.Findings, got.Findings)
	assert.Equal(t, want.SecurityScore, got.SecurityScore)
	assert.Empty(t, got.Error)
}

// --- Coalescing and caching ---

func TestConcurrentCallersShareOneRun(t *testing.T) {
	provider := &fakeProvider{code: code}
	gate := make(chan struct{})
	var analyzed int32
	slow := analyzer.Func{ID: "a", Fn: func(ctx context.Context, _ analyzer.Request) (string, error) {
		atomic.AddInt32(&analyzed, 1)
		select {
		case <-gate:
			return answer, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	svc := New(Config{
		Provider:  provider,
		Sources:   []analyzer.Analyzer{slow},
		Validator: &analyzer.Static{ID: "judge", Response: verdict},
		Cache:     store.NewMemory(time.Hour),
	})

	const callers = 8
	reports := make([]model.ConsolidatedReport, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i] = svc.AuditContract(context.Background(), vault, "mainnet", Options{UseValidator: true})
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&analyzed) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&analyzed))
	for _, rep := range reports[1:] {
		assert.Equal(t, reports[0], rep)
	}

	reports[0].Findings[0].Title = "mutated"
	assert.NotEqual(t, "mutated", reports[1].Findings[0].Title)
}

func TestCancelledCallerDoesNotStopSharedRun(t *testing.T) {
	provider := &fakeProvider{code: code}
	gate := make(chan struct{})
	slow := analyzer.Func{ID: "a", Fn: func(ctx context.Context, _ analyzer.Request) (string, error) {
		select {
		case <-gate:
			return answer, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	svc := New(Config{Provider: provider, Sources: []analyzer.Analyzer{slow}})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	first := svc.AuditContract(ctx, vault, "mainnet", Options{})
	assert.Equal(t, model.TierFailed, first.Tier)
	assert.Contains(t, first.Error, "cancelled")

	done := make(chan model.ConsolidatedReport)
	go func() { done <- svc.AuditContract(context.Background(), vault, "mainnet", Options{}) }()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	second := <-done
	assert.Equal(t, model.TierSingleSource, second.Tier)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))
}

func TestCacheServesRepeatAudits(t *testing.T) {
	provider := &fakeProvider{code: code}
	svc := New(Config{
		Provider:  provider,
		Sources:   []analyzer.Analyzer{static("a")},
		Validator: &analyzer.Static{ID: "judge", Response: verdict},
		Cache:     store.NewMemory(time.Hour),
	})

	first := svc.AuditContract(context.Background(), vault, "mainnet", Options{UseValidator: true})
	second := svc.AuditContract(context.Background(), strings.ToUpper(vault), "Ethereum", Options{UseValidator: true})
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&provider.calls))

	// A different mode is a different key.
	svc.AuditContract(context.Background(), vault, "mainnet", Options{})
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.calls))
}

func TestDegradedReportsAreNotCached(t *testing.T) {
	provider := &fakeProvider{code: code}
	svc := New(Config{Provider: provider, Sources: []analyzer.Analyzer{static("a")}, Cache: store.NewMemory(time.Hour)})

	svc.AuditContract(context.Background(), vault, "mainnet", Options{})
	svc.AuditContract(context.Background(), vault, "mainnet", Options{})
	assert.Equal(t, int32(2), atomic.LoadInt32(&provider.calls))
}

func TestServiceIntrospection(t *testing.T) {
	svc := New(Config{Sources: []analyzer.Analyzer{static("a"), nil, static("b")}})
	assert.Equal(t, []string{"a", "b"}, svc.Sources())
	assert.Empty(t, svc.ValidatorName())
}
