package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/solaudit/internal/config"
	"github.com/sprite-ai/solaudit/internal/model"
)

// --- Prompt tests ---

func TestTruncateSource(t *testing.T) {
	src := strings.Repeat("a", 600) + strings.Repeat("b", 600)
	got := TruncateSource(src, 300)

	assert.True(t, strings.HasPrefix(got, strings.Repeat("a", 200)))
	assert.True(t, strings.HasSuffix(got, strings.Repeat("b", 100)))
	assert.Contains(t, got, "[... 900 bytes truncated ...]")

	assert.Equal(t, "short", TruncateSource("short", 300))
}

func TestBuildPromptDeterministic(t *testing.T) {
	req := Request{Source: "contract A {}", Metadata: model.ContractMetadata{Name: "A", Network: "mainnet"}}
	s1, u1 := BuildPrompt(req, 0)
	s2, u2 := BuildPrompt(req, 0)
	assert.Equal(t, s1, s2)
	assert.Equal(t, u1, u2)
	assert.Contains(t, u1, "- Name: A")
	assert.Contains(t, u1, `"findings"`)
	assert.NotContains(t, u1, "verdicts")
}

func TestBuildValidationPrompt(t *testing.T) {
	prior := []model.AnalysisResult{
		{Source: "pattern-scanner", Findings: []model.Finding{{Title: "tx.origin", Severity: model.SeverityMedium, SourceTag: "pattern-scanner"}}},
		{Source: "broken", Error: "timeout"},
		{Source: "openai", SecurityScore: model.Score(80), Findings: []model.Finding{{Title: "Reentrancy", Severity: model.SeverityHigh, SourceTag: "openai"}}},
	}
	req := Request{Source: "contract A {}", Prior: prior}
	require.True(t, req.Validation())

	_, user := BuildPrompt(req, 0)
	assert.Contains(t, user, "[0] (pattern-scanner) tx.origin")
	assert.Contains(t, user, "[1] (openai) Reentrancy")
	assert.Contains(t, user, "openai scored the contract 80/100")
	assert.Contains(t, user, "verdicts")

	assert.Len(t, PriorFindings(prior), 2)
}

// --- Backend tests ---

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "m", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := &OpenAIChat{BaseURL: srv.URL + "/v1/", APIKey: "key", Model: "m"}
	out, err := c.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("anthropic-version"))

		var body anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sys", body.System)

		w.Write([]byte(`{"content":[{"type":"text","text":"part one "},{"type":"text","text":"part two"}]}`))
	}))
	defer srv.Close()

	a := &Anthropic{BaseURL: srv.URL, APIKey: "key", Model: "m"}
	out, err := a.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "part one part two", out)
}

func TestGemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gm:generateContent", r.URL.Path)
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	g := &Gemini{BaseURL: srv.URL, APIKey: "key", Model: "gm"}
	out, err := g.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

// --- LLM adapter tests ---

func statusServer(t *testing.T, codes ...int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		code := codes[len(codes)-1]
		if int(n) <= len(codes) {
			code = codes[n-1]
		}
		if code != http.StatusOK {
			http.Error(w, "nope", code)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"findings\":[]}"}}]}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestLLMRetriesServerErrors(t *testing.T) {
	srv, calls := statusServer(t, 500, 502, 200)
	l := NewLLM("m", &OpenAIChat{BaseURL: srv.URL}, WithRetry(3, time.Millisecond))

	out, err := l.Analyze(context.Background(), Request{Source: "contract A {}"})
	require.NoError(t, err)
	assert.Contains(t, out, "findings")
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestLLMFailureKinds(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		kind  model.FailureKind
		calls int32
	}{
		{"rate limited", http.StatusTooManyRequests, model.FailureRateLimit, 2},
		{"unauthorized", http.StatusUnauthorized, model.FailureConfig, 1},
		{"bad request", http.StatusBadRequest, model.FailureTransport, 1},
		{"server error", http.StatusInternalServerError, model.FailureTransport, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := statusServer(t, tt.code)
			l := NewLLM("m", &OpenAIChat{BaseURL: srv.URL}, WithRetry(2, time.Millisecond))

			_, err := l.Analyze(context.Background(), Request{Source: "x"})
			var af *model.AnalyzerFailure
			require.True(t, errors.As(err, &af), "got %v", err)
			assert.Equal(t, tt.kind, af.Kind)
			assert.Equal(t, "m", af.Source)
			assert.Equal(t, tt.calls, atomic.LoadInt32(calls))
		})
	}
}

func TestLLMTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	l := NewLLM("slow", &OpenAIChat{BaseURL: srv.URL}, WithTimeout(50*time.Millisecond))
	_, err := l.Analyze(context.Background(), Request{Source: "x"})

	var af *model.AnalyzerFailure
	require.True(t, errors.As(err, &af))
	assert.Equal(t, model.FailureTimeout, af.Kind)
}

func TestLLMEmptyCompletion(t *testing.T) {
	l := NewLLM("m", completerFunc(func(ctx context.Context, s, u string) (string, error) {
		return "  ", nil
	}))
	_, err := l.Analyze(context.Background(), Request{Source: "x"})

	var af *model.AnalyzerFailure
	require.True(t, errors.As(err, &af))
	assert.Equal(t, model.FailureParse, af.Kind)
}

func TestLLMRateLimiterHonoursDeadline(t *testing.T) {
	l := NewLLM("m", completerFunc(func(ctx context.Context, s, u string) (string, error) {
		return "ok", nil
	}), WithRatePerMinute(1), WithTimeout(20*time.Millisecond))

	_, err := l.Analyze(context.Background(), Request{Source: "x"})
	require.NoError(t, err)

	// The bucket is empty for another minute; the wait cannot fit the timeout.
	_, err = l.Analyze(context.Background(), Request{Source: "x"})
	var af *model.AnalyzerFailure
	require.True(t, errors.As(err, &af))
	assert.Equal(t, model.FailureRateLimit, af.Kind)
}

type completerFunc func(ctx context.Context, system, user string) (string, error)

func (f completerFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// --- Tool parser tests ---

const slitherOutput = `{
  "success": true,
  "error": null,
  "results": {
    "detectors": [
      {"check": "reentrancy-eth", "impact": "High", "confidence": "Medium",
       "description": "Reentrancy in Vault.withdraw()\n",
       "elements": [{"source_mapping": {"lines": [21, 22, 23]}}]},
      {"check": "solc-version", "impact": "Informational", "confidence": "High",
       "description": "Pragma version too old", "elements": []}
    ]
  }
}`

func TestParseSlither(t *testing.T) {
	fs, err := ParseSlither([]byte(slitherOutput))
	require.NoError(t, err)
	require.Len(t, fs, 2)

	assert.Equal(t, "reentrancy-eth", fs[0].Title)
	assert.Equal(t, "HIGH", fs[0].Severity)
	assert.Equal(t, "L21", fs[0].CodeReference)
	assert.Equal(t, "Reentrancy in Vault.withdraw()", fs[0].Description)
	assert.Equal(t, "INFO", fs[1].Severity)

	_, err = ParseSlither([]byte(`{"success": false, "error": "compilation failed"}`))
	assert.Error(t, err)
}

func TestParseSolhint(t *testing.T) {
	out := `[{"filePath": "Contract.sol", "messages": [
		{"ruleId": "avoid-tx-origin", "severity": 2, "message": "Avoid to use tx.origin", "line": 12},
		{"ruleId": "no-empty-blocks", "severity": "Warning", "message": "Code contains empty blocks", "line": 3}
	]}]`
	fs, err := ParseSolhint([]byte(out))
	require.NoError(t, err)
	require.Len(t, fs, 2)
	assert.Equal(t, "MEDIUM", fs[0].Severity)
	assert.Equal(t, "L12", fs[0].CodeReference)
	assert.Equal(t, "LOW", fs[1].Severity)
}

func TestCanonicalJSONRoundTrips(t *testing.T) {
	fs, err := ParseSlither([]byte(slitherOutput))
	require.NoError(t, err)
	raw, err := canonicalJSON("slither", fs)
	require.NoError(t, err)

	var doc struct {
		Findings []ToolFinding `json:"findings"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, fs, doc.Findings)
}

func TestToolMissingBinary(t *testing.T) {
	tool := &Tool{Kind: ToolSlither, Binary: "definitely-not-installed-slither"}
	_, err := tool.Analyze(context.Background(), Request{Source: "contract A {}"})

	var af *model.AnalyzerFailure
	require.True(t, errors.As(err, &af))
	assert.Equal(t, model.FailureConfig, af.Kind)
	assert.Equal(t, "slither", af.Source)
}

// --- Static and replay ---

func TestStatic(t *testing.T) {
	s := &Static{ID: "fixed", Response: "resp"}
	out, err := s.Analyze(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "resp", out)

	slow := &Static{ID: "slow", Response: "resp", Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = slow.Analyze(ctx, Request{})
	var af *model.AnalyzerFailure
	require.True(t, errors.As(err, &af))
	assert.Equal(t, model.FailureTimeout, af.Kind)
}

func TestLoadReplay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "openai.json"), []byte(`{"findings":[]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "anthropic.md"), []byte("text"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validator.json"), []byte(`{"verdicts":[]}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.csv"), []byte("x"), 0o600))

	sources, validator, err := LoadReplay(dir)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "anthropic", sources[0].Name())
	assert.Equal(t, "openai", sources[1].Name())
	require.NotNil(t, validator)
	assert.Equal(t, "validator", validator.Name())
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		OpenAIKey:          "k1",
		AnthropicKey:       "k2",
		Validator:          "Anthropic",
		SolhintPath:        "solhint",
		AnalyzerTimeout:    time.Second,
		AnalyzerRatePerMin: 10,
		MaxSourceBytes:     4096,
	}
	sources, validator := FromConfig(cfg, nil)

	var names []string
	for _, s := range sources {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"openai", "anthropic", "solhint"}, names)
	require.NotNil(t, validator)
	assert.Equal(t, "anthropic-validator", validator.Name())
	assert.Same(t, sources[1].(*LLM).limiter, validator.(*LLM).limiter)
	assert.NotSame(t, sources[0].(*LLM).limiter, sources[1].(*LLM).limiter)

	cfg.Validator = "gemini"
	_, validator = FromConfig(cfg, nil)
	assert.Nil(t, validator)
}

func TestFuncWrapsErrors(t *testing.T) {
	f := Func{ID: "f", Fn: func(ctx context.Context, req Request) (string, error) {
		return "", errors.New("boom")
	}}
	_, err := f.Analyze(context.Background(), Request{})
	var af *model.AnalyzerFailure
	require.True(t, errors.As(err, &af))
	assert.Equal(t, model.FailureTransport, af.Kind)
}
