package analyzer

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sprite-ai/solaudit/internal/config"
)

// Source names for configured adapters.
const (
	NameOpenAI     = "openai"
	NameOpenRouter = "openrouter"
	NameAnthropic  = "anthropic"
	NameGemini     = "gemini"
)

// ValidatorSuffix marks the dedicated validator instance of a model.
const ValidatorSuffix = "-validator"

// FromConfig builds the adapters for every configured provider and tool, in
// a fixed order. The validator is a separate instance of the model named by
// cfg.Validator; it is nil when unset or when that model is not configured.
func FromConfig(cfg *config.Config, log *zap.SugaredLogger) (sources []Analyzer, validator Analyzer) {
	opts := []LLMOption{
		WithTimeout(cfg.AnalyzerTimeout),
		WithRatePerMinute(cfg.AnalyzerRatePerMin),
		WithMaxSourceBytes(cfg.MaxSourceBytes),
		WithLogger(log),
	}

	backends := map[string]Completer{}
	var order []string
	add := func(name string, c Completer) {
		backends[name] = c
		order = append(order, name)
	}

	if cfg.OpenAIKey != "" {
		add(NameOpenAI, &OpenAIChat{BaseURL: cfg.OpenAIBaseURL, APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel})
	}
	if cfg.OpenRouterKey != "" {
		add(NameOpenRouter, &OpenAIChat{
			BaseURL: "https://openrouter.ai/api/v1",
			APIKey:  cfg.OpenRouterKey,
			Model:   cfg.OpenRouterModel,
			Headers: map[string]string{"X-Title": "solaudit"},
		})
	}
	if cfg.AnthropicKey != "" {
		add(NameAnthropic, &Anthropic{APIKey: cfg.AnthropicKey, Model: cfg.AnthropicModel})
	}
	if cfg.GeminiKey != "" {
		add(NameGemini, &Gemini{APIKey: cfg.GeminiKey, Model: cfg.GeminiModel})
	}

	llms := make(map[string]*LLM, len(order))
	for _, name := range order {
		llms[name] = NewLLM(name, backends[name], opts...)
		sources = append(sources, llms[name])
	}
	if cfg.SlitherPath != "" {
		sources = append(sources, &Tool{Kind: ToolSlither, Binary: cfg.SlitherPath, Timeout: cfg.AnalyzerTimeout})
	}
	if cfg.SolhintPath != "" {
		sources = append(sources, &Tool{Kind: ToolSolhint, Binary: cfg.SolhintPath, Timeout: cfg.AnalyzerTimeout})
	}

	v := strings.ToLower(strings.TrimSpace(cfg.Validator))
	if src, ok := llms[v]; ok {
		validator = NewLLM(v+ValidatorSuffix, backends[v], append(opts, WithLimiter(src.limiter))...)
	}
	return sources, validator
}
