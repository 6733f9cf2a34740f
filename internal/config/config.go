// Package config loads solaudit settings from .env files and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration.
type Config struct {
	// Model providers
	OpenAIKey       string
	OpenAIModel     string
	OpenAIBaseURL   string
	OpenRouterKey   string
	OpenRouterModel string
	AnthropicKey    string
	AnthropicModel  string
	GeminiKey       string
	GeminiModel     string

	// Validator is the analyzer name used for cross-validation. Empty
	// disables reconciliation.
	Validator string

	// External static analyzers
	SlitherPath string
	SolhintPath string

	// Timing and limits
	AnalyzerTimeout     time.Duration
	AuditDeadline       time.Duration
	AnalyzerRatePerMin  int
	MaxSourceBytes      int
	SimilarityThreshold float64

	// Source explorer
	ExplorerKey     string
	ExplorerBaseURL string

	// Persistence
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3UseSSL      bool
	ReportsBucket string
	NATSURL       string

	HTTPAddr string
	Debug    bool
}

// envPaths are tried in order; the first that loads wins.
var envPaths = []string{".env.local", ".env", "../.env"}

// Load reads configuration from the first .env file found and the process
// environment. Variables already set in the environment take precedence.
func Load() (*Config, error) {
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     getEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:   getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenRouterKey:   os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel: getEnvOrDefault("OPENROUTER_MODEL", "deepseek/deepseek-chat"),
		AnthropicKey:    os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  getEnvOrDefault("ANTHROPIC_MODEL", "claude-sonnet-4-5"),
		GeminiKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:     getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		Validator:       os.Getenv("VALIDATOR_SOURCE"),

		SlitherPath: os.Getenv("SLITHER_PATH"),
		SolhintPath: os.Getenv("SOLHINT_PATH"),

		AnalyzerTimeout:     getDuration("ANALYZER_TIMEOUT", 90*time.Second),
		AuditDeadline:       getDuration("AUDIT_DEADLINE", 3*time.Minute),
		AnalyzerRatePerMin:  getInt("ANALYZER_RATE_PER_MIN", 20),
		MaxSourceBytes:      getInt("MAX_SOURCE_BYTES", 48000),
		SimilarityThreshold: getFloat("SIMILARITY_THRESHOLD", 0.75),

		ExplorerKey:     os.Getenv("EXPLORER_API_KEY"),
		ExplorerBaseURL: os.Getenv("EXPLORER_BASE_URL"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),
		CacheTTL:      getDuration("CACHE_TTL", 30*time.Minute),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:      getBool("S3_USE_SSL", false),
		ReportsBucket: getEnvOrDefault("REPORTS_BUCKET", "solaudit-reports"),
		NATSURL:       os.Getenv("NATS_URL"),

		HTTPAddr: getEnvOrDefault("HTTP_ADDR", ":8080"),
		Debug:    getBool("LOG_DEBUG", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges of the numeric settings.
func (c *Config) Validate() error {
	if c.AnalyzerTimeout <= 0 {
		return fmt.Errorf("ANALYZER_TIMEOUT must be positive")
	}
	if c.AuditDeadline <= 0 {
		return fmt.Errorf("AUDIT_DEADLINE must be positive")
	}
	if c.AnalyzerRatePerMin <= 0 {
		return fmt.Errorf("ANALYZER_RATE_PER_MIN must be positive")
	}
	if c.MaxSourceBytes < 1024 {
		return fmt.Errorf("MAX_SOURCE_BYTES must be at least 1024")
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required with S3_ENDPOINT")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
