package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Minute, cfg.AuditDeadline)
	assert.Equal(t, 0.75, cfg.SimilarityThreshold)
	assert.Equal(t, 48000, cfg.MaxSourceBytes)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("AUDIT_DEADLINE", "45")
	t.Setenv("ANALYZER_TIMEOUT", "10s")
	t.Setenv("VALIDATOR_SOURCE", "anthropic")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("REDIS_DB", "3")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.AuditDeadline)
	assert.Equal(t, 10*time.Second, cfg.AnalyzerTimeout)
	assert.Equal(t, "anthropic", cfg.Validator)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"threshold out of range", map[string]string{"SIMILARITY_THRESHOLD": "1.5"}},
		{"tiny source limit", map[string]string{"MAX_SOURCE_BYTES": "10"}},
		{"s3 without credentials", map[string]string{"S3_ENDPOINT": "localhost:9000"}},
		{"negative rate", map[string]string{"ANALYZER_RATE_PER_MIN": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
