package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "")
	t.Setenv("ATTEMPT_EXTEND_WHILE_PAUSED", "")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("ANSWER_RATE_LIMIT_PER_MINUTE", "")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 200, cfg.SweepBatchSize)
	assert.True(t, cfg.ExtendWhilePaused)
	assert.Nil(t, cfg.AllowedOrigins)
	assert.Equal(t, 120, cfg.AnswerRateLimit)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "5")
	t.Setenv("SWEEP_CONCURRENCY", "not-a-number")
	t.Setenv("ATTEMPT_EXTEND_WHILE_PAUSED", "false")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.SweepInterval)
	assert.Equal(t, 8, cfg.SweepConcurrency)
	assert.False(t, cfg.ExtendWhilePaused)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
