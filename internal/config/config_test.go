package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rajeshbanoth/randomchat/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg := config.Load()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 45*time.Second, cfg.MaxWaitTime)
	assert.Equal(t, "randomchat:stats", cfg.StatsChannel)
	assert.True(t, cfg.AutoStartVideo)
	assert.NotEmpty(t, cfg.StunServers)
	assert.Equal(t, 70.0, cfg.Scoring.VideoThreshold)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":9000")
	t.Setenv("MAX_WAIT_TIME", "30s")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("AUTO_START_VIDEO", "false")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg := config.Load()

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.MaxWaitTime)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.False(t, cfg.AutoStartVideo)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}

func TestScoringOverrides(t *testing.T) {
	t.Setenv("SCORE_INTEREST_WEIGHT", "0.5")
	t.Setenv("SCORE_TEXT_THRESHOLD", "80")

	cfg := config.Load()

	assert.Equal(t, 0.5, cfg.Scoring.InterestWeight)
	assert.Equal(t, 80.0, cfg.Scoring.TextThreshold)
	// Untouched fields keep their defaults.
	assert.Equal(t, 0.25, cfg.Scoring.DemographicWeight)
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("MAX_WAIT_TIME", "soon")
	t.Setenv("REDIS_DB", "three")
	t.Setenv("AUTO_START_VIDEO", "maybe")

	cfg := config.Load()

	assert.Equal(t, 45*time.Second, cfg.MaxWaitTime)
	assert.Equal(t, 0, cfg.RedisDB)
	assert.True(t, cfg.AutoStartVideo)
}
