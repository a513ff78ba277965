package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "simulated", cfg.Executor.Mode)
	assert.Equal(t, 300*time.Second, cfg.Healing.ResponseTimeout)
	assert.Equal(t, time.Hour, cfg.Healing.RetrainingInterval)
	assert.InDelta(t, 0.1, cfg.Healing.RL.LearningRate, 1e-12)
	assert.InDelta(t, 0.9, cfg.Healing.RL.DiscountFactor, 1e-12)
	assert.InDelta(t, 0.2, cfg.Healing.RL.Epsilon, 1e-12)
	assert.Equal(t, 10000, cfg.Learning.MaxExperiences)
	assert.Equal(t, 90*24*time.Hour, cfg.Learning.ExperienceTTL)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadAppliesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
healing:
  response_timeout: 60s
  rl:
    epsilon: 0.5
api:
  enabled: true
  listen_addr: ":9999"
store:
  driver: postgres
  dsn: "host=db dbname=naoru"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 60*time.Second, cfg.Healing.ResponseTimeout)
	assert.InDelta(t, 0.5, cfg.Healing.RL.Epsilon, 1e-12)
	assert.Equal(t, ":9999", cfg.API.ListenAddr)
	assert.Equal(t, "postgres", cfg.Store.Driver)

	// Untouched sections still get defaults.
	assert.Equal(t, time.Hour, cfg.Healing.RetrainingInterval)
	assert.InDelta(t, 0.1, cfg.Healing.RL.LearningRate, 1e-12)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad executor mode", func(c *Config) { c.Executor.Mode = "kubernetes" }},
		{"learning rate above one", func(c *Config) { c.Healing.RL.LearningRate = 1.5 }},
		{"discount above one", func(c *Config) { c.Healing.RL.DiscountFactor = 2 }},
		{"epsilon above one", func(c *Config) { c.Healing.RL.Epsilon = 1.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := Default()
	cfg.LogLevel = "warn"
	cfg.API.Enabled = true
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", loaded.LogLevel)
	assert.True(t, loaded.API.Enabled)
}
