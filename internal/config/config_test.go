package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 19.0, cfg.Alerts.Temperature.Lower)
	assert.Equal(t, 25.0, cfg.Alerts.Temperature.Upper)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 15*time.Minute, cfg.Background.Interval)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
alerts:
  temperature:
    lower: 10
    upper: 30
  cooldown: 2m
store:
  backend: redis
notify:
  sinks: [log, kafka]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thermoguard.yaml"), []byte(yaml), 0o600))

	t.Setenv("THERMOGUARD_ALERTS_SMOKE_THRESHOLD", "55.5")
	t.Setenv("THERMOGUARD_POLL_INTERVAL", "10s")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 10.0, cfg.Alerts.Temperature.Lower)
	assert.Equal(t, 30.0, cfg.Alerts.Temperature.Upper)
	assert.Equal(t, 2*time.Minute, cfg.Alerts.Cooldown)
	assert.Equal(t, 55.5, cfg.Alerts.Smoke.Threshold)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, []string{"log", "kafka"}, cfg.Notify.Sinks)
	assert.True(t, cfg.HasSink("kafka"))
	assert.False(t, cfg.UsesMQTT())
}

func TestConnectionHelpers(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.ReadsSource())
	assert.True(t, cfg.UsesPostgres())
	assert.False(t, cfg.UsesMQTT())

	cfg.Poll.Enabled = false
	cfg.Background.Enabled = false
	assert.False(t, cfg.ReadsSource())
	assert.False(t, cfg.UsesPostgres())

	cfg.Store.Backend = "postgres"
	assert.True(t, cfg.UsesPostgres())

	cfg.Notify.Sinks = []string{"log", "mqtt"}
	assert.True(t, cfg.UsesMQTT())

	cfg.Notify.Sinks = []string{"log"}
	cfg.Realtime.Transport = "mqtt"
	assert.True(t, cfg.UsesMQTT())
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default().Alerts, cfg.Alerts)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"inverted thresholds", func(c *Config) { c.Alerts.Temperature.Lower = 30 }},
		{"equal thresholds", func(c *Config) { c.Alerts.Temperature.Lower = 25 }},
		{"zero cooldown", func(c *Config) { c.Alerts.Cooldown = 0 }},
		{"zero poll interval", func(c *Config) { c.Poll.Interval = 0 }},
		{"unknown transport", func(c *Config) { c.Realtime.Transport = "carrier-pigeon" }},
		{"unknown store", func(c *Config) { c.Store.Backend = "sqlite" }},
		{"no sinks", func(c *Config) { c.Notify.Sinks = nil }},
		{"slack without webhook", func(c *Config) { c.Notify.Sinks = []string{"slack"} }},
		{"unknown sink", func(c *Config) { c.Notify.Sinks = []string{"sms"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Alerts.Temperature.Lower = 30
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidThresholds)
}
