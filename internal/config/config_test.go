package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Sidecar.Host)
	assert.Equal(t, 7789, cfg.Sidecar.Port)
	assert.Equal(t, "http://127.0.0.1:7789", cfg.Sidecar.BaseURL())
	assert.Equal(t, 3, cfg.Sidecar.MaxRestartAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Sidecar.RestartDelay)
	assert.Equal(t, 8*time.Second, cfg.Sidecar.HealthTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Sidecar.HealthInterval)
	assert.Equal(t, 700*time.Millisecond, cfg.Sidecar.HealthProbeTimeout)
	assert.Equal(t, "http://127.0.0.1:7789", cfg.Planner.BaseURL)
	assert.Equal(t, "always_ask", cfg.Safety.DefaultApprovalMode)

	require.NoError(t, cfg.Validate())
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("sidecar.port", 9001)
	v.Set("planner.base_url", "http://127.0.0.1:9001")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Sidecar.Port)
	assert.Equal(t, "http://127.0.0.1:9001", cfg.Planner.BaseURL)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Sidecar.Port = 0 }},
		{"negative restarts", func(c *Config) { c.Sidecar.MaxRestartAttempts = -1 }},
		{"zero health interval", func(c *Config) { c.Sidecar.HealthInterval = 0 }},
		{"timeout below interval", func(c *Config) { c.Sidecar.HealthTimeout = 10 * time.Millisecond }},
		{"empty planner url", func(c *Config) { c.Planner.BaseURL = "" }},
		{"zero request timeout", func(c *Config) { c.Planner.RequestTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
