package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LuisPassosRamos/IoT-Ecosystem/classifier"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 10000, cfg.Pipeline.HistoryCapacity)
	assert.Contains(t, cfg.Policies, "temperature")
	assert.Equal(t, 15.0, cfg.Policies["temperature"].Min)
	assert.Equal(t, 35.0, cfg.Policies["temperature"].Max)
	assert.Equal(t, 5.0, cfg.Policies["temperature"].JumpThreshold)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().NATS.Stream, cfg.NATS.Stream)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
log_level: debug
nats:
  url: nats://broker:4222
pipeline:
  history_capacity: 500
policies:
  temperature:
    min: 10
    max: 40
    jump_threshold: 8
  pressure:
    min: 900
    max: 1100
    jump_threshold: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, 500, cfg.Pipeline.HistoryCapacity)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, 1024, cfg.Pipeline.QueueSize)

	assert.Equal(t, 10.0, cfg.Policies["temperature"].Min)
	assert.Equal(t, 8.0, cfg.Policies["temperature"].JumpThreshold)
	assert.Contains(t, cfg.Policies, "pressure")
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
nats:
  url: nats://from-file:4222
`)

	t.Setenv("IOTSTREAM_NATS_URL", "nats://from-env:4222")
	t.Setenv("IOTSTREAM_HISTORY_CAPACITY", "250")
	t.Setenv("IOTSTREAM_JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://from-env:4222", cfg.NATS.URL)
	assert.Equal(t, 250, cfg.Pipeline.HistoryCapacity)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := writeConfigFile(t, "nats: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty nats url", func(c *Config) { c.NATS.URL = "" }},
		{"empty stream", func(c *Config) { c.NATS.Stream = "" }},
		{"no subjects", func(c *Config) { c.NATS.Subjects = nil }},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }},
		{"zero history capacity", func(c *Config) { c.Pipeline.HistoryCapacity = 0 }},
		{"zero queue size", func(c *Config) { c.Pipeline.QueueSize = 0 }},
		{"zero send buffer", func(c *Config) { c.Pipeline.SendBuffer = 0 }},
		{"inverted policy bounds", func(c *Config) {
			c.Policies["temperature"] = classifier.Policy{Min: 40, Max: 10, JumpThreshold: 5}
		}},
		{"negative jump threshold", func(c *Config) {
			p := c.Policies["temperature"]
			p.JumpThreshold = -1
			c.Policies["temperature"] = p
		}},
		{"missing credentials", func(c *Config) { c.Auth.Username = "" }},
		{"zero token ttl", func(c *Config) { c.Auth.TokenTTL = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDefaultTimeouts(t *testing.T) {
	cfg := Default()
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5*time.Second, cfg.Weather.Timeout)
	assert.Equal(t, 2*time.Second, cfg.NATS.ReconnectWait)
}
