package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig(logger.NewNoopLogger())
	require.NoError(t, err)

	assert.Equal(t, constants.DefaultKeyValidity, cfg.Keys.ValidityWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.Keys.RotationAdvance)
	assert.Equal(t, 24*time.Hour, cfg.Keys.CacheTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.Keys.PurgeRetention)
	assert.Equal(t, 2*time.Hour, cfg.Token.TTL)
	assert.Equal(t, "nexus-app", cfg.Token.Issuer)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Store)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeouts.Cache)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  driver: sqlite
  sqlite_path: /tmp/keys.db
keys:
  validity_window: 720h
  rotation_advance: 48h
token:
  ttl: 30m
redis:
  addresses: ["127.0.0.1:6379"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("KEYTRUST_TOKEN_ISSUER", "issuer-from-env")
	t.Setenv("KEYTRUST_SCHEDULER_ENABLED", "false")

	cfg, err := NewLoader(path, logger.NewNoopLogger()).Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 720*time.Hour, cfg.Keys.ValidityWindow)
	assert.Equal(t, 48*time.Hour, cfg.Keys.RotationAdvance)
	assert.Equal(t, 30*time.Minute, cfg.Token.TTL)
	assert.Equal(t, "issuer-from-env", cfg.Token.Issuer)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Redis.Enabled())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := NewLoader(filepath.Join(t.TempDir(), "none.yaml"), logger.NewNoopLogger()).decode()
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"advance exceeds validity", func(c *Config) { c.Keys.RotationAdvance = c.Keys.ValidityWindow }},
		{"zero token ttl", func(c *Config) { c.Token.TTL = 0 }},
		{"token outlives key", func(c *Config) { c.Token.TTL = c.Keys.ValidityWindow }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"unsupported algorithm", func(c *Config) { c.Keys.Algorithm = "HS256" }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"negative leeway", func(c *Config) { c.Token.Leeway = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
