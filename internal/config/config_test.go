package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsAndFile(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://api.example.com
  requests_per_second: 2.5
sync:
  interval: 1m
  max_attempts: 5
cors:
  allowed_origins: ["http://localhost:3000"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.URL)
	assert.Equal(t, 2.5, cfg.API.RequestsPerSecond)
	assert.Equal(t, time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)

	// untouched keys keep their defaults
	assert.Equal(t, 10*time.Second, cfg.Sync.Cooldown)
	assert.Equal(t, 5*time.Minute, cfg.Sync.LockTTL)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "@sync", cfg.Storage.KeyPrefix)
	assert.Equal(t, "8080", cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
api:
  url: https://file.example.com
sync:
  cooldown: 20s
`)
	t.Setenv("INSPECTION_SYNC_API__URL", "https://env.example.com")
	t.Setenv("INSPECTION_SYNC_SYNC__COOLDOWN", "3s")
	t.Setenv("INSPECTION_SYNC_STORAGE__DRIVER", "memory")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.API.URL)
	assert.Equal(t, 3*time.Second, cfg.Sync.Cooldown)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.API.URL = "https://api.example.com"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing api url", func(c *Config) { c.API.URL = "" }, "api.url is required"},
		{"relative api url", func(c *Config) { c.API.URL = "/api" }, "not an absolute URL"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "database.url"},
		{"postgres with url", func(c *Config) {
			c.Storage.Driver = DriverPostgres
			c.Database.URL = "postgres://localhost/db"
		}, ""},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }, "sync.interval"},
		{"zero max attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }, "sync.max_attempts"},
		{"negative cooldown", func(c *Config) { c.Sync.Cooldown = -time.Second }, "sync.cooldown"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "sync.max_attempts", envKey("INSPECTION_SYNC_SYNC__MAX_ATTEMPTS"))
	assert.Equal(t, "api.url", envKey("INSPECTION_SYNC_API__URL"))
}
