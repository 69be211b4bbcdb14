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
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	assert.Equal(t, 10, cfg.Workers)
	assert.Equal(t, 32, cfg.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 100, cfg.MaxRequestsPerConn)
	assert.Equal(t, 30, cfg.RateLimit.BurstLimit)
	assert.Equal(t, int64(10<<20), cfg.Limits.MaxBodySize)
	assert.Equal(t, 86400, cfg.CORS.MaxAge)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 0.0.0.0
port: 9000
workers: 4
idle_timeout: 5s
rate_limit:
  burst_limit: 7
limits:
  max_body_size: 1024
cors:
  allowed_origins: ["https://a.example"]
log:
  format: json
`), 0o600))

	t.Setenv("HTTP1_PORT", "9100")
	t.Setenv("HTTP1_QUEUE_SIZE", "64")
	t.Setenv("HTTP1_RATE_LIMIT_BLOCK_DURATION", "2m")
	t.Setenv("HTTP1_MAX_REQUESTS_PER_CONN", "3")
	t.Setenv("HTTP1_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 3, cfg.MaxRequestsPerConn)
	assert.Equal(t, 7, cfg.RateLimit.BurstLimit)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.BlockDuration)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, int64(1024), cfg.Limits.MaxBodySize)
	assert.Equal(t, []string{"https://a.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("no_such_key: 1\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)

	t.Setenv("HTTP1_WORKERS", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"workers":   func(c *Config) { c.Workers = 0 },
		"queue":     func(c *Config) { c.QueueSize = 0 },
		"port":      func(c *Config) { c.Port = 70000 },
		"host":      func(c *Config) { c.Host = "" },
		"root":      func(c *Config) { c.DocumentRoot = "" },
		"idle":      func(c *Config) { c.IdleTimeout = 0 },
		"max reqs":  func(c *Config) { c.MaxRequestsPerConn = -1 },
		"chunk":     func(c *Config) { c.WriteChunkSize = 0 },
		"burst":     func(c *Config) { c.RateLimit.BurstLimit = 0 },
		"body":      func(c *Config) { c.Limits.MaxBodySize = 0 },
		"logformat": func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
