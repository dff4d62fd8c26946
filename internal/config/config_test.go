package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 500*time.Millisecond, cfg.SettleDelay())
	assert.Equal(t, 5*time.Second, cfg.RestartDelay())
	assert.Equal(t, -1, cfg.Capture.Display)
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
server_url: http://localhost:3000
settle_delay_ms: 250
capture:
  max_width: 800
  quality: 55
logging:
  level: debug
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.ServerURL)
	assert.Equal(t, 250, cfg.SettleDelayMS)
	assert.Equal(t, 800, cfg.Capture.MaxWidth)
	assert.Equal(t, 720, cfg.Capture.MaxHeight)
	assert.Equal(t, 55, cfg.Capture.Quality)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 10000, cfg.ConnectTimeoutMS)
	require.NoError(t, cfg.Validate())
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "server: http://x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCREENAGENT_SERVER_URL", "wss://example.test")
	t.Setenv("SCREENAGENT_LOG_LEVEL", "warn")
	t.Setenv("SCREENAGENT_STATUS_ADDR", "127.0.0.1:8089")
	t.Setenv("SCREENAGENT_DISPLAY", "1")
	t.Setenv("SCREENAGENT_QUALITY", " 90 ")
	t.Setenv("SCREENAGENT_DRAW_CURSOR", "false")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "wss://example.test", cfg.ServerURL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:8089", cfg.StatusAddr)
	assert.Equal(t, 1, cfg.Capture.Display)
	assert.Equal(t, 90, cfg.Capture.Quality)
	assert.False(t, cfg.Capture.DrawCursor)
}

func TestApplyEnvBadInt(t *testing.T) {
	t.Setenv("SCREENAGENT_QUALITY", "high")
	cfg := Default()
	err := cfg.ApplyEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCREENAGENT_QUALITY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad url", func(c *Config) { c.ServerURL = "::nope" }, "server_url"},
		{"no host", func(c *Config) { c.ServerURL = "https://" }, "server_url"},
		{"bad scheme", func(c *Config) { c.ServerURL = "ftp://host" }, "scheme"},
		{"timeout", func(c *Config) { c.ConnectTimeoutMS = 0 }, "connect_timeout_ms"},
		{"settle", func(c *Config) { c.SettleDelayMS = -1 }, "settle_delay_ms"},
		{"zero settle", func(c *Config) { c.SettleDelayMS = 0 }, "settle_delay_ms"},
		{"restart", func(c *Config) { c.RestartDelayMS = 0 }, "restart_delay_ms"},
		{"width", func(c *Config) { c.Capture.MaxWidth = 0 }, "max_width"},
		{"quality low", func(c *Config) { c.Capture.Quality = 0 }, "quality"},
		{"quality high", func(c *Config) { c.Capture.Quality = 101 }, "quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
