package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the agent configuration. Keep defaults and validation here so the
// rest of the code can assume a well-formed config.
type Config struct {
	// ServerURL is the Socket.IO server of the controller.
	ServerURL        string `yaml:"server_url"`
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
	SettleDelayMS    int    `yaml:"settle_delay_ms"`
	RestartDelayMS   int    `yaml:"restart_delay_ms"`

	// StatusAddr enables the local /healthz and /status endpoint when set.
	StatusAddr string `yaml:"status_addr,omitempty"`

	Capture CaptureConfig `yaml:"capture"`
	Logging LoggingConfig `yaml:"logging"`
}

type CaptureConfig struct {
	Display    int  `yaml:"display"` // -1 selects the primary display
	MaxWidth   int  `yaml:"max_width"`
	MaxHeight  int  `yaml:"max_height"`
	Quality    int  `yaml:"quality"`
	DrawCursor bool `yaml:"draw_cursor"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

func Default() Config {
	return Config{
		ServerURL:        "https://api-cs.consciousstage.com",
		ConnectTimeoutMS: 10000,
		SettleDelayMS:    500,
		RestartDelayMS:   5000,
		Capture: CaptureConfig{
			Display:    -1,
			MaxWidth:   1280,
			MaxHeight:  720,
			Quality:    70,
			DrawCursor: true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SCREENAGENT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("SCREENAGENT_SERVER_URL"); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv("SCREENAGENT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SCREENAGENT_STATUS_ADDR"); v != "" {
		c.StatusAddr = v
	}
	if err := envInt("SCREENAGENT_DISPLAY", &c.Capture.Display); err != nil {
		return err
	}
	if err := envInt("SCREENAGENT_QUALITY", &c.Capture.Quality); err != nil {
		return err
	}
	if v := os.Getenv("SCREENAGENT_DRAW_CURSOR"); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		c.Capture.DrawCursor = v == "1" || v == "true" || v == "yes"
	}
	return nil
}

// envInt reads an integer environment variable into dst when set.
func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %q is not an integer", key, v)
	}
	*dst = n
	return nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("server_url %q is not a valid url", c.ServerURL)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("server_url scheme %q not supported", u.Scheme)
	}
	if c.ConnectTimeoutMS <= 0 {
		return errors.New("connect_timeout_ms must be positive")
	}
	if c.SettleDelayMS <= 0 {
		return errors.New("settle_delay_ms must be positive")
	}
	if c.RestartDelayMS <= 0 {
		return errors.New("restart_delay_ms must be positive")
	}
	if c.Capture.MaxWidth <= 0 || c.Capture.MaxHeight <= 0 {
		return errors.New("capture.max_width and capture.max_height must be positive")
	}
	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture.quality %d out of range 1-100", c.Capture.Quality)
	}
	return nil
}

func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

func (c Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

func (c Config) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelayMS) * time.Millisecond
}
