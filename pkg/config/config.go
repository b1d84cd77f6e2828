// Package config loads and validates daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the daemon configuration. Zero values are filled in from
// Default before a config file is applied, so a partial file is valid.
type Config struct {
	// Listen is the address the HTTP/WebSocket server binds to.
	Listen string `yaml:"listen"`

	// TokenSecret is the shared signing secret session credentials are
	// verified against. Required; the daemon refuses to start without it.
	TokenSecret string `yaml:"token_secret"`

	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty means any origin is accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// SendBuffer is the per-connection outbound frame buffer. A full
	// buffer drops frames for that recipient rather than stalling the
	// broadcast.
	SendBuffer int `yaml:"send_buffer"`

	// PingInterval and PongTimeout tune the connection heartbeat. The
	// interval must be shorter than the timeout or idle connections
	// would be reclaimed between pings.
	PingInterval time.Duration `yaml:"ping_interval"`
	PongTimeout  time.Duration `yaml:"pong_timeout"`

	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       ":8090",
		SendBuffer:   256,
		PingInterval: 54 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a yaml config file on top of the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	if c.TokenSecret == "" {
		return fmt.Errorf("token_secret is required")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive, got %d", c.SendBuffer)
	}
	if c.PingInterval >= c.PongTimeout {
		return fmt.Errorf("ping_interval (%s) must be shorter than pong_timeout (%s)",
			c.PingInterval, c.PongTimeout)
	}
	return nil
}
