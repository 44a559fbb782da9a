// Package config holds configuration for the loopd demo server. Config
// structure never shrinks — fields are only added, never renamed or
// removed.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a loopd server instance.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Persist PersistConfig `yaml:"persist"`
	PubSub  PubSubConfig  `yaml:"pubsub"`
	Debounce DebounceConfig `yaml:"debounce"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Ring    RingConfig    `yaml:"ring"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds identity and network settings for this server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PersistConfig controls the optional bbolt-backed durable spool.
type PersistConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// PubSubConfig controls the topic registry and its optional WebSocket bridge.
type PubSubConfig struct {
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig controls the pubsub WebSocket bridge.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DebounceConfig sets the default debounce window used by demo handlers.
type DebounceConfig struct {
	DefaultDelayMs int `yaml:"default_delay_ms"`
}

// ThrottleConfig sets the default throttle interval used by demo handlers.
type ThrottleConfig struct {
	DefaultIntervalMs int `yaml:"default_interval_ms"`
}

// RingConfig sizes the demo audio-style ring buffer.
type RingConfig struct {
	CapacityBytes int `yaml:"capacity_bytes"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns a Config populated with safe, sensible defaults. It is the
// canonical source of truth for default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Persist: PersistConfig{
			Enabled: false,
			Path:    "./data/spool.db",
		},
		PubSub: PubSubConfig{
			WebSocket: WebSocketConfig{
				Enabled: false,
				Port:    8081,
			},
		},
		Debounce: DebounceConfig{
			DefaultDelayMs: 300,
		},
		Throttle: ThrottleConfig{
			DefaultIntervalMs: 1000,
		},
		Ring: RingConfig{
			CapacityBytes: 1 << 16,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Load reads a YAML config file at path and overlays it on top of Default().
// If the file does not exist, the default config is returned without error,
// making it easy to run loopd with no config file at all.
//
// After loading the file, environment variables are applied as overrides:
//
//	LOOPD_DATA_DIR — sets persist.path
//	LOOPD_PORT     — sets server.port
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LOOPD_DATA_DIR"); v != "" {
		cfg.Persist.Path = v
	}
	if v := os.Getenv("LOOPD_PORT"); v != "" {
		var p int
		if _, err := fmt.Sscanf(v, "%d", &p); err == nil && p > 0 {
			cfg.Server.Port = p
		}
	}
}

// Validate checks that the config values are consistent and within
// acceptable ranges. It returns the first error found.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Persist.Enabled && c.Persist.Path == "" {
		return errors.New("persist.path must not be empty when persist.enabled is true")
	}
	if c.PubSub.WebSocket.Enabled && (c.PubSub.WebSocket.Port < 1 || c.PubSub.WebSocket.Port > 65535) {
		return errors.New("pubsub.websocket.port must be between 1 and 65535")
	}
	if c.Debounce.DefaultDelayMs < 0 {
		return errors.New("debounce.default_delay_ms must be >= 0")
	}
	if c.Throttle.DefaultIntervalMs < 0 {
		return errors.New("throttle.default_interval_ms must be >= 0")
	}
	if c.Ring.CapacityBytes < 1 {
		return errors.New("ring.capacity_bytes must be at least 1")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return errors.New("metrics.port must be between 1 and 65535")
	}
	return nil
}
