// Copyright 2026 The VolumeFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the VolumeFS
// engine daemon.
//
// Configuration is loaded from a single YAML file passed via --config.
// There are no fallbacks or automatic discovery: absent file means
// built-in defaults, and flags override the file. This keeps effective
// configuration deterministic and auditable.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine daemon's configuration.
type Config struct {
	// Listen configures where the daemon accepts bridge connections.
	Listen ListenConfig `yaml:"listen"`

	// Engine configures session behavior.
	Engine EngineConfig `yaml:"engine"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// ListenConfig configures the daemon's listening socket.
type ListenConfig struct {
	// SocketPath is the Unix socket the daemon serves the bridge
	// protocol on. Default: /run/volumefs/engine.sock.
	SocketPath string `yaml:"socket_path"`
}

// EngineConfig configures volume sessions.
type EngineConfig struct {
	// Formats restricts the archive drivers the engine loads, by name
	// ("zip", "tar.zst", "tar.lz4"). Empty enables all reference
	// drivers. Names are validated by the daemon against the driver
	// registry, not here.
	Formats []string `yaml:"formats"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error". Default: info.
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{SocketPath: "/run/volumefs/engine.sock"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads and validates the configuration file at path. Fields the
// file omits keep their defaults.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	loaded := Default()
	if err := yaml.Unmarshal(contents, loaded); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return loaded, nil
}

// Validate checks field values that must be caught before startup.
func (c *Config) Validate() error {
	if c.Listen.SocketPath == "" {
		return fmt.Errorf("listen.socket_path must not be empty")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", c.Log.Level)
	}
}
