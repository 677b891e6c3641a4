// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Causeway tunnel daemon.
type Config struct {
	// Scope selects which domains are scanned on each discovery tick:
	// "local", "remote", or "both". Default: both.
	Scope string `yaml:"scope" json:"scope"`

	// TickInterval is the delay between tunnel ticks (one discover
	// plus one propagate pass), as a Go duration string. Default: 50ms.
	TickInterval string `yaml:"tick_interval" json:"tick_interval"`

	// Tunnel configures the tunnel core.
	Tunnel TunnelConfig `yaml:"tunnel" json:"tunnel"`

	// Bus configures the local membus domain.
	Bus BusConfig `yaml:"bus" json:"bus"`

	// Overlay configures the network overlay domain.
	Overlay OverlayConfig `yaml:"overlay" json:"overlay"`

	// Metrics configures the Prometheus endpoint. Optional.
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Introspect configures the introspection socket. Optional.
	Introspect IntrospectConfig `yaml:"introspect" json:"introspect"`
}

// TunnelConfig configures the tunnel core.
type TunnelConfig struct {
	// DiscoveryService names a membus publish/subscribe service that
	// carries service announcements from an external discovery
	// publisher. When set, local discovery reads that service instead
	// of scanning the broker's registry directly. Empty means direct
	// scan.
	DiscoveryService string `yaml:"discovery_service" json:"discovery_service"`
}

// BusConfig configures the local membus domain.
type BusConfig struct {
	// RuntimeDir is the directory holding the broker socket.
	// Default: /run/causeway.
	RuntimeDir string `yaml:"runtime_dir" json:"runtime_dir"`
}

// OverlayConfig configures the network overlay domain.
type OverlayConfig struct {
	// Listen is the TCP address for inbound peer links (e.g. ":7447").
	Listen string `yaml:"listen" json:"listen"`

	// Peers lists static peer addresses to dial at session open.
	Peers []string `yaml:"peers" json:"peers"`

	// Compression selects the payload compression for outbound
	// envelopes: "none", "lz4", or "zstd". Default: zstd.
	Compression string `yaml:"compression" json:"compression"`

	// SigningKey is the path to the host's Ed25519 seed file for peer
	// authentication. Empty disables the auth handshake (development
	// only).
	SigningKey string `yaml:"signing_key" json:"signing_key"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP address serving /metrics. Empty disables the
	// endpoint.
	Listen string `yaml:"listen" json:"listen"`
}

// IntrospectConfig configures the introspection socket.
type IntrospectConfig struct {
	// Socket is the Unix socket path for the introspection server.
	// Empty disables the server.
	Socket string `yaml:"socket" json:"socket"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values before the config file is merged in;
// the config file itself is still required.
func Default() *Config {
	return &Config{
		Scope:        "both",
		TickInterval: "50ms",
		Bus: BusConfig{
			RuntimeDir: "/run/causeway",
		},
		Overlay: OverlayConfig{
			Listen:      ":7447",
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the CAUSEWAY_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or automatic discovery — if CAUSEWAY_CONFIG is
// not set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("CAUSEWAY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CAUSEWAY_CONFIG environment variable not set; " +
			"set it to the path of your causeway.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The format is
// selected by extension: .yaml/.yml parse as YAML, .json/.jsonc parse
// as JSON with comments and trailing commas permitted.
//
// The config file is the single source of truth. Environment variables
// do not override config values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	switch extension := strings.ToLower(filepath.Ext(path)); extension {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json", ".jsonc":
		// jsonc.ToJSON strips comments and trailing commas; the result
		// is plain JSON, which the YAML parser accepts (YAML is a
		// superset). Going through one parser keeps the field tags in
		// a single dialect.
		if err := yaml.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q (want .yaml, .yml, .json, or .jsonc)", extension)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that YAML parsing cannot.
func (c *Config) Validate() error {
	switch c.Scope {
	case "local", "remote", "both":
	default:
		return fmt.Errorf("scope: %q is not one of local, remote, both", c.Scope)
	}

	if _, err := time.ParseDuration(c.TickInterval); err != nil {
		return fmt.Errorf("tick_interval: %w", err)
	}

	switch c.Overlay.Compression {
	case "none", "lz4", "zstd":
	default:
		return fmt.Errorf("overlay.compression: %q is not one of none, lz4, zstd", c.Overlay.Compression)
	}

	if c.Bus.RuntimeDir == "" {
		return fmt.Errorf("bus.runtime_dir is required")
	}
	return nil
}

// Tick returns the parsed tick interval. Call only after Validate.
func (c *Config) Tick() time.Duration {
	interval, err := time.ParseDuration(c.TickInterval)
	if err != nil {
		return 50 * time.Millisecond
	}
	return interval
}
