// Copyright 2026 The Causeway Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	path := writeConfig(t, "causeway.yaml", `
scope: local
tick_interval: 250ms
tunnel:
  discovery_service: causeway/discovery
bus:
  runtime_dir: /run/causeway-test
overlay:
  listen: ":7450"
  peers: ["10.0.0.2:7447", "10.0.0.3:7447"]
  compression: lz4
metrics:
  listen: "127.0.0.1:9109"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Scope != "local" {
		t.Errorf("Scope = %q, want local", cfg.Scope)
	}
	if got := cfg.Tick(); got != 250*time.Millisecond {
		t.Errorf("Tick() = %v, want 250ms", got)
	}
	if cfg.Tunnel.DiscoveryService != "causeway/discovery" {
		t.Errorf("DiscoveryService = %q", cfg.Tunnel.DiscoveryService)
	}
	if len(cfg.Overlay.Peers) != 2 {
		t.Errorf("Peers = %v, want 2 entries", cfg.Overlay.Peers)
	}
	if cfg.Overlay.Compression != "lz4" {
		t.Errorf("Compression = %q, want lz4", cfg.Overlay.Compression)
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeConfig(t, "causeway.jsonc", `{
  // development box
  "scope": "both",
  "bus": {"runtime_dir": "/tmp/causeway"},
  "overlay": {"listen": ":0", "compression": "none"},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Bus.RuntimeDir != "/tmp/causeway" {
		t.Errorf("RuntimeDir = %q", cfg.Bus.RuntimeDir)
	}
	if cfg.Overlay.Compression != "none" {
		t.Errorf("Compression = %q, want none", cfg.Overlay.Compression)
	}
}

func TestLoadFileDefaults(t *testing.T) {
	path := writeConfig(t, "minimal.yaml", "overlay:\n  listen: \":0\"\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Scope != "both" {
		t.Errorf("default Scope = %q, want both", cfg.Scope)
	}
	if cfg.Overlay.Compression != "zstd" {
		t.Errorf("default Compression = %q, want zstd", cfg.Overlay.Compression)
	}
	if cfg.Bus.RuntimeDir != "/run/causeway" {
		t.Errorf("default RuntimeDir = %q", cfg.Bus.RuntimeDir)
	}
}

func TestValidateRejectsBadScope(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "scope: everywhere\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted invalid scope")
	}
}

func TestValidateRejectsBadInterval(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "tick_interval: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted invalid tick_interval")
	}
}

func TestValidateRejectsBadCompression(t *testing.T) {
	path := writeConfig(t, "bad.yaml", "overlay:\n  compression: brotli\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted invalid compression")
	}
}

func TestLoadRequiresEnv(t *testing.T) {
	t.Setenv("CAUSEWAY_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load succeeded without CAUSEWAY_CONFIG")
	}
}

func TestUnsupportedExtension(t *testing.T) {
	path := writeConfig(t, "causeway.toml", "scope = \"both\"\n")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("LoadFile accepted .toml")
	}
}
