// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Realtime.MaxConnectionsPerUser != 5 {
		t.Errorf("Realtime.MaxConnectionsPerUser = %d, want 5", cfg.Realtime.MaxConnectionsPerUser)
	}
	if cfg.Realtime.OfflineQueueSize != 100 {
		t.Errorf("Realtime.OfflineQueueSize = %d, want 100", cfg.Realtime.OfflineQueueSize)
	}
	if cfg.Realtime.HeartbeatInterval != 30*time.Second {
		t.Errorf("Realtime.HeartbeatInterval = %v, want 30s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Realtime.HeartbeatTimeout != 10*time.Second {
		t.Errorf("Realtime.HeartbeatTimeout = %v, want 10s", cfg.Realtime.HeartbeatTimeout)
	}
	if cfg.Realtime.CleanupInterval != 60*time.Second {
		t.Errorf("Realtime.CleanupInterval = %v, want 60s", cfg.Realtime.CleanupInterval)
	}
	if cfg.Realtime.OfflineGrace != 30*time.Second {
		t.Errorf("Realtime.OfflineGrace = %v, want 30s", cfg.Realtime.OfflineGrace)
	}
	if cfg.WatchParty.MaxMembers != 10 {
		t.Errorf("WatchParty.MaxMembers = %d, want 10", cfg.WatchParty.MaxMembers)
	}
	if cfg.WatchParty.DesyncThreshold != 3.0 {
		t.Errorf("WatchParty.DesyncThreshold = %v, want 3.0", cfg.WatchParty.DesyncThreshold)
	}
	if cfg.WatchParty.ChatHistory != 100 || cfg.WatchParty.SnapshotChat != 50 {
		t.Errorf("WatchParty chat = %d/%d, want 100/50", cfg.WatchParty.ChatHistory, cfg.WatchParty.SnapshotChat)
	}
	if cfg.WatchParty.MaxChatLength != 500 || cfg.WatchParty.MaxEmojiLength != 4 {
		t.Errorf("WatchParty lengths = %d/%d, want 500/4", cfg.WatchParty.MaxChatLength, cfg.WatchParty.MaxEmojiLength)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTP_PORT", "server.port"},
		{"WS_MAX_CONNECTIONS_PER_USER", "realtime.max_connections_per_user"},
		{"WS_OFFLINE_GRACE", "realtime.offline_grace"},
		{"PARTY_DESYNC_THRESHOLD", "watch_party.desync_threshold"},
		{"STORAGE_BACKEND", "storage.backend"},
		{"CORS_ORIGINS", "security.cors_origins"},
		{"LOG_LEVEL", "logging.level"},
		{"PATH", ""},
		{"HOME", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLoadWithKoanf_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("WS_MAX_CONNECTIONS_PER_USER", "3")
	t.Setenv("PARTY_DESYNC_THRESHOLD", "1.5")
	t.Setenv("WS_OFFLINE_GRACE", "5s")
	t.Setenv("CORS_ORIGINS", "https://dopamine.watch, https://app.dopamine.watch")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}

	if cfg.Realtime.MaxConnectionsPerUser != 3 {
		t.Errorf("MaxConnectionsPerUser = %d, want 3", cfg.Realtime.MaxConnectionsPerUser)
	}
	if cfg.WatchParty.DesyncThreshold != 1.5 {
		t.Errorf("DesyncThreshold = %v, want 1.5", cfg.WatchParty.DesyncThreshold)
	}
	if cfg.Realtime.OfflineGrace != 5*time.Second {
		t.Errorf("OfflineGrace = %v, want 5s", cfg.Realtime.OfflineGrace)
	}
	if len(cfg.Security.CORSOrigins) != 2 || cfg.Security.CORSOrigins[1] != "https://app.dopamine.watch" {
		t.Errorf("CORSOrigins = %v", cfg.Security.CORSOrigins)
	}
}

func TestLoadWithKoanf_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
watch_party:
  max_members: 4
storage:
  backend: badger
  path: /tmp/parties
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.WatchParty.MaxMembers != 4 {
		t.Errorf("MaxMembers = %d, want 4", cfg.WatchParty.MaxMembers)
	}
	if cfg.Storage.Backend != "badger" || cfg.Storage.Path != "/tmp/parties" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Realtime.OfflineQueueSize != 100 {
		t.Errorf("defaults should survive file layer, OfflineQueueSize = %d", cfg.Realtime.OfflineQueueSize)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero connection cap", func(c *Config) { c.Realtime.MaxConnectionsPerUser = 0 }, true},
		{"zero queue", func(c *Config) { c.Realtime.OfflineQueueSize = 0 }, true},
		{"negative grace", func(c *Config) { c.Realtime.OfflineGrace = -time.Second }, true},
		{"single member party", func(c *Config) { c.WatchParty.MaxMembers = 1 }, true},
		{"snapshot larger than history", func(c *Config) { c.WatchParty.SnapshotChat = 200 }, true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, true},
		{"badger without path", func(c *Config) { c.Storage.Backend = "badger"; c.Storage.Path = "" }, true},
		{"short jwt secret", func(c *Config) { c.Security.JWTSecret = "short" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"rate limit disabled ignores zero", func(c *Config) {
			c.Security.RateLimitDisabled = true
			c.Security.RateLimitReqs = 0
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
