// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dopamine/config.yaml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			MaxConnectionsPerUser: 5,
			OfflineQueueSize:      100,
			HeartbeatInterval:     30 * time.Second,
			HeartbeatTimeout:      10 * time.Second,
			CleanupInterval:       60 * time.Second,
			OfflineGrace:          30 * time.Second,
			SendBuffer:            256,
			MaxMessageSize:        64 * 1024,
			WriteWait:             10 * time.Second,
			InboundRate:           20,
			InboundBurst:          40,
		},
		WatchParty: WatchPartyConfig{
			MaxMembers:       10,
			DesyncThreshold:  3.0,
			ChatHistory:      100,
			SnapshotChat:     50,
			MaxChatLength:    500,
			MaxEmojiLength:   4,
			InviteCodeLength: 6,
			LeaveOnOffline:   true,
		},
		Messaging: MessagingConfig{
			HistoryPerConversation: 200,
			MaxMessageLength:       2000,
		},
		Storage: StorageConfig{
			Backend:    "memory",
			Path:       "/data/parties",
			SyncWrites: false,
			GCInterval: 10 * time.Minute,
			GCRatio:    0.5,
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			CORSOrigins:       []string{"*"},
			AllowEmptyOrigin:  false,
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
// defaults, then the optional YAML file, then environment variables.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated env values.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps accepted environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",

	"ws_max_connections_per_user": "realtime.max_connections_per_user",
	"ws_offline_queue_size":       "realtime.offline_queue_size",
	"ws_heartbeat_interval":       "realtime.heartbeat_interval",
	"ws_heartbeat_timeout":        "realtime.heartbeat_timeout",
	"ws_cleanup_interval":         "realtime.cleanup_interval",
	"ws_offline_grace":            "realtime.offline_grace",
	"ws_send_buffer":              "realtime.send_buffer",
	"ws_max_message_size":         "realtime.max_message_size",
	"ws_write_wait":               "realtime.write_wait",
	"ws_inbound_rate":             "realtime.inbound_rate",
	"ws_inbound_burst":            "realtime.inbound_burst",

	"party_max_members":        "watch_party.max_members",
	"party_desync_threshold":   "watch_party.desync_threshold",
	"party_chat_history":       "watch_party.chat_history",
	"party_snapshot_chat":      "watch_party.snapshot_chat",
	"party_max_chat_length":    "watch_party.max_chat_length",
	"party_max_emoji_length":   "watch_party.max_emoji_length",
	"party_invite_code_length": "watch_party.invite_code_length",
	"party_leave_on_offline":   "watch_party.leave_on_offline",

	"dm_history":            "messaging.history_per_conversation",
	"dm_max_message_length": "messaging.max_message_length",

	"storage_backend":     "storage.backend",
	"storage_path":        "storage.path",
	"storage_sync_writes": "storage.sync_writes",
	"storage_gc_interval": "storage.gc_interval",
	"storage_gc_ratio":    "storage.gc_ratio",

	"jwt_secret":          "security.jwt_secret",
	"cors_origins":        "security.cors_origins",
	"ws_allow_no_origin":  "security.allow_empty_origin",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf paths.
// Unmapped variables return "" and are skipped.
//
//	WS_MAX_CONNECTIONS_PER_USER -> realtime.max_connections_per_user
//	PARTY_DESYNC_THRESHOLD      -> watch_party.desync_threshold
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
