// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the service configuration.
//
// Configuration is layered with Koanf v2 (highest priority wins):
//
//  1. Environment variables (see envTransformFunc for the accepted names)
//  2. Optional YAML file (config.yaml, or the path in CONFIG_PATH)
//  3. Built-in defaults (defaultConfig)
//
// Every realtime limit the engine relies on (connection cap, queue size,
// heartbeat timings, desync threshold, party size) is a configurable default.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Realtime   RealtimeConfig   `koanf:"realtime"`
	WatchParty WatchPartyConfig `koanf:"watch_party"`
	Messaging  MessagingConfig  `koanf:"messaging"`
	Storage    StorageConfig    `koanf:"storage"`
	Security   SecurityConfig   `koanf:"security"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RealtimeConfig holds connection manager limits and timings.
type RealtimeConfig struct {
	// MaxConnectionsPerUser caps concurrent connections for one user.
	// The oldest connection is evicted when a new one would exceed it.
	MaxConnectionsPerUser int `koanf:"max_connections_per_user"`

	// OfflineQueueSize bounds the per-user queue of messages held while offline.
	OfflineQueueSize int `koanf:"offline_queue_size"`

	// HeartbeatInterval is how often every connection is pinged.
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`

	// HeartbeatTimeout is the grace added to HeartbeatInterval before a
	// connection without a heartbeat is considered dead.
	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout"`

	// CleanupInterval is how often stale connections are reaped.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// OfflineGrace delays the offline presence downgrade to absorb reconnects.
	OfflineGrace time.Duration `koanf:"offline_grace"`

	SendBuffer     int           `koanf:"send_buffer"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	WriteWait      time.Duration `koanf:"write_wait"`

	// InboundRate and InboundBurst configure the per-connection token bucket
	// applied to client frames. Zero disables limiting.
	InboundRate  float64 `koanf:"inbound_rate"`
	InboundBurst int     `koanf:"inbound_burst"`
}

// WatchPartyConfig holds watch party engine limits.
type WatchPartyConfig struct {
	MaxMembers       int     `koanf:"max_members"`
	DesyncThreshold  float64 `koanf:"desync_threshold"`
	ChatHistory      int     `koanf:"chat_history"`
	SnapshotChat     int     `koanf:"snapshot_chat"`
	MaxChatLength    int     `koanf:"max_chat_length"`
	MaxEmojiLength   int     `koanf:"max_emoji_length"`
	InviteCodeLength int     `koanf:"invite_code_length"`
	LeaveOnOffline   bool    `koanf:"leave_on_offline"`
}

// MessagingConfig holds direct messaging limits.
type MessagingConfig struct {
	HistoryPerConversation int `koanf:"history_per_conversation"`
	MaxMessageLength       int `koanf:"max_message_length"`
}

// StorageConfig selects the party repository backend.
type StorageConfig struct {
	// Backend is "memory" (no persistence) or "badger" (write-through).
	Backend    string        `koanf:"backend"`
	Path       string        `koanf:"path"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
	GCRatio    float64       `koanf:"gc_ratio"`
}

// SecurityConfig holds identity, origin and HTTP rate limit settings.
type SecurityConfig struct {
	// JWTSecret enables HS256 token verification for identity when non-empty.
	// When empty the upstream X-User-ID header (or user_id query) is trusted.
	JWTSecret string `koanf:"jwt_secret"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	AllowEmptyOrigin  bool          `koanf:"allow_empty_origin"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, optional file and environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
