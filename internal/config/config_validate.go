// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"strings"
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateRealtime(); err != nil {
		return err
	}
	if err := c.validateWatchParty(); err != nil {
		return err
	}
	if err := c.validateMessaging(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	return nil
}

func (c *Config) validateRealtime() error {
	r := c.Realtime
	if r.MaxConnectionsPerUser < 1 {
		return fmt.Errorf("WS_MAX_CONNECTIONS_PER_USER must be at least 1, got %d", r.MaxConnectionsPerUser)
	}
	if r.OfflineQueueSize < 1 {
		return fmt.Errorf("WS_OFFLINE_QUEUE_SIZE must be at least 1, got %d", r.OfflineQueueSize)
	}
	if r.HeartbeatInterval <= 0 || r.HeartbeatTimeout <= 0 || r.CleanupInterval <= 0 {
		return fmt.Errorf("heartbeat interval, heartbeat timeout and cleanup interval must be positive")
	}
	if r.OfflineGrace < 0 {
		return fmt.Errorf("WS_OFFLINE_GRACE cannot be negative")
	}
	if r.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1, got %d", r.SendBuffer)
	}
	if r.MaxMessageSize < 512 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least 512 bytes, got %d", r.MaxMessageSize)
	}
	if r.InboundRate < 0 || r.InboundBurst < 0 {
		return fmt.Errorf("WS_INBOUND_RATE and WS_INBOUND_BURST cannot be negative")
	}
	return nil
}

func (c *Config) validateWatchParty() error {
	w := c.WatchParty
	if w.MaxMembers < 2 {
		return fmt.Errorf("PARTY_MAX_MEMBERS must be at least 2, got %d", w.MaxMembers)
	}
	if w.DesyncThreshold <= 0 {
		return fmt.Errorf("PARTY_DESYNC_THRESHOLD must be positive, got %v", w.DesyncThreshold)
	}
	if w.ChatHistory < 1 || w.SnapshotChat < 0 || w.SnapshotChat > w.ChatHistory {
		return fmt.Errorf("party chat history must be positive and snapshot chat must not exceed it")
	}
	if w.MaxChatLength < 1 || w.MaxEmojiLength < 1 {
		return fmt.Errorf("party chat and emoji lengths must be positive")
	}
	if w.InviteCodeLength < 4 || w.InviteCodeLength > 16 {
		return fmt.Errorf("PARTY_INVITE_CODE_LENGTH must be between 4 and 16, got %d", w.InviteCodeLength)
	}
	return nil
}

func (c *Config) validateMessaging() error {
	if c.Messaging.HistoryPerConversation < 1 || c.Messaging.MaxMessageLength < 1 {
		return fmt.Errorf("DM_HISTORY and DM_MAX_MESSAGE_LENGTH must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "memory":
		return nil
	case "badger":
		if c.Storage.Path == "" {
			return fmt.Errorf("STORAGE_PATH is required when STORAGE_BACKEND=badger")
		}
		if c.Storage.GCRatio <= 0 || c.Storage.GCRatio >= 1 {
			return fmt.Errorf("STORAGE_GC_RATIO must be in (0, 1), got %v", c.Storage.GCRatio)
		}
		return nil
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'memory' or 'badger', got %q", c.Storage.Backend)
	}
}

func (c *Config) validateSecurity() error {
	if secret := c.Security.JWTSecret; secret != "" && len(secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters when set")
	}
	if !c.Security.RateLimitDisabled && (c.Security.RateLimitReqs < 1 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}
