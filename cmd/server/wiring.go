// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/dopaminewatch/realtime/internal/api"
	"github.com/dopaminewatch/realtime/internal/config"
	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/messaging"
	"github.com/dopaminewatch/realtime/internal/store"
	"github.com/dopaminewatch/realtime/internal/watchparty"
	ws "github.com/dopaminewatch/realtime/internal/websocket"
)

// errStoreUnavailable is reported by readiness while the store breaker is open.
var errStoreUnavailable = errors.New("party store circuit open")

// partyStore is the repository the engine writes through to, plus the
// handles main needs for GC, readiness and shutdown. For the memory backend
// only repo is set.
type partyStore struct {
	repo    watchparty.Repository
	badger  *store.BadgerPartyRepository
	breaker *store.BreakerRepository
}

// openPartyStore opens the configured storage backend.
// chatLimit bounds the stored chat log per party.
func openPartyStore(cfg config.StorageConfig, chatLimit int) (*partyStore, error) {
	switch cfg.Backend {
	case "badger":
		db, err := store.OpenBadger(store.Options{
			Path:       cfg.Path,
			SyncWrites: cfg.SyncWrites,
			GCRatio:    cfg.GCRatio,
			ChatLimit:  chatLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("open party store: %w", err)
		}
		breaker := store.NewBreakerRepository(db, store.DefaultBreakerConfig())
		logging.Info().Str("path", cfg.Path).Msg("Badger party store opened")
		return &partyStore{repo: breaker, badger: db, breaker: breaker}, nil
	default:
		logging.Info().Msg("Party persistence disabled (memory backend)")
		return &partyStore{repo: watchparty.NopRepository{}}, nil
	}
}

// ready reports whether the store accepts writes.
func (s *partyStore) ready() error {
	if s.breaker != nil && s.breaker.State() == gobreaker.StateOpen {
		return errStoreUnavailable
	}
	return nil
}

func (s *partyStore) Close() error {
	if s.badger == nil {
		return nil
	}
	return s.badger.Close()
}

func managerConfig(cfg config.RealtimeConfig) ws.ManagerConfig {
	return ws.ManagerConfig{
		MaxConnectionsPerUser: cfg.MaxConnectionsPerUser,
		OfflineQueueSize:      cfg.OfflineQueueSize,
		HeartbeatInterval:     cfg.HeartbeatInterval,
		HeartbeatTimeout:      cfg.HeartbeatTimeout,
		OfflineGrace:          cfg.OfflineGrace,
		SendBuffer:            cfg.SendBuffer,
		MaxMessageSize:        cfg.MaxMessageSize,
		WriteWait:             cfg.WriteWait,
		InboundRate:           cfg.InboundRate,
		InboundBurst:          cfg.InboundBurst,
	}
}

func engineConfig(cfg config.WatchPartyConfig) watchparty.Config {
	return watchparty.Config{
		MaxMembers:       cfg.MaxMembers,
		DesyncThreshold:  cfg.DesyncThreshold,
		ChatHistory:      cfg.ChatHistory,
		SnapshotChat:     cfg.SnapshotChat,
		MaxChatLength:    cfg.MaxChatLength,
		MaxEmojiLength:   cfg.MaxEmojiLength,
		InviteCodeLength: cfg.InviteCodeLength,
		LeaveOnOffline:   cfg.LeaveOnOffline,
	}
}

func messagingConfig(cfg config.MessagingConfig) messaging.Config {
	return messaging.Config{
		HistoryPerConversation: cfg.HistoryPerConversation,
		MaxMessageLength:       cfg.MaxMessageLength,
	}
}

func middlewareConfig(cfg config.SecurityConfig) *api.ChiMiddlewareConfig {
	mw := api.DefaultChiMiddlewareConfig()
	mw.CORSAllowedOrigins = cfg.CORSOrigins
	mw.RateLimitRequests = cfg.RateLimitReqs
	mw.RateLimitWindow = cfg.RateLimitWindow
	mw.RateLimitDisabled = cfg.RateLimitDisabled
	return mw
}

// application is the wired object graph, before supervision.
type application struct {
	store    *partyStore
	manager  *ws.Manager
	engine   *watchparty.Engine
	messages *messaging.Service
	handler  *api.Handler
	router   http.Handler
}

// buildApplication wires every component from cfg.
func buildApplication(cfg *config.Config) (*application, error) {
	st, err := openPartyStore(cfg.Storage, cfg.WatchParty.ChatHistory)
	if err != nil {
		return nil, err
	}

	manager := ws.NewManager(managerConfig(cfg.Realtime))

	engine := watchparty.NewEngine(manager, st.repo, engineConfig(cfg.WatchParty))
	if err := engine.RegisterHandlers(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register watch party handlers: %w", err)
	}

	messages := messaging.NewService(manager, messagingConfig(cfg.Messaging))
	if err := messages.RegisterHandlers(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("register messaging handlers: %w", err)
	}

	handler := api.NewHandler(manager, engine, messages, cfg.Security)
	handler.AddReadinessCheck("store", st.ready)

	return &application{
		store:    st,
		manager:  manager,
		engine:   engine,
		messages: messages,
		handler:  handler,
		router:   api.NewRouter(handler, middlewareConfig(cfg.Security)).Setup(),
	}, nil
}
