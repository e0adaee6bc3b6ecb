// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/dopaminewatch/realtime/internal/config"
	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/messaging"
	"github.com/dopaminewatch/realtime/internal/watchparty"
	ws "github.com/dopaminewatch/realtime/internal/websocket"
)

// ReadinessCheck reports an error while a dependency cannot serve traffic.
type ReadinessCheck func() error

// Handler serves the realtime HTTP surface.
type Handler struct {
	manager   *ws.Manager
	engine    *watchparty.Engine
	messages  *messaging.Service
	identity  *IdentityResolver
	security  config.SecurityConfig
	startTime time.Time

	checksMu sync.RWMutex
	checks   map[string]ReadinessCheck
}

// NewHandler creates a handler over the shared manager and feature services.
func NewHandler(manager *ws.Manager, engine *watchparty.Engine, messages *messaging.Service, security config.SecurityConfig) *Handler {
	return &Handler{
		manager:   manager,
		engine:    engine,
		messages:  messages,
		identity:  NewIdentityResolver(security.JWTSecret),
		security:  security,
		startTime: time.Now(),
		checks:    make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a named dependency probed by /health/ready.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checksMu.Lock()
	defer h.checksMu.Unlock()
	h.checks[name] = check
}

// WebSocket upgrades the request and serves the connection until it closes.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identity.Resolve(r)
	if err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket identity rejected")
		respondError(w, r, err)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}

	metadata := map[string]string{
		"remote_addr": r.RemoteAddr,
		"user_agent":  r.UserAgent(),
	}
	if err := h.manager.ServeConnection(r.Context(), conn, userID, metadata); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("user_id", userID).Msg("WebSocket connection refused")
	}
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows origins listed in security.cors_origins ("*"
// allows any). A missing Origin is only accepted with allow_empty_origin.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		if !h.security.AllowEmptyOrigin {
			logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		}
		return h.security.AllowEmptyOrigin
	}
	if lo.Contains(h.security.CORSOrigins, "*") || lo.Contains(h.security.CORSOrigins, origin) {
		return true
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// RealtimeStatus reports connection, room and party counts.
func (h *Handler) RealtimeStatus(w http.ResponseWriter, r *http.Request) {
	stats := h.manager.Stats()
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"connections":    stats.Connections,
		"unique_users":   stats.UniqueUsers,
		"online_users":   stats.OnlineUsers,
		"active_rooms":   stats.Rooms,
		"active_parties": h.engine.ActivePartyCount(),
	})
}

// HealthLive always succeeds while the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady runs every readiness check and fails with 503 if any fails.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.checksMu.RLock()
	defer h.checksMu.RUnlock()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, check := range h.checks {
		if err := check(); err != nil {
			results[name] = err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	rw := NewResponseWriter(w, r)
	if !ready {
		rw.ErrorWithDetails(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Service not ready", results)
		return
	}
	rw.Success(map[string]interface{}{"status": "ready", "checks": results})
}

// sanitizeLogValue escapes control characters so client input cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			out = append(out, '?')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
