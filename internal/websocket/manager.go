// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/metrics"
)

// ErrManagerClosed is returned by ServeConnection after Close.
var ErrManagerClosed = errors.New("websocket manager closed")

// ManagerConfig holds connection manager limits and timings.
type ManagerConfig struct {
	MaxConnectionsPerUser int
	OfflineQueueSize      int
	HeartbeatInterval     time.Duration
	HeartbeatTimeout      time.Duration
	OfflineGrace          time.Duration
	SendBuffer            int
	MaxMessageSize        int64
	WriteWait             time.Duration
	InboundRate           float64
	InboundBurst          int

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxConnectionsPerUser: 5,
		OfflineQueueSize:      100,
		HeartbeatInterval:     30 * time.Second,
		HeartbeatTimeout:      10 * time.Second,
		OfflineGrace:          30 * time.Second,
		SendBuffer:            256,
		MaxMessageSize:        64 * 1024,
		WriteWait:             10 * time.Second,
		InboundRate:           20,
		InboundBurst:          40,
	}
}

// Stats are aggregate counters for the status endpoint.
type Stats struct {
	Connections int `json:"connections"`
	UniqueUsers int `json:"unique_users"`
	OnlineUsers int `json:"online_users"`
	Rooms       int `json:"active_rooms"`
}

// Manager composes the connection registry, room registry, presence
// tracker and dispatcher. One Manager is constructed per process and
// injected into every feature that needs realtime delivery.
type Manager struct {
	cfg        ManagerConfig
	now        func() time.Time
	conns      *Registry
	rooms      *RoomRegistry
	presence   *PresenceTracker
	dispatcher *Dispatcher
	closed     atomic.Bool
}

// NewManager builds a Manager and registers the presence_update handler.
func NewManager(cfg ManagerConfig) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	conns := NewRegistry(cfg.MaxConnectionsPerUser, cfg.OfflineQueueSize, now)
	rooms := NewRoomRegistry(conns, now)
	m := &Manager{
		cfg:        cfg,
		now:        now,
		conns:      conns,
		rooms:      rooms,
		presence:   NewPresenceTracker(rooms, cfg.OfflineGrace, conns.HasConnections, now),
		dispatcher: NewDispatcher(conns, now),
	}
	_ = m.dispatcher.RegisterHandler(TypePresenceUpdate, m.handlePresenceUpdate)
	return m
}

// Connect registers a connection whose transport has completed its handshake.
// Pumps are not started; ServeConnection does that.
func (m *Manager) Connect(transport Transport, userID string, metadata map[string]string) *Connection {
	conn := m.newConnection(transport, userID, metadata)
	m.register(conn)
	return conn
}

func (m *Manager) newConnection(transport Transport, userID string, metadata map[string]string) *Connection {
	var limiter *rate.Limiter
	if m.cfg.InboundRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(m.cfg.InboundRate), m.cfg.InboundBurst)
	}
	return newConnection(transport, userID, metadata, m.now(), m.cfg.SendBuffer, limiter)
}

// register admits conn: evicts over-cap connections, subscribes it to the
// user's rooms, sends connected, flushes the offline queue, and marks the
// user online.
func (m *Manager) register(conn *Connection) {
	m.rooms.subscribeConnection(conn)

	greeting := NewMessage(TypeConnected, map[string]interface{}{
		"connection_id": conn.id,
		"user_id":       conn.userID,
	})
	evicted, flushed := m.conns.add(conn, greeting)

	for _, old := range evicted {
		m.conns.SendToConnection(old, ErrorMessage("Connection limit exceeded; oldest connection closed"))
		old.close()
		old.unsubscribeAll()
		metrics.RecordEviction("cap")
		logging.Info().
			Str("user_id", old.userID).
			Str("connection_id", old.id).
			Msg("evicted oldest connection over per-user cap")
	}

	m.presence.markOnline(conn.userID)
	m.updateGauges()

	logging.Info().
		Str("user_id", conn.userID).
		Str("connection_id", conn.id).
		Int("flushed", flushed).
		Msg("connection registered")
}

// Disconnect removes conn from the registry and unsubscribes it from its
// rooms. When the user has no connections left, the offline downgrade is
// scheduled; once it applies, the user leaves every room they belong to.
func (m *Manager) Disconnect(conn *Connection) {
	conn.close()
	removed, remaining := m.conns.remove(conn)
	if !removed {
		return
	}
	conn.unsubscribeAll()
	if remaining == 0 {
		m.presence.scheduleOffline(conn.userID)
	}
	m.updateGauges()

	logging.Info().
		Str("user_id", conn.userID).
		Str("connection_id", conn.id).
		Int("remaining", remaining).
		Msg("connection removed")
}

// ServeConnection runs the connection until the transport closes or ctx is
// cancelled, then disconnects it.
func (m *Manager) ServeConnection(ctx context.Context, transport Transport, userID string, metadata map[string]string) error {
	if m.closed.Load() {
		_ = transport.Close()
		return ErrManagerClosed
	}

	conn := m.newConnection(transport, userID, metadata)
	cfg := m.pumpConfig()
	go conn.writePump(cfg)
	m.register(conn)

	stop := context.AfterFunc(ctx, conn.close)
	defer stop()

	conn.readPump(cfg, m.dispatchInbound)
	m.Disconnect(conn)
	return nil
}

func (m *Manager) pumpConfig() pumpConfig {
	return pumpConfig{
		writeWait:      m.cfg.WriteWait,
		readWait:       m.cfg.HeartbeatInterval + m.cfg.HeartbeatTimeout,
		maxMessageSize: m.cfg.MaxMessageSize,
		now:            m.now,
	}
}

func (m *Manager) dispatchInbound(conn *Connection, data []byte) {
	if conn.limiter != nil && !conn.limiter.Allow() {
		m.conns.SendToConnection(conn, ErrorMessage("Rate limit exceeded"))
		return
	}
	m.dispatcher.Dispatch(conn, data)
}

// Dispatch routes one raw inbound frame as if read from conn.
func (m *Manager) Dispatch(conn *Connection, data []byte) {
	m.dispatcher.Dispatch(conn, data)
}

// RegisterHandler adds a handler for an inbound message kind.
func (m *Manager) RegisterHandler(t MessageType, h Handler) error {
	return m.dispatcher.RegisterHandler(t, h)
}

// SendToUser delivers to every connection of the user, optionally queueing
// when the user is offline.
func (m *Manager) SendToUser(userID string, msg Message, queueIfOffline bool) bool {
	return m.conns.SendToUser(userID, msg, queueIfOffline)
}

// SendToConnection delivers to a single connection.
func (m *Manager) SendToConnection(conn *Connection, msg Message) bool {
	return m.conns.SendToConnection(conn, msg)
}

// SendToRoom fans out to room members except excludeUser.
func (m *Manager) SendToRoom(roomID string, msg Message, excludeUser string) int {
	return m.rooms.SendToRoom(roomID, msg, excludeUser)
}

// CreateRoom creates a room.
func (m *Manager) CreateRoom(roomID, kind string, metadata map[string]interface{}) Room {
	return m.rooms.CreateRoom(roomID, kind, metadata)
}

// JoinRoom adds a user to a room.
func (m *Manager) JoinRoom(userID, roomID string) bool {
	return m.rooms.JoinRoom(userID, roomID)
}

// LeaveRoom removes a user from a room.
func (m *Manager) LeaveRoom(userID, roomID string) bool {
	return m.rooms.LeaveRoom(userID, roomID)
}

// DeleteRoom notifies members and removes a room.
func (m *Manager) DeleteRoom(roomID string) bool {
	return m.rooms.DeleteRoom(roomID)
}

// GetRoom returns a room snapshot or nil.
func (m *Manager) GetRoom(roomID string) *Room {
	return m.rooms.GetRoom(roomID)
}

// RoomMembers returns a room's members in join order.
func (m *Manager) RoomMembers(roomID string) []string {
	return m.rooms.RoomMembers(roomID)
}

// UserRooms returns the rooms a user belongs to.
func (m *Manager) UserRooms(userID string) []string {
	return m.rooms.UserRooms(userID)
}

// RoomCount returns the number of live rooms.
func (m *Manager) RoomCount() int {
	return m.rooms.RoomCount()
}

// UserConnections returns the user's live connections.
func (m *Manager) UserConnections(userID string) []*Connection {
	return m.conns.UserConnections(userID)
}

// IsConnected reports whether the user has a live connection.
func (m *Manager) IsConnected(userID string) bool {
	return m.conns.HasConnections(userID)
}

// QueueLength returns the number of messages queued for an offline user.
func (m *Manager) QueueLength(userID string) int {
	return m.conns.QueueLength(userID)
}

// UpdatePresence stores and broadcasts a user's presence.
func (m *Manager) UpdatePresence(userID string, status Status, activity map[string]interface{}) {
	m.presence.UpdatePresence(userID, status, activity)
}

// GetPresence returns a user's presence record.
func (m *Manager) GetPresence(userID string) (Presence, bool) {
	return m.presence.GetPresence(userID)
}

// GetOnlineUsers returns users not currently offline.
func (m *Manager) GetOnlineUsers() []string {
	return m.presence.GetOnlineUsers()
}

// OnUserOffline registers a callback fired after the delayed offline downgrade.
func (m *Manager) OnUserOffline(fn func(userID string)) {
	m.presence.OnUserOffline(fn)
}

// Stats returns aggregate counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Connections: m.conns.ConnectionCount(),
		UniqueUsers: m.conns.UserCount(),
		OnlineUsers: len(m.presence.GetOnlineUsers()),
		Rooms:       m.rooms.RoomCount(),
	}
}

// PingAll sends a ping control frame to every connected connection.
// A failed ping marks the connection disconnected.
func (m *Manager) PingAll() int {
	deadline := m.now().Add(m.cfg.WriteWait)
	pinged := 0
	for _, c := range m.conns.All() {
		if c.State() != StateConnected {
			continue
		}
		if err := c.ping(deadline); err != nil {
			logging.Warn().Err(err).Str("connection_id", c.id).Str("user_id", c.userID).Msg("ping failed")
			metrics.SendFailures.Inc()
			c.close()
			continue
		}
		pinged++
	}
	return pinged
}

// ReapStale closes connections that are already marked disconnected or whose
// last heartbeat is older than interval + timeout. It returns the number reaped.
func (m *Manager) ReapStale(now time.Time) int {
	cutoff := m.cfg.HeartbeatInterval + m.cfg.HeartbeatTimeout
	reaped := 0
	for _, c := range m.conns.All() {
		if c.State() != StateDisconnected && now.Sub(c.LastHeartbeat()) <= cutoff {
			continue
		}
		logging.Info().
			Str("connection_id", c.id).
			Str("user_id", c.userID).
			Time("last_heartbeat", c.LastHeartbeat()).
			Msg("reaping stale connection")
		metrics.RecordEviction("stale")
		m.Disconnect(c)
		reaped++
	}
	return reaped
}

// Close closes every connection and stops pending presence timers.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	m.presence.stop()
	all := m.conns.All()
	for _, c := range all {
		metrics.RecordEviction("shutdown")
		m.Disconnect(c)
	}
	logging.Info().Int("connections_closed", len(all)).Msg("websocket manager closed")
}

func (m *Manager) updateGauges() {
	metrics.UpdateRealtimeGauges(m.conns.ConnectionCount(), m.conns.UserCount(), m.rooms.RoomCount())
}

func (m *Manager) handlePresenceUpdate(conn *Connection, frame Frame) {
	status, ok := ParseClientStatus(frame.Str("status"))
	if !ok {
		m.conns.SendToConnection(conn, ErrorMessage("Invalid presence status"))
		return
	}
	m.presence.UpdatePresence(conn.userID, status, frame.Map("activity"))
}
