// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dopaminewatch/realtime/internal/logging"
)

// Transport is the subset of *websocket.Conn a Connection drives.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Transport = (*websocket.Conn)(nil)

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	StateConnecting ConnectionState = iota
	StateConnected
	StateReconnecting
	StateDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// connectionSeq orders connections by creation, independent of clock resolution.
var connectionSeq atomic.Uint64

// Connection is one transport-level link from one user.
type Connection struct {
	id        string
	seq       uint64
	userID    string
	transport Transport
	openedAt  time.Time
	metadata  map[string]string

	lastHeartbeat atomic.Int64
	state         atomic.Int32

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	limiter *rate.Limiter

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConnection(transport Transport, userID string, metadata map[string]string, now time.Time, sendBuffer int, limiter *rate.Limiter) *Connection {
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	c := &Connection{
		id:        uuid.New().String(),
		seq:       connectionSeq.Add(1),
		userID:    userID,
		transport: transport,
		openedAt:  now,
		metadata:  md,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		limiter:   limiter,
		rooms:     make(map[string]struct{}),
	}
	c.lastHeartbeat.Store(now.UnixNano())
	c.state.Store(int32(StateConnecting))
	return c
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// UserID returns the owning user.
func (c *Connection) UserID() string { return c.userID }

// OpenedAt returns when the connection was accepted.
func (c *Connection) OpenedAt() time.Time { return c.openedAt }

// Metadata returns a copy of the connection metadata.
func (c *Connection) Metadata() map[string]string {
	out := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// State returns the lifecycle state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// LastHeartbeat returns the time of the last pong or client ping.
func (c *Connection) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

// Rooms returns the rooms this connection is subscribed to, sorted.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) touch(now time.Time) {
	c.lastHeartbeat.Store(now.UnixNano())
}

func (c *Connection) setState(s ConnectionState) {
	c.state.Store(int32(s))
}

func (c *Connection) subscribe(roomID string) {
	c.mu.Lock()
	c.rooms[roomID] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) unsubscribe(roomID string) {
	c.mu.Lock()
	delete(c.rooms, roomID)
	c.mu.Unlock()
}

func (c *Connection) unsubscribeAll() {
	c.mu.Lock()
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()
}

// enqueue hands an encoded frame to the write pump without blocking.
func (c *Connection) enqueue(data []byte) bool {
	if c.State() == StateDisconnected {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close marks the connection disconnected and signals the write pump, which
// flushes what is already queued and closes the transport.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.setState(StateDisconnected)
		close(c.done)
	})
}

// pumpConfig carries the timings both pumps need.
type pumpConfig struct {
	writeWait      time.Duration
	readWait       time.Duration
	maxMessageSize int64
	now            func() time.Time
}

// readPump reads frames until the transport fails, handing each to dispatch.
func (c *Connection) readPump(cfg pumpConfig, dispatch func(*Connection, []byte)) {
	log := logging.WithComponent("websocket")

	c.transport.SetReadLimit(cfg.maxMessageSize)
	if err := c.transport.SetReadDeadline(cfg.now().Add(cfg.readWait)); err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Msg("failed to set read deadline")
		return
	}
	c.transport.SetPongHandler(func(string) error {
		now := cfg.now()
		c.touch(now)
		return c.transport.SetReadDeadline(now.Add(cfg.readWait))
	})

	for {
		_, data, err := c.transport.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.id).Str("user_id", c.userID).Msg("unexpected websocket close")
			}
			return
		}
		if err := c.transport.SetReadDeadline(cfg.now().Add(cfg.readWait)); err != nil {
			return
		}
		dispatch(c, data)
	}
}

// writePump writes queued frames until the connection is closed or a write fails.
func (c *Connection) writePump(cfg pumpConfig) {
	log := logging.WithComponent("websocket")
	defer func() {
		c.close()
		_ = c.transport.Close() // best-effort; the read pump observes the failure
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(cfg, data); err != nil {
				log.Warn().Err(err).Str("connection_id", c.id).Str("user_id", c.userID).Msg("websocket write failed")
				return
			}
		case <-c.done:
			c.flush(cfg)
			_ = c.transport.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				cfg.now().Add(cfg.writeWait))
			return
		}
	}
}

func (c *Connection) write(cfg pumpConfig, data []byte) error {
	if err := c.transport.SetWriteDeadline(cfg.now().Add(cfg.writeWait)); err != nil {
		return err
	}
	return c.transport.WriteMessage(websocket.TextMessage, data)
}

// flush writes frames queued before close, e.g. an eviction notice.
func (c *Connection) flush(cfg pumpConfig) {
	for {
		select {
		case data := <-c.send:
			if err := c.write(cfg, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// ping sends a WebSocket ping control frame.
func (c *Connection) ping(deadline time.Time) error {
	if c.transport == nil {
		return nil
	}
	return c.transport.WriteControl(websocket.PingMessage, nil, deadline)
}
