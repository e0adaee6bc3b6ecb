// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/metrics"
)

// Handler processes one inbound frame from a connection.
type Handler func(conn *Connection, frame Frame)

// Dispatcher decodes inbound frames and routes them to handlers by kind.
type Dispatcher struct {
	conns *Registry
	now   func() time.Time

	mu       sync.RWMutex
	handlers map[MessageType][]Handler
}

// NewDispatcher creates a dispatcher replying through conns.
func NewDispatcher(conns *Registry, now func() time.Time) *Dispatcher {
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		conns:    conns,
		now:      now,
		handlers: make(map[MessageType][]Handler),
	}
}

// RegisterHandler adds a handler for an inbound kind. Handlers for the same
// kind run in registration order. ping is answered by the dispatcher itself.
func (d *Dispatcher) RegisterHandler(t MessageType, h Handler) error {
	if !t.IsInbound() {
		return fmt.Errorf("register handler: %q is not an inbound message type", t)
	}
	if t == TypePing {
		return fmt.Errorf("register handler: ping is handled by the dispatcher")
	}
	if h == nil {
		return fmt.Errorf("register handler: nil handler for %q", t)
	}
	d.mu.Lock()
	d.handlers[t] = append(d.handlers[t], h)
	d.mu.Unlock()
	return nil
}

// Dispatch decodes data and invokes the handlers for its kind. Protocol
// errors are answered with an error frame to conn only.
func (d *Dispatcher) Dispatch(conn *Connection, data []byte) {
	frame, typeName, ok := decodeFrame(data)
	if !ok {
		metrics.RecordReceived("invalid")
		logging.Debug().Str("connection_id", conn.id).Msg("invalid inbound frame")
		d.conns.SendToConnection(conn, ErrorMessage("Invalid message format"))
		return
	}

	t, known := ParseInboundType(typeName)
	if !known {
		metrics.RecordReceived("unknown")
		logging.Debug().Str("connection_id", conn.id).Str("type", typeName).Msg("unknown message type")
		d.conns.SendToConnection(conn, ErrorMessage("Unknown message type: "+typeName))
		return
	}
	metrics.RecordReceived(string(t))

	if t == TypePing {
		conn.touch(d.now())
		d.conns.SendToConnection(conn, NewMessage(TypePong, nil))
		return
	}

	d.mu.RLock()
	handlers := d.handlers[t]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.conns.SendToConnection(conn, ErrorMessage("Unknown message type: "+typeName))
		return
	}

	for _, h := range handlers {
		d.invoke(h, conn, frame)
	}
}

// invoke runs one handler, converting a panic into a logged error frame.
func (d *Dispatcher) invoke(h Handler, conn *Connection, frame Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error().
				Interface("panic", rec).
				Str("connection_id", conn.id).
				Str("user_id", conn.userID).
				Str("type", string(frame.Type)).
				Msg("message handler panicked")
			d.conns.SendToConnection(conn, ErrorMessage("Internal error"))
		}
	}()
	h(conn, frame)
}
