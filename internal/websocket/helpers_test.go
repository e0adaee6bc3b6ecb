// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/dopaminewatch/realtime/internal/logging"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// newTestManager returns a manager with immediate offline downgrade and no
// inbound rate limit.
func newTestManager(t *testing.T, mutate ...func(*ManagerConfig)) *Manager {
	t.Helper()
	cfg := DefaultManagerConfig()
	cfg.OfflineGrace = 0
	cfg.InboundRate = 0
	for _, fn := range mutate {
		fn(&cfg)
	}
	m := NewManager(cfg)
	t.Cleanup(m.Close)
	return m
}

// nextMessage reads the next queued frame for conn.
func nextMessage(t *testing.T, c *Connection) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode frame %s: %v", data, err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("no message for connection %s", c.ID())
		return nil
	}
}

// drainMessages returns every frame currently queued for conn.
func drainMessages(t *testing.T, c *Connection) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for {
		select {
		case data := <-c.send:
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("decode frame %s: %v", data, err)
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

func expectNoMessage(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message for %s: %s", c.UserID(), data)
	default:
	}
}

// connectDrained connects a nil-transport connection and discards its greeting.
func connectDrained(t *testing.T, m *Manager, userID string) *Connection {
	t.Helper()
	c := m.Connect(nil, userID, nil)
	drainMessages(t, c)
	return c
}

var errTransportClosed = errors.New("transport closed")

// fakeTransport is an in-memory Transport.
type fakeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	pings    int
	controls []int
	pong     func(string) error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errTransportClosed
	default:
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.out <- cp
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, _ []byte, _ time.Time) error {
	select {
	case <-f.closed:
		return errTransportClosed
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, messageType)
	if messageType == websocket.PingMessage {
		f.pings++
	}
	return nil
}

func (f *fakeTransport) SetReadLimit(int64)               {}
func (f *fakeTransport) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	f.pong = h
	f.mu.Unlock()
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// readOut returns the next frame written to the transport.
func (f *fakeTransport) readOut(t *testing.T) map[string]interface{} {
	t.Helper()
	select {
	case data := <-f.out:
		var m map[string]interface{}
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode frame %s: %v", data, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written to transport")
		return nil
	}
}
