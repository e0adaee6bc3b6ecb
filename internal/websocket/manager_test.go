// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStats(t *testing.T) {
	m := newTestManager(t)
	connectDrained(t, m, "alice")
	connectDrained(t, m, "alice")
	connectDrained(t, m, "bob")
	m.CreateRoom("room-1", "watch_party", nil)

	want := Stats{Connections: 3, UniqueUsers: 2, OnlineUsers: 2, Rooms: 1}
	if got := m.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestReapStale(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	m := newTestManager(t, func(c *ManagerConfig) {
		c.HeartbeatInterval = 30 * time.Second
		c.HeartbeatTimeout = 10 * time.Second
		c.Now = func() time.Time { return clock }
	})

	stale := connectDrained(t, m, "alice")
	fresh := connectDrained(t, m, "bob")

	clock = start.Add(35 * time.Second)
	m.Dispatch(fresh, []byte(`{"type":"ping"}`))

	if n := m.ReapStale(start.Add(39 * time.Second)); n != 0 {
		t.Fatalf("reaped %d before cutoff", n)
	}
	if n := m.ReapStale(start.Add(41 * time.Second)); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if stale.State() != StateDisconnected {
		t.Errorf("stale state = %v", stale.State())
	}
	if m.IsConnected("alice") || !m.IsConnected("bob") {
		t.Error("wrong connection reaped")
	}
}

func TestPingAll(t *testing.T) {
	m := newTestManager(t)
	tr := newFakeTransport()
	m.Connect(tr, "alice", nil)
	connectDrained(t, m, "bob") // nil transport is skipped

	if n := m.PingAll(); n != 2 {
		t.Errorf("PingAll() = %d, want 2", n)
	}
	if got := tr.pingCount(); got != 1 {
		t.Errorf("transport pings = %d, want 1", got)
	}
}

func TestServeConnection_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	tr := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.ServeConnection(ctx, tr, "alice", nil) }()

	if msg := tr.readOut(t); msg["type"] != "connected" {
		t.Fatalf("first frame = %v", msg)
	}

	tr.in <- []byte(`{"type":"ping"}`)
	if msg := tr.readOut(t); msg["type"] != "pong" {
		t.Errorf("got %v, want pong", msg)
	}

	tr.in <- []byte(`{"type":"bogus"}`)
	if msg := tr.readOut(t); msg["error"] != "Unknown message type: bogus" {
		t.Errorf("got %v", msg)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeConnection() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConnection did not return after cancel")
	}
	if m.IsConnected("alice") {
		t.Error("connection still registered after return")
	}
}

func TestServeConnection_TransportCloseDisconnects(t *testing.T) {
	m := newTestManager(t)
	tr := newFakeTransport()

	done := make(chan error, 1)
	go func() { done <- m.ServeConnection(context.Background(), tr, "alice", nil) }()
	tr.readOut(t)

	_ = tr.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConnection did not return after transport close")
	}
	if m.Stats().Connections != 0 {
		t.Error("connection still registered")
	}
}

func TestServeConnection_InboundRateLimit(t *testing.T) {
	m := newTestManager(t, func(c *ManagerConfig) {
		c.InboundRate = 0.001
		c.InboundBurst = 1
	})
	tr := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.ServeConnection(ctx, tr, "alice", nil) }()
	tr.readOut(t)

	tr.in <- []byte(`{"type":"ping"}`)
	tr.in <- []byte(`{"type":"ping"}`)

	if msg := tr.readOut(t); msg["type"] != "pong" {
		t.Errorf("first = %v, want pong", msg)
	}
	if msg := tr.readOut(t); msg["error"] != "Rate limit exceeded" {
		t.Errorf("second = %v, want rate limit error", msg)
	}
}

func TestServeConnection_AfterClose(t *testing.T) {
	m := newTestManager(t)
	m.Close()

	err := m.ServeConnection(context.Background(), newFakeTransport(), "alice", nil)
	if !errors.Is(err, ErrManagerClosed) {
		t.Errorf("err = %v, want ErrManagerClosed", err)
	}
}

func TestClose_DisconnectsEveryone(t *testing.T) {
	m := newTestManager(t)
	a := connectDrained(t, m, "alice")
	b := connectDrained(t, m, "bob")

	m.Close()

	for _, c := range []*Connection{a, b} {
		if c.State() != StateDisconnected {
			t.Errorf("%s state = %v", c.UserID(), c.State())
		}
	}
	if m.Stats().Connections != 0 {
		t.Error("connections remain after Close")
	}
}
