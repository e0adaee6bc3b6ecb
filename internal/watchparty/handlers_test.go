// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package watchparty

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorilla "github.com/gorilla/websocket"

	"github.com/dopaminewatch/realtime/internal/websocket"
)

func frame(t websocket.MessageType, fields map[string]interface{}) websocket.Frame {
	return websocket.Frame{Type: t, Fields: fields}
}

// identity returns a pump-less connection usable as a handler argument.
func identity(t *testing.T, userID string) *websocket.Connection {
	t.Helper()
	cfg := websocket.DefaultManagerConfig()
	cfg.OfflineGrace = 0
	m := websocket.NewManager(cfg)
	t.Cleanup(m.Close)
	return m.Connect(nil, userID, nil)
}

func TestRegisterHandlers(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.RegisterHandlers(); err != nil {
		t.Fatalf("RegisterHandlers: %v", err)
	}
	for _, kind := range []websocket.MessageType{websocket.TypePartySync, websocket.TypePartyChat, websocket.TypePartyReaction} {
		if f.rt.handlers[kind] == nil {
			t.Errorf("no handler for %s", kind)
		}
	}
	if len(f.rt.offline) != 1 {
		t.Errorf("offline callbacks = %d, want 1", len(f.rt.offline))
	}
}

func TestRegisterHandlers_WithoutLeaveOnOffline(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.LeaveOnOffline = false })
	if err := f.engine.RegisterHandlers(); err != nil {
		t.Fatalf("RegisterHandlers: %v", err)
	}
	if len(f.rt.offline) != 0 {
		t.Error("offline callback registered")
	}
}

func TestHandleSync(t *testing.T) {
	tests := []struct {
		name      string
		user      string
		fields    map[string]interface{}
		wantError string
		check     func(t *testing.T, p *Party)
	}{
		{
			name:   "host play",
			user:   "alice",
			fields: map[string]interface{}{"event": "play"},
			check: func(t *testing.T, p *Party) {
				if p.State != StatePlaying {
					t.Errorf("State = %s", p.State)
				}
			},
		},
		{
			name:   "host seek",
			user:   "alice",
			fields: map[string]interface{}{"event": "seek", "position": 90.0},
			check: func(t *testing.T, p *Party) {
				if p.CurrentPosition != 90 {
					t.Errorf("CurrentPosition = %v", p.CurrentPosition)
				}
			},
		},
		{
			name:      "seek without position",
			user:      "alice",
			fields:    map[string]interface{}{"event": "seek"},
			wantError: "Position is required",
		},
		{
			name:      "member play",
			user:      "bob",
			fields:    map[string]interface{}{"event": "play"},
			wantError: "Not authorized to control playback",
		},
		{
			name:      "pause from lobby",
			user:      "alice",
			fields:    map[string]interface{}{"event": "pause"},
			wantError: "Invalid playback state",
		},
		{
			name:   "ready defaults to true",
			user:   "bob",
			fields: map[string]interface{}{"event": "ready"},
			check: func(t *testing.T, p *Party) {
				if m, _ := p.Member("bob"); !m.IsReady {
					t.Error("bob not ready")
				}
			},
		},
		{
			name:   "buffer marks member buffering",
			user:   "bob",
			fields: map[string]interface{}{"event": "buffer", "position": 12.0},
			check: func(t *testing.T, p *Party) {
				if m, _ := p.Member("bob"); !m.IsBuffering || m.Position != 12 {
					t.Errorf("bob = %+v", m)
				}
			},
		},
		{
			name:      "unknown event",
			user:      "alice",
			fields:    map[string]interface{}{"event": "rewind"},
			wantError: "Unknown sync event: rewind",
		},
		{
			name:      "missing event",
			user:      "alice",
			fields:    map[string]interface{}{},
			wantError: "Sync event is required",
		},
		{
			name:      "other party",
			user:      "alice",
			fields:    map[string]interface{}{"event": "play", "party_id": "someone-else"},
			wantError: "Not a member of this party",
		},
		{
			name:      "outsider",
			user:      "mallory",
			fields:    map[string]interface{}{"event": "play"},
			wantError: "Not a member of this party",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if err := f.engine.RegisterHandlers(); err != nil {
				t.Fatal(err)
			}
			p := f.movie(t, false, false)
			f.join(t, p.ID, "bob")

			f.rt.handlers[websocket.TypePartySync](identity(t, tt.user), frame(websocket.TypePartySync, tt.fields))

			rejected := f.rt.takeRejected()
			if tt.wantError != "" {
				if len(rejected) != 1 || rejected[0].Get("error") != tt.wantError {
					t.Errorf("rejections = %+v, want %q", rejected, tt.wantError)
				}
				return
			}
			if len(rejected) != 0 {
				t.Fatalf("unexpected rejection: %+v", rejected)
			}
			tt.check(t, f.engine.GetParty(p.ID))
		})
	}
}

func TestHandleChatAndReaction(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.RegisterHandlers(); err != nil {
		t.Fatal(err)
	}
	p := f.movie(t, false, false)
	bob := identity(t, "bob")
	f.join(t, p.ID, "bob")
	f.rt.take("alice")

	f.rt.handlers[websocket.TypePartyChat](bob, frame(websocket.TypePartyChat, map[string]interface{}{"content": "popcorn ready"}))
	f.rt.handlers[websocket.TypePartyReaction](bob, frame(websocket.TypePartyReaction, map[string]interface{}{"emoji": "😂"}))
	f.rt.handlers[websocket.TypePartyChat](bob, frame(websocket.TypePartyChat, map[string]interface{}{"content": ""}))
	f.rt.handlers[websocket.TypePartyReaction](bob, frame(websocket.TypePartyReaction, map[string]interface{}{"emoji": "too long"}))

	msgs := f.rt.take("alice")
	if len(ofType(msgs, websocket.TypePartyChat)) != 1 || len(ofType(msgs, websocket.TypePartyReaction)) != 1 {
		t.Errorf("alice received %+v", msgs)
	}
	rejected := f.rt.takeRejected()
	if len(rejected) != 2 || rejected[0].Get("error") != "Message is empty" || rejected[1].Get("error") != "Invalid reaction" {
		t.Errorf("rejections = %+v", rejected)
	}
}

func TestOfflineUserLeavesParty(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.RegisterHandlers(); err != nil {
		t.Fatal(err)
	}
	p := f.movie(t, false, false)
	f.join(t, p.ID, "bob")

	f.rt.offline[0]("alice")

	got := f.engine.GetParty(p.ID)
	if got.HostID != "bob" || len(got.Members) != 1 {
		t.Errorf("party after host went offline = %+v", got)
	}
}

func TestClientError(t *testing.T) {
	if got := clientError(errors.New("boom")); got != "Internal error" {
		t.Errorf("clientError(unknown) = %q", got)
	}
	if got := clientError(ErrPartyFull); got != "Party is full" {
		t.Errorf("clientError(ErrPartyFull) = %q", got)
	}
}

// pipeTransport is an in-memory websocket.Transport for end-to-end tests.
type pipeTransport struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

var errPipeClosed = errors.New("pipe closed")

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (p *pipeTransport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-p.in:
		return gorilla.TextMessage, data, nil
	case <-p.closed:
		return 0, nil, errPipeClosed
	}
}

func (p *pipeTransport) WriteMessage(_ int, data []byte) error {
	select {
	case <-p.closed:
		return errPipeClosed
	default:
	}
	p.out <- append([]byte(nil), data...)
	return nil
}

func (p *pipeTransport) WriteControl(int, []byte, time.Time) error { return nil }
func (p *pipeTransport) SetReadLimit(int64)                          {}
func (p *pipeTransport) SetReadDeadline(time.Time) error             { return nil }
func (p *pipeTransport) SetWriteDeadline(time.Time) error            { return nil }
func (p *pipeTransport) SetPongHandler(func(string) error)           {}

func (p *pipeTransport) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeTransport) send(t *testing.T, v map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	p.in <- data
}

// expect reads frames until one of the given type arrives.
func (p *pipeTransport) expect(t *testing.T, kind string) map[string]interface{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-p.out:
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("decode %s: %v", data, err)
			}
			if m["type"] == kind {
				return m
			}
		case <-deadline:
			t.Fatalf("no %s frame", kind)
			return nil
		}
	}
}

// quiet asserts no frame of the given type arrives within a short window.
func (p *pipeTransport) quiet(t *testing.T, kind string) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case data := <-p.out:
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err == nil && m["type"] == kind {
				t.Fatalf("unexpected %s frame: %s", kind, data)
			}
		case <-deadline:
			return
		}
	}
}

func TestWatchParty_EndToEnd(t *testing.T) {
	clock := newTestClock()
	mcfg := websocket.DefaultManagerConfig()
	mcfg.OfflineGrace = 0
	mcfg.InboundRate = 0
	mcfg.Now = clock.Now
	m := websocket.NewManager(mcfg)
	t.Cleanup(m.Close)

	cfg := DefaultConfig()
	cfg.Now = clock.Now
	engine := NewEngine(m, nil, cfg)
	if err := engine.RegisterHandlers(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	alice, bob := newPipeTransport(), newPipeTransport()
	go func() { _ = m.ServeConnection(ctx, alice, "alice", nil) }()
	go func() { _ = m.ServeConnection(ctx, bob, "bob", nil) }()
	alice.expect(t, "connected")
	bob.expect(t, "connected")

	party := engine.CreateParty(CreateParams{
		HostID: "alice", HostName: "Alice", ContentID: "movie-42",
		ContentDuration: 3600, IsPrivate: true,
	})
	if party == nil || party.InviteCode == "" || party.State != StateLobby {
		t.Fatalf("created party = %+v", party)
	}

	if engine.JoinParty(JoinParams{InviteCode: party.InviteCode, UserID: "bob", UserName: "Bob"}) == nil {
		t.Fatal("bob could not join")
	}
	if got := alice.expect(t, "presence_update"); got["action"] != "joined" || got["user_id"] != "bob" {
		t.Errorf("alice presence_update = %v", got)
	}
	state := bob.expect(t, "party_state")
	snapshot, _ := state["party"].(map[string]interface{})
	if _, hasCode := snapshot["invite_code"]; hasCode {
		t.Error("bob's snapshot exposes the invite code")
	}
	if members, _ := snapshot["members"].([]interface{}); len(members) != 2 {
		t.Errorf("snapshot members = %v", snapshot["members"])
	}

	alice.send(t, map[string]interface{}{"type": "party_sync", "event": "seek", "position": -50})
	for _, tr := range []*pipeTransport{alice, bob} {
		if got := tr.expect(t, "party_sync"); got["event"] != "seek" || got["position"] != 0.0 {
			t.Errorf("seek broadcast = %v", got)
		}
	}

	alice.send(t, map[string]interface{}{"type": "party_sync", "event": "play"})
	for _, tr := range []*pipeTransport{alice, bob} {
		if got := tr.expect(t, "party_sync"); got["event"] != "play" || got["state"] != "playing" {
			t.Errorf("play broadcast = %v", got)
		}
	}

	clock.Advance(10 * time.Second)
	bob.send(t, map[string]interface{}{"type": "party_sync", "event": "position", "position": 20.0})
	correction := bob.expect(t, "party_sync")
	if correction["event"] != "seek" || correction["correction"] != true || correction["position"] != 10.0 {
		t.Errorf("correction = %v", correction)
	}
	alice.quiet(t, "party_sync")

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for m.IsConnected("alice") || m.IsConnected("bob") {
		if time.Now().After(deadline) {
			t.Fatal("connections did not close")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if engine.ActivePartyCount() != 0 {
		t.Errorf("party survived both members going offline: %d", engine.ActivePartyCount())
	}
}
