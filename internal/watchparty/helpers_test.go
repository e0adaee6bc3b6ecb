// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package watchparty

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/websocket"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// fakeRealtime records deliveries per user instead of writing to sockets.
type fakeRealtime struct {
	mu        sync.Mutex
	rooms     map[string]map[string]bool
	inbox     map[string][]websocket.Message
	rejected  []websocket.Message
	handlers  map[websocket.MessageType]websocket.Handler
	offline   []func(string)
	deletions []string
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		rooms:    make(map[string]map[string]bool),
		inbox:    make(map[string][]websocket.Message),
		handlers: make(map[websocket.MessageType]websocket.Handler),
	}
}

func (f *fakeRealtime) CreateRoom(roomID, kind string, metadata map[string]interface{}) websocket.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[roomID] = make(map[string]bool)
	return websocket.Room{ID: roomID, Kind: kind, Metadata: metadata}
}

func (f *fakeRealtime) JoinRoom(userID, roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.rooms[roomID]
	if !ok {
		return false
	}
	if members[userID] {
		return true
	}
	for _, other := range f.sortedLocked(roomID) {
		f.inbox[other] = append(f.inbox[other], websocket.NewMessage(websocket.TypePresenceUpdate, map[string]interface{}{
			"user_id": userID, "action": "joined", "room_id": roomID,
		}))
	}
	members[userID] = true
	return true
}

func (f *fakeRealtime) LeaveRoom(userID, roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.rooms[roomID]
	if !ok || !members[userID] {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(f.rooms, roomID)
	}
	return true
}

func (f *fakeRealtime) DeleteRoom(roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletions = append(f.deletions, roomID)
	if _, ok := f.rooms[roomID]; !ok {
		return false
	}
	delete(f.rooms, roomID)
	return true
}

func (f *fakeRealtime) SendToRoom(roomID string, msg websocket.Message, excludeUser string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, uid := range f.sortedLocked(roomID) {
		if uid == excludeUser {
			continue
		}
		f.inbox[uid] = append(f.inbox[uid], msg)
		n++
	}
	return n
}

func (f *fakeRealtime) SendToUser(userID string, msg websocket.Message, _ bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbox[userID] = append(f.inbox[userID], msg)
	return true
}

func (f *fakeRealtime) SendToConnection(_ *websocket.Connection, msg websocket.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejected = append(f.rejected, msg)
	return true
}

func (f *fakeRealtime) RegisterHandler(t websocket.MessageType, h websocket.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[t] = h
	return nil
}

func (f *fakeRealtime) OnUserOffline(fn func(userID string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, fn)
}

func (f *fakeRealtime) sortedLocked(roomID string) []string {
	out := make([]string, 0, len(f.rooms[roomID]))
	for uid := range f.rooms[roomID] {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// take returns and clears everything delivered to userID.
func (f *fakeRealtime) take(userID string) []websocket.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.inbox[userID]
	delete(f.inbox, userID)
	return out
}

func (f *fakeRealtime) takeRejected() []websocket.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.rejected
	f.rejected = nil
	return out
}

func (f *fakeRealtime) inRoom(userID, roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rooms[roomID][userID]
}

func (f *fakeRealtime) roomExists(roomID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rooms[roomID]
	return ok
}

func ofType(msgs []websocket.Message, t websocket.MessageType) []websocket.Message {
	var out []websocket.Message
	for _, m := range msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingRepo captures write-through calls.
type recordingRepo struct {
	mu      sync.Mutex
	saved   map[string]Party
	chat    map[string][]ChatMessage
	deleted []string
	failing bool
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{saved: make(map[string]Party), chat: make(map[string][]ChatMessage)}
}

var errRepoDown = errors.New("repository unavailable")

func (r *recordingRepo) SaveParty(_ context.Context, p Party) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errRepoDown
	}
	r.saved[p.ID] = p
	return nil
}

func (r *recordingRepo) AppendChatMessage(_ context.Context, partyID string, msg ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errRepoDown
	}
	r.chat[partyID] = append(r.chat[partyID], msg)
	return nil
}

func (r *recordingRepo) DeleteParty(_ context.Context, partyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, partyID)
	delete(r.saved, partyID)
	delete(r.chat, partyID)
	return nil
}

func (r *recordingRepo) LoadParty(_ context.Context, partyID string) (Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.saved[partyID]
	if !ok {
		return Party{}, ErrRecordNotFound
	}
	p.Chat = append([]ChatMessage(nil), r.chat[partyID]...)
	return p, nil
}

type engineFixture struct {
	engine *Engine
	rt     *fakeRealtime
	repo   *recordingRepo
	clock  *testClock
}

func newFixture(t *testing.T, mutate ...func(*Config)) *engineFixture {
	t.Helper()
	clock := newTestClock()
	cfg := DefaultConfig()
	cfg.Now = clock.Now
	for _, fn := range mutate {
		fn(&cfg)
	}
	rt := newFakeRealtime()
	repo := newRecordingRepo()
	return &engineFixture{
		engine: NewEngine(rt, repo, cfg),
		rt:     rt,
		repo:   repo,
		clock:  clock,
	}
}

// movie creates a 3600s party hosted by "alice".
func (f *engineFixture) movie(t *testing.T, private, anyoneCanControl bool) *Party {
	t.Helper()
	p := f.engine.CreateParty(CreateParams{
		HostID:           "alice",
		HostName:         "Alice",
		ContentID:        "movie-42",
		ContentType:      "movie",
		ContentTitle:     "The Movie",
		ContentDuration:  3600,
		IsPrivate:        private,
		AnyoneCanControl: anyoneCanControl,
	})
	if p == nil {
		t.Fatal("CreateParty returned nil")
	}
	return p
}

func (f *engineFixture) join(t *testing.T, partyID, userID string) *Party {
	t.Helper()
	p := f.engine.JoinParty(JoinParams{PartyID: partyID, UserID: userID, UserName: userID})
	if p == nil {
		t.Fatalf("JoinParty(%s) returned nil", userID)
	}
	return p
}

func hostCount(p *Party) int {
	n := 0
	for _, m := range p.Members {
		if m.IsHost {
			n++
		}
	}
	return n
}
