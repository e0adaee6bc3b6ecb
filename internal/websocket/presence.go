// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"sort"
	"sync"
	"time"

	"github.com/dopaminewatch/realtime/internal/logging"
)

// Status is a user's presence status.
type Status string

const (
	StatusOnline  Status = "online"
	StatusAway    Status = "away"
	StatusBusy    Status = "busy"
	StatusOffline Status = "offline"
)

// ParseClientStatus accepts the statuses a client may set for itself.
func ParseClientStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusOnline, StatusAway, StatusBusy:
		return Status(s), true
	default:
		return "", false
	}
}

// Presence is a user's presence record.
type Presence struct {
	UserID   string                 `json:"user_id"`
	Status   Status                 `json:"status"`
	Activity map[string]interface{} `json:"activity,omitempty"`
	LastSeen time.Time              `json:"last_seen"`
}

// PresenceTracker stores presence records and broadcasts changes to the
// rooms a user belongs to. The offline downgrade is delayed by a grace
// period and re-checked before it is applied.
type PresenceTracker struct {
	rooms       *RoomRegistry
	grace       time.Duration
	now         func() time.Time
	isConnected func(userID string) bool

	mu         sync.Mutex
	records    map[string]*Presence
	timers     map[string]*time.Timer
	generation map[string]uint64
	onOffline  []func(userID string)
	stopped    bool
}

// NewPresenceTracker creates a tracker. isConnected is consulted when a
// delayed downgrade fires.
func NewPresenceTracker(rooms *RoomRegistry, grace time.Duration, isConnected func(string) bool, now func() time.Time) *PresenceTracker {
	if now == nil {
		now = time.Now
	}
	return &PresenceTracker{
		rooms:       rooms,
		grace:       grace,
		now:         now,
		isConnected: isConnected,
		records:     make(map[string]*Presence),
		timers:      make(map[string]*time.Timer),
		generation:  make(map[string]uint64),
	}
}

// UpdatePresence stores the record and broadcasts it to every room the user
// belongs to, excluding the user.
func (p *PresenceTracker) UpdatePresence(userID string, status Status, activity map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.publishLocked(userID, status, activity)
}

// publishLocked writes the record and broadcasts it while p.mu is held, so
// broadcasts for one user leave in the order their records were written.
func (p *PresenceTracker) publishLocked(userID string, status Status, activity map[string]interface{}) {
	p.records[userID] = &Presence{UserID: userID, Status: status, Activity: activity, LastSeen: p.now()}

	fields := map[string]interface{}{
		"user_id": userID,
		"status":  string(status),
	}
	if activity != nil {
		fields["activity"] = activity
	}
	msg := NewMessage(TypePresenceUpdate, fields)
	for _, roomID := range p.rooms.UserRooms(userID) {
		p.rooms.SendToRoom(roomID, msg, userID)
	}
}

// GetPresence returns the user's presence record.
func (p *PresenceTracker) GetPresence(userID string) (Presence, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.records[userID]
	if !ok {
		return Presence{}, false
	}
	return *rec, true
}

// GetOnlineUsers returns users whose status is anything but offline, sorted.
func (p *PresenceTracker) GetOnlineUsers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.records))
	for id, rec := range p.records {
		if rec.Status != StatusOffline {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// OnUserOffline registers fn to run after a user's offline downgrade.
func (p *PresenceTracker) OnUserOffline(fn func(userID string)) {
	p.mu.Lock()
	p.onOffline = append(p.onOffline, fn)
	p.mu.Unlock()
}

// markOnline cancels any pending downgrade and sets the user online unless
// they already hold a non-offline status.
func (p *PresenceTracker) markOnline(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation[userID]++
	if t, ok := p.timers[userID]; ok {
		t.Stop()
		delete(p.timers, userID)
	}
	if rec, ok := p.records[userID]; ok && rec.Status != StatusOffline {
		rec.LastSeen = p.now()
		return
	}
	p.publishLocked(userID, StatusOnline, nil)
}

// scheduleOffline arms the delayed downgrade for a user with no connections.
// A zero grace period downgrades immediately.
func (p *PresenceTracker) scheduleOffline(userID string) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.generation[userID]++
	gen := p.generation[userID]
	if t, ok := p.timers[userID]; ok {
		t.Stop()
		delete(p.timers, userID)
	}
	if p.grace > 0 {
		p.timers[userID] = time.AfterFunc(p.grace, func() { p.fireOffline(userID, gen) })
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.fireOffline(userID, gen)
}

// fireOffline applies a scheduled downgrade. Any markOnline since scheduling
// bumps the generation; it is checked again under the lock that writes the
// offline record, so a reconnect racing the connectivity check wins.
func (p *PresenceTracker) fireOffline(userID string, gen uint64) {
	if !p.current(userID, gen) {
		return
	}
	if p.isConnected != nil && p.isConnected(userID) {
		return
	}

	p.mu.Lock()
	if p.stopped || p.generation[userID] != gen {
		p.mu.Unlock()
		return
	}
	delete(p.timers, userID)
	p.publishLocked(userID, StatusOffline, nil)
	callbacks := make([]func(string), len(p.onOffline))
	copy(callbacks, p.onOffline)
	p.mu.Unlock()

	logging.Debug().Str("user_id", userID).Msg("user offline")

	for _, fn := range callbacks {
		if !p.current(userID, gen) {
			return
		}
		fn(userID)
	}

	// Offline users hold no room memberships.
	for _, roomID := range p.rooms.UserRooms(userID) {
		if !p.current(userID, gen) {
			return
		}
		p.rooms.LeaveRoom(userID, roomID)
	}
}

// current reports whether gen is still the user's latest presence generation.
func (p *PresenceTracker) current(userID string, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.stopped && p.generation[userID] == gen
}

// stop cancels pending downgrades; later schedules are ignored.
func (p *PresenceTracker) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	for id, t := range p.timers {
		t.Stop()
		delete(p.timers, id)
	}
}
