// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

import (
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/dopaminewatch/realtime/internal/logging"
	"github.com/dopaminewatch/realtime/internal/metrics"
)

// MetadataPersistent exempts a room from deletion when it empties.
const MetadataPersistent = "persistent"

// Room is a read-only snapshot of a room.
type Room struct {
	ID        string
	Kind      string
	CreatedAt time.Time
	Metadata  map[string]interface{}
	Members   []string
}

// Persistent reports whether the room survives having no members.
func (r Room) Persistent() bool {
	v, _ := r.Metadata[MetadataPersistent].(bool)
	return v
}

type room struct {
	id        string
	kind      string
	createdAt time.Time
	metadata  map[string]interface{}
	members   []string
	memberSet map[string]struct{}
}

func (rm *room) persistent() bool {
	v, _ := rm.metadata[MetadataPersistent].(bool)
	return v
}

func (rm *room) snapshot() Room {
	md := make(map[string]interface{}, len(rm.metadata))
	for k, v := range rm.metadata {
		md[k] = v
	}
	members := make([]string, len(rm.members))
	copy(members, rm.members)
	return Room{ID: rm.id, Kind: rm.kind, CreatedAt: rm.createdAt, Metadata: md, Members: members}
}

func (rm *room) removeMember(userID string) {
	delete(rm.memberSet, userID)
	for i, m := range rm.members {
		if m == userID {
			rm.members = append(rm.members[:i:i], rm.members[i+1:]...)
			return
		}
	}
}

// RoomRegistry owns named multicast groups. Membership is per user: every
// live connection of a member is subscribed.
type RoomRegistry struct {
	conns *Registry
	now   func() time.Time

	mu        sync.RWMutex
	rooms     map[string]*room
	userRooms map[string]map[string]struct{}
}

// NewRoomRegistry creates an empty room registry delivering through conns.
func NewRoomRegistry(conns *Registry, now func() time.Time) *RoomRegistry {
	if now == nil {
		now = time.Now
	}
	return &RoomRegistry{
		conns:     conns,
		now:       now,
		rooms:     make(map[string]*room),
		userRooms: make(map[string]map[string]struct{}),
	}
}

// CreateRoom creates a room. An existing room with the same ID is replaced
// and its previous members are dropped.
func (rr *RoomRegistry) CreateRoom(roomID, kind string, metadata map[string]interface{}) Room {
	md := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	rm := &room{
		id:        roomID,
		kind:      kind,
		createdAt: rr.now(),
		metadata:  md,
		memberSet: make(map[string]struct{}),
	}

	rr.mu.Lock()
	var orphaned []string
	if old, ok := rr.rooms[roomID]; ok {
		orphaned = old.members
		for _, uid := range old.members {
			rr.dropUserRoomLocked(uid, roomID)
		}
	}
	rr.rooms[roomID] = rm
	snap := rm.snapshot()
	count := len(rr.rooms)
	rr.mu.Unlock()

	for _, uid := range orphaned {
		rr.unsubscribeUser(uid, roomID)
	}
	metrics.Rooms.Set(float64(count))
	logging.Debug().Str("room_id", roomID).Str("kind", kind).Msg("room created")
	return snap
}

// JoinRoom adds the user to the room and subscribes their connections.
// Other members receive a "joined" presence update. Joining twice is a no-op
// that returns true.
func (rr *RoomRegistry) JoinRoom(userID, roomID string) bool {
	rr.mu.Lock()
	rm, ok := rr.rooms[roomID]
	if !ok {
		rr.mu.Unlock()
		return false
	}
	if _, member := rm.memberSet[userID]; member {
		rr.mu.Unlock()
		return true
	}
	rm.memberSet[userID] = struct{}{}
	rm.members = append(rm.members, userID)
	set, ok := rr.userRooms[userID]
	if !ok {
		set = make(map[string]struct{})
		rr.userRooms[userID] = set
	}
	set[roomID] = struct{}{}
	rr.mu.Unlock()

	for _, c := range rr.conns.UserConnections(userID) {
		c.subscribe(roomID)
	}

	rr.SendToRoom(roomID, NewMessage(TypePresenceUpdate, map[string]interface{}{
		"user_id": userID,
		"action":  "joined",
		"room_id": roomID,
	}), userID)
	return true
}

// LeaveRoom removes the user from the room and unsubscribes their
// connections. Remaining members receive a "left" presence update. A
// non-persistent room is deleted when its last member leaves.
func (rr *RoomRegistry) LeaveRoom(userID, roomID string) bool {
	rr.mu.Lock()
	rm, ok := rr.rooms[roomID]
	if !ok {
		rr.mu.Unlock()
		return false
	}
	if _, member := rm.memberSet[userID]; !member {
		rr.mu.Unlock()
		return false
	}
	rm.removeMember(userID)
	rr.dropUserRoomLocked(userID, roomID)
	remaining := make([]string, len(rm.members))
	copy(remaining, rm.members)
	deleted := false
	if len(rm.members) == 0 && !rm.persistent() {
		delete(rr.rooms, roomID)
		deleted = true
	}
	count := len(rr.rooms)
	rr.mu.Unlock()

	rr.unsubscribeUser(userID, roomID)

	if len(remaining) > 0 {
		rr.fanOut(remaining, NewMessage(TypePresenceUpdate, map[string]interface{}{
			"user_id": userID,
			"action":  "left",
			"room_id": roomID,
		}), userID)
	}
	if deleted {
		metrics.Rooms.Set(float64(count))
		logging.Debug().Str("room_id", roomID).Msg("empty room removed")
	}
	return true
}

// SendToRoom fans msg out to every member except excludeUser, without
// offline queueing. It returns the number of members reached.
func (rr *RoomRegistry) SendToRoom(roomID string, msg Message, excludeUser string) int {
	rr.mu.RLock()
	rm, ok := rr.rooms[roomID]
	if !ok {
		rr.mu.RUnlock()
		return 0
	}
	members := make([]string, len(rm.members))
	copy(members, rm.members)
	rr.mu.RUnlock()

	return rr.fanOut(members, msg, excludeUser)
}

func (rr *RoomRegistry) fanOut(members []string, msg Message, excludeUser string) int {
	data, err := json.Marshal(msg.stamped(rr.now()))
	if err != nil {
		logging.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to encode room message")
		return 0
	}
	delivered := 0
	for _, uid := range members {
		if uid == excludeUser {
			continue
		}
		if rr.conns.sendEncoded(uid, data) {
			delivered++
		}
	}
	return delivered
}

// DeleteRoom notifies all members with room_deleted and removes the room.
func (rr *RoomRegistry) DeleteRoom(roomID string) bool {
	rr.mu.Lock()
	rm, ok := rr.rooms[roomID]
	if !ok {
		rr.mu.Unlock()
		return false
	}
	members := make([]string, len(rm.members))
	copy(members, rm.members)
	rr.mu.Unlock()

	rr.fanOut(members, NewMessage(TypeRoomDeleted, map[string]interface{}{"room_id": roomID}), "")

	rr.mu.Lock()
	// The room may have been replaced while members were notified.
	if cur, ok := rr.rooms[roomID]; ok && cur == rm {
		delete(rr.rooms, roomID)
		for _, uid := range rm.members {
			rr.dropUserRoomLocked(uid, roomID)
		}
	}
	count := len(rr.rooms)
	rr.mu.Unlock()

	for _, uid := range members {
		rr.unsubscribeUser(uid, roomID)
	}
	metrics.Rooms.Set(float64(count))
	return true
}

// GetRoom returns a snapshot of the room, or nil if it does not exist.
func (rr *RoomRegistry) GetRoom(roomID string) *Room {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	rm, ok := rr.rooms[roomID]
	if !ok {
		return nil
	}
	snap := rm.snapshot()
	return &snap
}

// RoomMembers returns the room's members in join order.
func (rr *RoomRegistry) RoomMembers(roomID string) []string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	rm, ok := rr.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, len(rm.members))
	copy(out, rm.members)
	return out
}

// IsMember reports whether the user belongs to the room.
func (rr *RoomRegistry) IsMember(userID, roomID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	_, ok := rr.userRooms[userID][roomID]
	return ok
}

// UserRooms returns the rooms the user belongs to, sorted.
func (rr *RoomRegistry) UserRooms(userID string) []string {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	set := rr.userRooms[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RoomCount returns the number of live rooms.
func (rr *RoomRegistry) RoomCount() int {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return len(rr.rooms)
}

// subscribeConnection subscribes a new connection to every room its user belongs to.
func (rr *RoomRegistry) subscribeConnection(conn *Connection) {
	for _, id := range rr.UserRooms(conn.userID) {
		conn.subscribe(id)
	}
}

func (rr *RoomRegistry) unsubscribeUser(userID, roomID string) {
	for _, c := range rr.conns.UserConnections(userID) {
		c.unsubscribe(roomID)
	}
}

func (rr *RoomRegistry) dropUserRoomLocked(userID, roomID string) {
	if set, ok := rr.userRooms[userID]; ok {
		delete(set, roomID)
		if len(set) == 0 {
			delete(rr.userRooms, userID)
		}
	}
}
