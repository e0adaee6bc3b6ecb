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

// Registry maps users to their live connections and holds per-user offline
// queues. It is the only owner of Connection values.
type Registry struct {
	maxPerUser int
	queueSize  int
	now        func() time.Time

	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[string][]*Connection // ordered oldest first
	queues map[string]*offlineQueue
}

// NewRegistry creates an empty connection registry.
func NewRegistry(maxPerUser, queueSize int, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		maxPerUser: maxPerUser,
		queueSize:  queueSize,
		now:        now,
		conns:      make(map[string]*Connection),
		byUser:     make(map[string][]*Connection),
		queues:     make(map[string]*offlineQueue),
	}
}

// add admits conn, evicting the user's oldest connections while at the cap.
// The greeting and any queued offline messages are enqueued under the lock so
// no concurrent send can overtake them. Evicted connections are returned for
// the caller to notify and close.
func (r *Registry) add(conn *Connection, greeting Message) (evicted []*Connection, flushed int) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byUser[conn.userID]
	for len(list) >= r.maxPerUser && len(list) > 0 {
		oldest := list[0]
		list = list[1:]
		delete(r.conns, oldest.id)
		evicted = append(evicted, oldest)
	}
	r.byUser[conn.userID] = append(list, conn)
	r.conns[conn.id] = conn
	conn.setState(StateConnected)

	r.deliverLocked(conn, greeting.stamped(now))

	if q, ok := r.queues[conn.userID]; ok {
		for _, m := range q.items {
			r.deliverLocked(conn, m)
		}
		flushed = q.len()
		delete(r.queues, conn.userID)
	}
	return evicted, flushed
}

// remove drops conn from the registry. removed is false if it was not registered.
func (r *Registry) remove(conn *Connection) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.id]; !ok {
		return false, len(r.byUser[conn.userID])
	}
	delete(r.conns, conn.id)

	list := r.byUser[conn.userID]
	for i, c := range list {
		if c == conn {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byUser, conn.userID)
	} else {
		r.byUser[conn.userID] = list
	}
	return true, len(list)
}

// Get returns a registered connection by ID.
func (r *Registry) Get(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// UserConnections returns the user's live connections, oldest first.
func (r *Registry) UserConnections(userID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.byUser[userID]
	out := make([]*Connection, len(list))
	copy(out, list)
	return out
}

// HasConnections reports whether the user has at least one live connection.
func (r *Registry) HasConnections(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// All returns every registered connection in creation order.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// ConnectionCount returns the number of registered connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// UserCount returns the number of users with at least one connection.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

// QueueLength returns the number of messages held for an offline user.
func (r *Registry) QueueLength(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if q, ok := r.queues[userID]; ok {
		return q.len()
	}
	return 0
}

// SendToConnection delivers msg to a single connection, stamping a server
// timestamp if absent. A failed send marks the connection disconnected.
func (r *Registry) SendToConnection(conn *Connection, msg Message) bool {
	data, err := json.Marshal(msg.stamped(r.now()))
	if err != nil {
		logging.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to encode message")
		return false
	}
	return r.deliver(conn, data)
}

// SendToUser delivers msg to every live connection of the user. It returns
// true if at least one connection accepted it. With no live connections the
// message is queued when queueIfOffline is set.
func (r *Registry) SendToUser(userID string, msg Message, queueIfOffline bool) bool {
	msg = msg.stamped(r.now())

	r.mu.Lock()
	list := r.byUser[userID]
	if len(list) == 0 {
		if queueIfOffline {
			r.queueLocked(userID, msg)
		}
		r.mu.Unlock()
		return false
	}
	conns := make([]*Connection, len(list))
	copy(conns, list)
	r.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", string(msg.Type)).Msg("failed to encode message")
		return false
	}
	return r.deliverAll(conns, data)
}

// sendEncoded delivers a pre-encoded frame to every live connection of the
// user without queueing. Used for room fan-out.
func (r *Registry) sendEncoded(userID string, data []byte) bool {
	return r.deliverAll(r.UserConnections(userID), data)
}

func (r *Registry) deliverAll(conns []*Connection, data []byte) bool {
	delivered := false
	for _, c := range conns {
		if r.deliver(c, data) {
			delivered = true
		}
	}
	return delivered
}

func (r *Registry) deliver(conn *Connection, data []byte) bool {
	if conn.enqueue(data) {
		metrics.MessagesSent.Inc()
		return true
	}
	if conn.State() != StateDisconnected {
		logging.Warn().
			Str("connection_id", conn.id).
			Str("user_id", conn.userID).
			Msg("send buffer full, marking connection disconnected")
	}
	metrics.SendFailures.Inc()
	conn.close()
	return false
}

// deliverLocked is deliver for callers holding r.mu.
func (r *Registry) deliverLocked(conn *Connection, m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		logging.Error().Err(err).Str("type", string(m.Type)).Msg("failed to encode message")
		return
	}
	r.deliver(conn, data)
}

func (r *Registry) queueLocked(userID string, m Message) {
	q, ok := r.queues[userID]
	if !ok {
		q = newOfflineQueue(r.queueSize)
		r.queues[userID] = q
	}
	if q.push(m) {
		metrics.OfflineDropped.Inc()
	}
	metrics.OfflineQueued.Inc()
}
