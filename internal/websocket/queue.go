// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package websocket

// offlineQueue is a bounded FIFO of messages held for a user with no connections.
type offlineQueue struct {
	items    []Message
	capacity int
}

func newOfflineQueue(capacity int) *offlineQueue {
	return &offlineQueue{capacity: capacity}
}

// push appends m, evicting the oldest entry when full. It reports whether an
// entry was dropped.
func (q *offlineQueue) push(m Message) bool {
	dropped := false
	if len(q.items) >= q.capacity {
		copy(q.items, q.items[1:])
		q.items = q.items[:len(q.items)-1]
		dropped = true
	}
	q.items = append(q.items, m)
	return dropped
}

func (q *offlineQueue) len() int {
	return len(q.items)
}
