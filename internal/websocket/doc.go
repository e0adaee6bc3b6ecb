// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package websocket is the realtime connection layer: who is reachable, through
which links, in which rooms.

# Components

  - Registry: user -> live connections, per-user cap with oldest eviction,
    bounded offline queues flushed in FIFO order on reconnect
  - RoomRegistry: named multicast groups with per-user membership; empty
    rooms are removed unless their metadata sets "persistent"
  - Dispatcher: decodes inbound frames and routes them by MessageType to
    registered handlers; ping is answered directly
  - PresenceTracker: online/away/busy/offline records, delayed offline
    downgrade with OnUserOffline callbacks
  - Manager: the facade composing all of the above, constructed once and
    injected into features (watch parties, direct messages, HTTP API)

# Wire Format

Every frame is a JSON object with a "type". Outbound frames also carry a
server "timestamp":

	{"type":"party_sync","timestamp":"2026-01-02T15:04:05Z","event":"play","position":0}

Unknown inbound kinds are answered with

	{"type":"error","error":"Unknown message type: foo"}

# Concurrency

Each registry guards its own maps with a mutex and never calls into another
component while holding it, except RoomRegistry -> Registry reads. Sends are
non-blocking enqueues onto a connection's buffered channel drained by its
write pump; a full buffer marks the connection disconnected and never stalls
a fan-out. Lock order is feature (e.g. party) -> room registry -> connection
registry -> connection.

# Liveness

PingAll is called on the heartbeat interval and ReapStale on the cleanup
interval (see the supervisor services). A connection whose last pong or
client ping is older than HeartbeatInterval+HeartbeatTimeout is closed and
removed.
*/
package websocket
