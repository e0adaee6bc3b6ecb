// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package watchparty implements synchronized group viewing on top of the
realtime connection manager.

Each party is backed by a room of kind "watch_party" whose ID equals the
party ID. The Engine is the single authority for playback: clients send
play, pause and seek intents as party_sync frames and receive the resulting
authoritative state, never applying their own change locally first.

# Playback Clock

While a party is playing, the effective position is derived rather than
stored:

	position = current_position + (now - play_started_at)

clamped to [0, content_duration]. Pause folds the elapsed time into
current_position. Members periodically report their local position; when
the drift exceeds the desync threshold a corrective seek is sent to that
member only.

# Membership

A user belongs to at most one party. Joining or creating another party
leaves the current one first. When the host leaves, the earliest remaining
member becomes host; when the last member leaves, the party ends.

# Persistence

Engine state lives in memory. A Repository receives a write-through copy of
every mutation; see internal/store for the Badger implementation.
*/
package watchparty
