// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides write-through persistence for watch parties.
//
// BadgerPartyRepository keeps one JSON record per party plus one record per
// chat message, keyed so a prefix scan returns chat in timestamp order.
// BreakerRepository wraps any repository with a gobreaker circuit breaker;
// the engine logs and ignores the errors it returns.
//
// Stored parties are not reloaded into the engine on start.
package store
