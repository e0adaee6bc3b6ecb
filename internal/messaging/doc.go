// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package messaging provides one-to-one direct messages over the shared
// realtime connection manager.
//
// Messages are queued for offline recipients and delivered on reconnect.
// Typing indicators and read receipts are transient and dropped when the
// other participant is offline. History is kept in memory per conversation
// and bounded.
package messaging
