// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package main is the entry point for the dopamine.watch realtime service.

The service terminates client WebSocket connections, keeps presence and room
membership, and runs synchronized watch parties and direct messaging on top
of them.

# Application Architecture

	RootSupervisor ("dopamine-realtime")
	├── DataSupervisor ("data-layer")
	│   └── store GC (badger backend only)
	├── MessagingSupervisor ("messaging-layer")
	│   ├── heartbeat (ping every connection)
	│   └── cleanup (reap stale connections)
	└── APISupervisor ("api-layer")
	    └── HTTP server (/ws, REST, /metrics)

Component initialization order:

 1. Configuration: koanf defaults, optional config.yaml, environment
 2. Logging: zerolog
 3. Party store: memory (no persistence) or Badger behind a circuit breaker
 4. WebSocket manager
 5. Watch party engine and direct messaging, registered on the manager
 6. HTTP router
 7. Supervisor tree

# Configuration

Common environment variables:

	HTTP_PORT=8080
	JWT_SECRET=...              verify HS256 bearer tokens; unset trusts X-User-ID
	CORS_ORIGINS=https://app.dopamine.watch
	STORAGE_BACKEND=badger      default memory
	STORAGE_PATH=/data/parties
	PARTY_MAX_MEMBERS=10
	LOG_LEVEL=info

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP service closes every
WebSocket connection, shuts the listener down, and the party store is closed
last.
*/
package main
