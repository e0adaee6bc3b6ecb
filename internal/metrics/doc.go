// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package metrics provides Prometheus instrumentation for the realtime service.

All collectors are registered on the default registry through promauto and
exposed at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

Connections:
  - realtime_connections: open connections
  - realtime_unique_users: users with at least one open connection
  - realtime_rooms: live rooms
  - realtime_messages_sent_total / realtime_messages_received_total{type}
  - realtime_send_failures_total
  - realtime_connection_evictions_total{reason}: cap, stale, shutdown
  - realtime_offline_queued_total / realtime_offline_dropped_total

Watch parties:
  - watchparty_active
  - watchparty_events_total{event}
  - watchparty_desync_corrections_total

Storage:
  - store_operations_total{op,result}
  - circuit_breaker_state{name} / circuit_breaker_requests_total{name,result}

HTTP:
  - api_requests_total{method,endpoint,status}
  - api_request_duration_seconds{method,endpoint}
  - api_active_requests
*/
package metrics
