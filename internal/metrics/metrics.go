// dopamine.watch - Realtime Collaboration Service
// Copyright 2026 The dopamine.watch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection Metrics
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Current number of open realtime connections",
		},
	)

	UniqueUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_unique_users",
			Help: "Current number of users with at least one open connection",
		},
	)

	Rooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_rooms",
			Help: "Current number of live rooms",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_messages_sent_total",
			Help: "Total number of frames enqueued to connections",
		},
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_received_total",
			Help: "Total number of inbound frames by type",
		},
		[]string{"type"},
	)

	SendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_send_failures_total",
			Help: "Total number of failed sends that marked a connection disconnected",
		},
	)

	ConnectionEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connection_evictions_total",
			Help: "Total number of connections closed by the server",
		},
		[]string{"reason"}, // "cap", "stale", "shutdown"
	)

	OfflineQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_offline_queued_total",
			Help: "Total number of messages queued for offline users",
		},
	)

	OfflineDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_offline_dropped_total",
			Help: "Total number of queued messages dropped because the queue was full",
		},
	)

	// Watch Party Metrics
	ActiveParties = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchparty_active",
			Help: "Current number of live watch parties",
		},
	)

	PartyEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchparty_events_total",
			Help: "Total number of watch party events applied",
		},
		[]string{"event"},
	)

	DesyncCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "watchparty_desync_corrections_total",
			Help: "Total number of corrective seeks sent to drifting members",
		},
	)

	// Storage Metrics
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of party repository operations",
		},
		[]string{"op", "result"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight HTTP API requests",
		},
	)
)

// RecordReceived counts one inbound frame of the given type.
func RecordReceived(msgType string) {
	MessagesReceived.WithLabelValues(msgType).Inc()
}

// RecordEviction counts a server-initiated close.
func RecordEviction(reason string) {
	ConnectionEvictions.WithLabelValues(reason).Inc()
}

// RecordPartyEvent counts an applied watch party event.
func RecordPartyEvent(event string) {
	PartyEvents.WithLabelValues(event).Inc()
}

// RecordStoreOperation counts a repository operation by outcome.
func RecordStoreOperation(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	StoreOperations.WithLabelValues(op, result).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// UpdateRealtimeGauges sets the connection, user and room gauges in one call.
func UpdateRealtimeGauges(connections, users, rooms int) {
	Connections.Set(float64(connections))
	UniqueUsers.Set(float64(users))
	Rooms.Set(float64(rooms))
}
