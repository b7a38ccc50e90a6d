package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// HubConnectedClients tracks live connections by role (staff/viewer)
	HubConnectedClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Number of connected realtime clients by role",
		},
		[]string{"role"},
	)

	// HubBroadcastsTotal counts full-state broadcasts
	HubBroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Total full-state snapshot broadcasts",
		},
	)

	// HubSlowClientsEvicted counts clients dropped because their outbox was full
	HubSlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_evicted_total",
			Help: "Total clients evicted because they could not keep up with broadcasts",
		},
	)

	// HubInboxDepth tracks queued messages waiting for the hub goroutine
	HubInboxDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_inbox_depth",
			Help: "Messages waiting in the hub inbox",
		},
	)
)

// Queue Metrics
var (
	// QueueIntentsTotal counts mutation intents by type and outcome
	// (applied, unauthorized, unknown_group, invalid_counter, invalid_input, unsupported)
	QueueIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_intents_total",
			Help: "Mutation intents received by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// QueueTicketsIssued counts allocated tickets per group
	QueueTicketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_tickets_issued_total",
			Help: "Tickets allocated per group",
		},
		[]string{"group"},
	)
)

// Transport Metrics
var (
	// WebSocketHandshakesTotal counts handshakes by result (viewer, staff, rejected)
	WebSocketHandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_handshakes_total",
			Help: "Websocket handshakes by result",
		},
		[]string{"result"},
	)

	// WebSocketMalformedMessages counts inbound frames that were not a known intent
	WebSocketMalformedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_malformed_messages_total",
			Help: "Inbound websocket messages ignored as malformed",
		},
	)

	// AuthLoginAttemptsTotal counts PIN logins by result (ok, failed, rate_limited, bad_request)
	AuthLoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Staff PIN login attempts by result",
		},
		[]string{"result"},
	)
)
