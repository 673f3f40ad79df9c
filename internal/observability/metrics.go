package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animegram_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreTransitions counts transitions applied to viewer stores.
	StoreTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animegram_store_transitions_total",
		Help: "Total number of state transitions applied, by slice and operation",
	}, []string{"slice", "op"})

	// ActiveStores is the number of viewer stores currently held by the registry.
	ActiveStores = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animegram_active_stores",
		Help: "Number of viewer stores held in memory",
	})

	// FetchDuration records data-source fetch latency by operation and outcome.
	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animegram_fetch_duration_seconds",
		Help:    "Latency of orchestrated data-source fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	// DeliveredEvents counts events delivered to recipient stores.
	DeliveredEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animegram_delivered_events_total",
		Help: "Total number of chat messages and notifications delivered, by type and transport",
	}, []string{"type", "transport"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "animegram_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animegram_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)
