package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CDC consume latency (milliseconds)
	CDCConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdc_consume_latency_ms",
			Help:    "CDC event consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// Routing decisions by path
	NotificationsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_routed_total",
			Help: "Total notifications routed, by path",
		},
		[]string{"path"}, // path: live, offline, dropped
	)

	// Live push outcomes at the gateway
	LiveDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "live_deliveries_total",
			Help: "Total live delivery attempts at the session gateway",
		},
		[]string{"result"}, // result: delivered, no_session, session_full
	)

	// Pending notifications drained on reconnect
	PendingDrained = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pending_notifications_drained_total",
			Help: "Total pending notifications returned by drains",
		},
	)

	// Currently attached WebSocket sessions
	OpenSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_open_sessions",
			Help: "Number of WebSocket sessions currently attached",
		},
	)

	// HTTP request latency (seconds)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

// RecordCDCConsumeLatency records end-to-end handling time of a CDC event.
func RecordCDCConsumeLatency(routingKey, queue string, duration time.Duration) {
	CDCConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// IncrementRouted counts a routing decision.
func IncrementRouted(path string) {
	NotificationsRouted.WithLabelValues(path).Inc()
}

// IncrementLiveDelivery counts a live push outcome.
func IncrementLiveDelivery(result string) {
	LiveDeliveries.WithLabelValues(result).Inc()
}

// RecordHTTPRequestDuration records request latency.
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
