package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every Prometheus collector of the relay.
//
// Usage:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.FramesIn.WithLabelValues("join_room_request").Inc()
type Metrics struct {
	// ActiveConnections counts open live connections on this process.
	ActiveConnections prometheus.Gauge

	// AuthFailures counts handshakes that never reached Authenticated.
	// Labels: reason (invalid_token|timeout|protocol)
	AuthFailures *prometheus.CounterVec

	// FramesIn counts inbound frames by type, every unhandled type under "unknown".
	FramesIn *prometheus.CounterVec

	// EventsPublished counts envelopes handed to the bus.
	// Labels: type, backend (local|nats)
	EventsPublished *prometheus.CounterVec

	// EventsDelivered counts envelopes accepted by a connection queue.
	EventsDelivered prometheus.Counter

	// EventsDropped counts envelopes discarded by a full connection queue.
	EventsDropped prometheus.Counter

	// NotificationsCreated counts stored notifications.
	// Labels: kind (online|offline)
	NotificationsCreated *prometheus.CounterVec

	// NotificationsSuppressed counts offline notifications coalesced into an unread one.
	NotificationsSuppressed prometheus.Counter

	// CounterClamps counts decrements that would have pushed a counter below zero.
	CounterClamps prometheus.Counter

	// WorkerRestarts counts supervised worker restarts.
	// Labels: worker
	WorkerRestarts *prometheus.CounterVec

	// ProcessRSS and ProcessCPU are refreshed by the heartbeat worker.
	ProcessRSS prometheus.Gauge
	ProcessCPU prometheus.Gauge

	// RegistryGroups is the number of non-empty groups held locally.
	RegistryGroups prometheus.Gauge
}

// NewMetrics registers all collectors on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat_relay",
			Name:      "active_connections",
			Help:      "Number of open live connections",
		}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "auth_failures_total",
			Help:      "Connections closed before authentication",
		}, []string{"reason"}),
		FramesIn: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "frames_in_total",
			Help:      "Inbound frames by type",
		}, []string{"type"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "events_published_total",
			Help:      "Envelopes published on the bus",
		}, []string{"type", "backend"}),
		EventsDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "events_delivered_total",
			Help:      "Envelopes queued for a local connection",
		}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "events_dropped_total",
			Help:      "Envelopes dropped because a connection queue was full",
		}),
		NotificationsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "notifications_created_total",
			Help:      "Notifications stored",
		}, []string{"kind"}),
		NotificationsSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "notifications_suppressed_total",
			Help:      "Offline notifications coalesced into an unread one",
		}),
		CounterClamps: f.NewCounter(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "online_counter_clamps_total",
			Help:      "Decrements clamped at zero",
		}),
		WorkerRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "worker_restarts_total",
			Help:      "Supervised worker restarts",
		}, []string{"worker"}),
		ProcessRSS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat_relay",
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the relay process",
		}),
		ProcessCPU: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat_relay",
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the relay process",
		}),
		RegistryGroups: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat_relay",
			Name:      "registry_groups",
			Help:      "Non-empty broadcast groups held by this process",
		}),
	}
}
