// Package observability collects the Prometheus metrics the relay exposes
// on /metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of instruments tracking relay health:
//   - connection churn (registrations, replacements, liveness evictions)
//   - frame traffic by kind, plus drops with a reason
//   - message persistence outcomes and delivery misses
//   - roster broadcast fan-out latency
type Metrics struct {
	// ActiveConnections is the number of registered websocket
	// connections right now.
	ActiveConnections prometheus.Gauge

	// RegistrationsTotal counts successful register frames, including
	// ones that replaced an older connection.
	RegistrationsTotal prometheus.Counter

	// ReplacedTotal counts connections superseded by a newer
	// registration for the same user.
	ReplacedTotal prometheus.Counter

	// EvictedTotal counts connections dropped by the liveness sweep.
	EvictedTotal prometheus.Counter

	// FramesReceived counts inbound frames by kind.
	FramesReceived *prometheus.CounterVec

	// FramesDropped counts inbound frames discarded before dispatch.
	// Labels: reason (malformed|unregistered|rejected)
	FramesDropped *prometheus.CounterVec

	// MessagesRelayed counts messages persisted and pushed onward.
	MessagesRelayed prometheus.Counter

	// MessageStoreErrors counts messages lost to persistence failures.
	MessageStoreErrors prometheus.Counter

	// SignalsForwarded counts call signaling frames by kind and whether
	// the counterpart was reachable.
	// Labels: kind, delivered (true|false)
	SignalsForwarded *prometheus.CounterVec

	// RosterDuration measures one roster broadcast end to end, profile
	// lookups included.
	RosterDuration prometheus.Histogram
}

// NewMetrics creates and registers all relay metrics. Pass
// prometheus.DefaultRegisterer in production; tests use their own
// registry so repeated construction does not panic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "votewatch_active_connections",
			Help: "Current number of registered websocket connections",
		}),

		RegistrationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "votewatch_registrations_total",
			Help: "Total number of accepted register frames",
		}),

		ReplacedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "votewatch_connections_replaced_total",
			Help: "Total number of connections superseded by a newer registration",
		}),

		EvictedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "votewatch_connections_evicted_total",
			Help: "Total number of connections dropped by the liveness sweep",
		}),

		FramesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votewatch_frames_received_total",
				Help: "Total number of inbound frames by kind",
			},
			[]string{"kind"},
		),

		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votewatch_frames_dropped_total",
				Help: "Total number of inbound frames discarded before dispatch",
			},
			[]string{"reason"},
		),

		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "votewatch_messages_relayed_total",
			Help: "Total number of messages persisted and relayed",
		}),

		MessageStoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "votewatch_message_store_errors_total",
			Help: "Total number of messages dropped because persistence failed",
		}),

		SignalsForwarded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "votewatch_signals_forwarded_total",
				Help: "Total number of call signaling frames by kind and delivery outcome",
			},
			[]string{"kind", "delivered"},
		),

		RosterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "votewatch_roster_broadcast_duration_seconds",
			Help:    "Duration of one roster broadcast including profile lookups",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

func (m *Metrics) ConnectionRegistered(replaced bool) {
	m.RegistrationsTotal.Inc()
	if replaced {
		m.ReplacedTotal.Inc()
	} else {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) ConnectionGone() {
	m.ActiveConnections.Dec()
}

func (m *Metrics) ConnectionEvicted() {
	m.EvictedTotal.Inc()
	m.ActiveConnections.Dec()
}

func (m *Metrics) FrameReceived(kind string) {
	m.FramesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) MessageRelayed() {
	m.MessagesRelayed.Inc()
}

func (m *Metrics) MessageStoreError() {
	m.MessageStoreErrors.Inc()
}

func (m *Metrics) SignalForwarded(kind string, delivered bool) {
	label := "false"
	if delivered {
		label = "true"
	}
	m.SignalsForwarded.WithLabelValues(kind, label).Inc()
}

func (m *Metrics) RosterBroadcast(d time.Duration) {
	m.RosterDuration.Observe(d.Seconds())
}
