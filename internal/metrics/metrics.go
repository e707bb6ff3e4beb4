// Package metrics exposes Prometheus collectors for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relaychat"

// Route kinds used as the "kind" label of messages_routed_total.
const (
	KindDirect    = "direct"
	KindBroadcast = "broadcast"
	KindGroup     = "group"
	KindNotice    = "notice"
)

// Metrics groups the collectors updated by the hub and the router. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	connections      prometheus.Gauge
	routed           *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	authFailures     *prometheus.CounterVec
	rejected         prometheus.Counter
}

// New registers the collectors on reg. sessions and groups are sampled at
// scrape time.
func New(reg prometheus.Registerer, sessions, groups func() int) *Metrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of authenticated sessions.",
	}, func() float64 { return float64(sessions()) })

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "groups_active",
		Help:      "Number of groups with at least one member.",
	}, func() float64 { return float64(groups()) })

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_open",
			Help:      "Open transport connections, authenticated or not.",
		}),
		routed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_routed_total",
			Help:      "Messages handed to the transport, by kind.",
		}, []string{"kind"}),
		deliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Deliveries that failed with a transport error.",
		}),
		authFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Rejected logins, by reason.",
		}, []string{"reason"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Commands answered with a rejection notice.",
		}),
	}
}

// ConnectionOpened counts a transport accepted by the hub.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ConnectionClosed counts a transport whose worker has finished.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

// Routed adds n successful deliveries of the given kind.
func (m *Metrics) Routed(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.routed.WithLabelValues(kind).Add(float64(n))
}

// DeliveryFailed counts one delivery that returned a transport error.
func (m *Metrics) DeliveryFailed() {
	if m == nil {
		return
	}
	m.deliveryFailures.Inc()
}

// AuthFailed counts a rejected login under reason.
func (m *Metrics) AuthFailed(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// CommandRejected counts a command answered with a rejection notice.
func (m *Metrics) CommandRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
