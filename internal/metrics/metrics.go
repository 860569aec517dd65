// Package metrics exposes relay counters in Prometheus format.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hkchat"

// Metrics holds the relay's collectors.
type Metrics struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	onlineUsers   prometheus.Gauge
	activeCalls   *prometheus.GaugeVec
	events        *prometheus.CounterVec
	emits         *prometheus.CounterVec
	drops         *prometheus.CounterVec
	panics        prometheus.Counter
	authFailures  prometheus.Counter
	typingExpired prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Authenticated Socket.IO connections.",
		}),
		onlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Users with at least one connection.",
		}),
		activeCalls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calls",
			Help:      "Calls known to the relay by phase.",
		}, []string{"phase"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Inbound events by name.",
		}, []string{"event"}),
		emits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emits_total",
			Help:      "Outbound socket emits by event name.",
		}, []string{"event"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Inbound events dropped before handling, by reason.",
		}, []string{"reason"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Recovered handler panics.",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Refused handshakes.",
		}),
		typingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "typing_expired_total",
			Help:      "Typing markers cleared by timeout.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.onlineUsers,
		m.activeCalls,
		m.events,
		m.emits,
		m.drops,
		m.panics,
		m.authFailures,
		m.typingExpired,
	)
	return m
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.connections.Set(float64(n))
	}
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m != nil {
		m.onlineUsers.Set(float64(n))
	}
}

func (m *Metrics) SetCalls(ringing, active int) {
	if m != nil {
		m.activeCalls.WithLabelValues("ringing").Set(float64(ringing))
		m.activeCalls.WithLabelValues("active").Set(float64(active))
	}
}

func (m *Metrics) EventReceived(event string) {
	if m != nil {
		m.events.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Emitted(event string, n int) {
	if m != nil && n > 0 {
		m.emits.WithLabelValues(event).Add(float64(n))
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.drops.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) HandlerPanic() {
	if m != nil {
		m.panics.Inc()
	}
}

func (m *Metrics) AuthFailure() {
	if m != nil {
		m.authFailures.Inc()
	}
}

func (m *Metrics) TypingExpired() {
	if m != nil {
		m.typingExpired.Inc()
	}
}
