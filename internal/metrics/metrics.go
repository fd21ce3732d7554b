// Package metrics defines Prometheus metrics for the chat hub.
//
// Collectors live on a private registry so tests can build as many hubs as
// they like without duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the hub updates.
type Metrics struct {
	registry *prometheus.Registry

	// Connections is the number of open transport connections.
	Connections prometheus.Gauge
	// OnlineUsers is the size of the presence registry.
	OnlineUsers prometheus.Gauge
	// MessagesBroadcast counts persisted messages fanned out to a room.
	MessagesBroadcast prometheus.Counter
	// PersistenceFailures counts sends that failed in storage or timed out.
	PersistenceFailures prometheus.Counter
	// DeliveriesDropped counts events skipped because a connection was gone or its queue full.
	DeliveriesDropped prometheus.Counter
	// SignalsRelayed counts ephemeral signals by kind.
	SignalsRelayed *prometheus.CounterVec
	// EventsRateLimited counts inbound events dropped by the per-connection limiter.
	EventsRateLimited prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chathub_connections",
			Help: "Open WebSocket connections.",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chathub_online_users",
			Help: "Users with an active connection.",
		}),
		MessagesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_messages_broadcast_total",
			Help: "Persisted chat messages broadcast to a room.",
		}),
		PersistenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_persistence_failures_total",
			Help: "Inbound messages rejected because storage failed or timed out.",
		}),
		DeliveriesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_deliveries_dropped_total",
			Help: "Outbound events skipped for closed or saturated connections.",
		}),
		SignalsRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chathub_signals_relayed_total",
			Help: "Ephemeral signals relayed by kind.",
		}, []string{"kind"}),
		EventsRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chathub_events_rate_limited_total",
			Help: "Inbound events dropped by the per-connection rate limiter.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.OnlineUsers,
		m.MessagesBroadcast,
		m.PersistenceFailures,
		m.DeliveriesDropped,
		m.SignalsRelayed,
		m.EventsRateLimited,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
