// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ConnectionsActive prometheus.Gauge
	EventsDelivered   *prometheus.CounterVec
	EventsDropped     *prometheus.CounterVec
}

// New registers the gateway collectors on reg. Tests pass a fresh
// prometheus.NewRegistry to keep collectors isolated.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of live WebSocket connections.",
		}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_delivered_total",
			Help: "Events accepted into a connection's outbound buffer, by kind.",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_dropped_total",
			Help: "Events not delivered, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.ConnectionsActive, m.EventsDelivered, m.EventsDropped)
	return m
}

// Handler serves the Prometheus scrape endpoint for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
