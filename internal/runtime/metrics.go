package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the runtime's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	ActiveRuns   prometheus.Gauge
	ChatRuns     prometheus.Counter
	ChatRejected prometheus.Counter
}

// NewMetrics creates and registers the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "helper_active_runs",
			Help: "Agent runs currently in flight.",
		}),
		ChatRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helper_chat_runs_total",
			Help: "Chat agent runs started.",
		}),
		ChatRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helper_chat_runs_rejected_total",
			Help: "Chat runs rejected by the concurrency cap.",
		}),
	}
	registry.MustRegister(m.ActiveRuns, m.ChatRuns, m.ChatRejected)
	return m
}

// Gatherer exposes the private registry for the /metrics handler.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }
