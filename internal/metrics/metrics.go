// Package metrics exposes Prometheus collectors for the session host.
//
// Every method is safe to call on a nil *Metrics, so components can be
// constructed without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit reasons used as the "reason" label.
const (
	ReasonNatural = "natural"
	ReasonClosed  = "closed"
)

// Metrics holds the collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsExited  *prometheus.CounterVec
	SpawnFailures   prometheus.Counter
	OutputBytes     prometheus.Counter
	MalformedBytes  prometheus.Counter
	WSClients       prometheus.Gauge
}

// New creates the collectors together with Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "microterm_sessions_active",
			Help: "Number of registered PTY sessions",
		}),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "microterm_sessions_created_total",
			Help: "Total number of PTY sessions created",
		}),
		SessionsExited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "microterm_sessions_exited_total",
			Help: "Total number of PTY sessions that ended, by reason",
		}, []string{"reason"}),
		SpawnFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "microterm_spawn_failures_total",
			Help: "Total number of failed shell spawns",
		}),
		OutputBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "microterm_output_bytes_total",
			Help: "Total bytes read from PTY masters",
		}),
		MalformedBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "microterm_malformed_bytes_total",
			Help: "Total bytes dropped as malformed UTF-8",
		}),
		WSClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "microterm_ws_clients",
			Help: "Number of connected websocket clients",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsExited.WithLabelValues(reason).Inc()
}

func (m *Metrics) SpawnFailed() {
	if m == nil {
		return
	}
	m.SpawnFailures.Inc()
}

func (m *Metrics) Output(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

func (m *Metrics) Malformed(n int) {
	if m == nil {
		return
	}
	m.MalformedBytes.Add(float64(n))
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.WSClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.WSClients.Dec()
}
