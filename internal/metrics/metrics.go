package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Transitions      *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	Pushes           prometheus.Counter
	PushFailures     prometheus.Counter
	Recoveries       *prometheus.CounterVec
	Pongs            prometheus.Counter
	Connections      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "partysync_transitions_total", Help: "Playback state transitions"},
			[]string{"status"},
		),
		CommandsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "partysync_commands_rejected_total", Help: "Rejected host commands"},
			[]string{"reason"},
		),
		Pushes: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "partysync_push_deliveries_total", Help: "Messages pushed to members"},
		),
		PushFailures: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "partysync_push_failures_total", Help: "Failed pushes, each drops the member connection"},
		),
		Recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "partysync_recovery_requests_total", Help: "State snapshot lookups"},
			[]string{"exists"},
		),
		Pongs: prometheus.NewCounter(
			prometheus.CounterOpts{Name: "partysync_clock_pongs_total", Help: "Answered clock pings"},
		),
		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{Name: "partysync_connections", Help: "Websocket connections on this instance"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Transitions,
		m.CommandsRejected,
		m.Pushes,
		m.PushFailures,
		m.Recoveries,
		m.Pongs,
		m.Connections,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
