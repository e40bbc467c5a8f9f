package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry so
// several servers (and tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	exchanges   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bytesSent   *prometheus.CounterVec
	activeConns prometheus.Gauge
	catalogSize prometheus.Gauge
}

// NewMetrics creates and registers the server collectors together with the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "romlink",
				Subsystem: "server",
				Name:      "exchanges_total",
				Help:      "Connections served, by opcode, transport and outcome.",
			},
			[]string{"opcode", "transport", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "romlink",
				Subsystem: "server",
				Name:      "exchange_duration_seconds",
				Help:      "Time from accept to close for one exchange.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"opcode"},
		),
		bytesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "romlink",
				Subsystem: "server",
				Name:      "response_bytes_total",
				Help:      "Response bytes written, by opcode.",
			},
			[]string{"opcode"},
		),
		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "romlink",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Exchanges currently in progress.",
		}),
		catalogSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "romlink",
			Subsystem: "catalog",
			Name:      "roms",
			Help:      "Entries in the served catalog.",
		}),
	}
	m.registry.MustRegister(
		m.exchanges,
		m.duration,
		m.bytesSent,
		m.activeConns,
		m.catalogSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observe(ex Exchange) {
	op := ex.Opcode.String()
	if !ex.Opcode.Valid() {
		op = "unknown"
	}
	m.exchanges.WithLabelValues(op, ex.Transport, ex.Outcome()).Inc()
	m.duration.WithLabelValues(op).Observe(ex.Duration.Seconds())
	if ex.Bytes > 0 {
		m.bytesSent.WithLabelValues(op).Add(float64(ex.Bytes))
	}
}

func (m *Metrics) connectionOpened() { m.activeConns.Inc() }
func (m *Metrics) connectionClosed() { m.activeConns.Dec() }

func (m *Metrics) setCatalogSize(n int) { m.catalogSize.Set(float64(n)) }
