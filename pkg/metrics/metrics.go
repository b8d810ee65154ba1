// Package metrics exports panel activity as Prometheus metrics.
//
// A Metrics value owns its registry. Feed it device events with Observe
// (usually through panel.Engine.Subscribe) and part tables with Update, then
// serve Handler on a scrape endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/fabpanel/pkg/panel"
)

const namespace = "fabpanel"

// Metrics holds the panel collectors.
type Metrics struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec // by kind
	jobs         *prometheus.CounterVec // by outcome: completed, aborted
	instructions prometheus.Counter
	retransmits  *prometheus.CounterVec // by transport
	parts        *prometheus.GaugeVec   // by role and state
	faulted      prometheus.Gauge
	roundTrip    *prometheus.HistogramVec // by transport
}

// New creates Metrics registered on a fresh registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Device and job events by kind",
		}, []string{"kind"}),

		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Print jobs that left their print head, by outcome",
		}, []string{"outcome"}),

		instructions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "instructions_acked_total",
			Help:      "Blueprint instructions acknowledged by print heads",
		}),

		retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retransmits_total",
			Help:      "Instructions resent after an acknowledgment timeout",
		}, []string{"transport"}),

		parts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parts",
			Help:      "Registered parts by role and state",
		}, []string{"role", "state"}),

		faulted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "parts_faulted",
			Help:      "Registered parts that are faulted or disconnected",
		}),

		roundTrip: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "benchmark",
			Name:      "round_trip_seconds",
			Help:      "Mean probe round trip of finished benchmarks",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"transport"}),
	}

	m.registry.MustRegister(
		m.events, m.jobs, m.instructions, m.retransmits, m.parts, m.faulted, m.roundTrip,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records one device event. Safe to pass to Engine.Subscribe.
func (m *Metrics) Observe(ev panel.Event) {
	m.events.WithLabelValues(ev.Kind.String()).Inc()

	switch ev.Kind {
	case panel.EventJobCompleted:
		m.jobs.WithLabelValues("completed").Inc()
	case panel.EventJobAborted:
		m.jobs.WithLabelValues("aborted").Inc()
	case panel.EventInstructionAcked:
		m.instructions.Inc()
	case panel.EventRetransmit:
		m.retransmits.WithLabelValues(ev.Transport.String()).Inc()
	case panel.EventBenchmarkFinished:
		if ev.Probes > 0 {
			m.roundTrip.WithLabelValues(ev.Transport.String()).Observe(ev.Elapsed.Seconds() / float64(ev.Probes))
		}
	}
}

// Update replaces the part gauges with the given table.
func (m *Metrics) Update(parts []panel.PartStatus) {
	m.parts.Reset()
	faulted := 0
	for _, p := range parts {
		m.parts.WithLabelValues(p.Role.String(), p.State.String()).Inc()
		if p.Faulted || !p.Connected {
			faulted++
		}
	}
	m.faulted.Set(float64(faulted))
}
