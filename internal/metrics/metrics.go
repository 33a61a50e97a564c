package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	paymentsCreated prometheus.Counter
	createFailures  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	publishes       *prometheus.CounterVec
	publishDuration prometheus.Histogram
	outboxRelayed   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		paymentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Payments accepted by CreatePayment.",
		}),
		createFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_create_failures_total",
			Help: "CreatePayment failures by the step that failed.",
		}, []string{"step"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payments_transitions_total",
			Help: "Applied status transitions by target status.",
		}, []string{"status"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "broker_publish_total",
			Help: "Broker publish attempts by result.",
		}, []string{"result"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "broker_publish_duration_seconds",
			Help:    "Time spent in a publish call, connection setup included.",
			Buckets: prometheus.DefBuckets,
		}),
		outboxRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "outbox_relayed_total",
			Help: "Events handled by the outbox relay by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.paymentsCreated,
		m.createFailures,
		m.transitions,
		m.publishes,
		m.publishDuration,
		m.outboxRelayed,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PaymentCreated() {
	if m == nil {
		return
	}
	m.paymentsCreated.Inc()
}

func (m *Metrics) CreateFailed(step string) {
	if m == nil {
		return
	}
	m.createFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) Transitioned(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) Published(err error, took time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.Observe(took.Seconds())
	m.publishes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Relayed(result string) {
	if m == nil {
		return
	}
	m.outboxRelayed.WithLabelValues(result).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
