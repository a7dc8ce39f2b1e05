// Package metrics счетчики prometheus для операций кредитования,
// HTTP-запросов и журнала.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gw_lending"

// Metrics набор метрик процесса
type Metrics struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	BalanceReads      *prometheus.CounterVec
	PublishFailures   prometheus.Counter
	UnrecordedBorrows prometheus.Gauge
	Requests          *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	JournaledEvents   *prometheus.CounterVec
}

// New создает метрики в собственном реестре
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Settled lending operations by kind and phase.",
		}, []string{"kind", "phase"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from submission to settlement.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		BalanceReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balance_reads_total",
			Help:      "Collateral balance reads by outcome (cached, fresh, stale, error).",
		}, []string{"result"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Operation events that could not be published.",
		}),
		UnrecordedBorrows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unrecorded_borrows",
			Help:      "Confirmed borrows waiting to be written to a position.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		JournaledEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_events_total",
			Help:      "Events consumed by the journal by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.Operations,
		m.OperationDuration,
		m.BalanceReads,
		m.PublishFailures,
		m.UnrecordedBorrows,
		m.Requests,
		m.RequestDuration,
		m.JournaledEvents,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry реестр для тестов и экспорта
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler http.Handler для /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
