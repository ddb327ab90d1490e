package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shiftrecon"

// Metrics holds the reconciliation counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	AnalysesTotal       *prometheus.CounterVec
	AnalysisDuration    prometheus.Histogram
	AnalysisFlags       *prometheus.GaugeVec
	UnknownUnits        *prometheus.CounterVec
	UnclassifiedItems   prometheus.Counter
	POSRequests         *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	HTTPRequestsTotal   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Shift analyses run, by outcome",
		},
		[]string{"outcome"},
	)

	m.AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of one shift analysis run",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	m.AnalysisFlags = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "analysis_flags",
			Help:      "Flag count of the latest analysis per shift date",
		},
		[]string{"shift_date"},
	)

	m.UnknownUnits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_unit_total",
			Help:      "Quantities normalised with an unrecognised unit",
		},
		[]string{"unit"},
	)

	m.UnclassifiedItems = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unclassified_items_total",
			Help:      "Sold line items matching neither drink nor burger rules",
		},
	)

	m.POSRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pos_requests_total",
			Help:      "POS API requests, by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	registry.MustRegister(
		m.AnalysesTotal,
		m.AnalysisDuration,
		m.AnalysisFlags,
		m.UnknownUnits,
		m.UnclassifiedItems,
		m.POSRequests,
		m.CircuitBreakerState,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordAnalysis(shiftDate string, flags int, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.AnalysesTotal.WithLabelValues(outcome).Inc()
	m.AnalysisDuration.Observe(duration.Seconds())
	if err == nil {
		m.AnalysisFlags.WithLabelValues(shiftDate).Set(float64(flags))
	}
}

// ObserveUnknownUnit satisfies units.Observer.
func (m *Metrics) ObserveUnknownUnit(unit string) {
	if m == nil {
		return
	}
	m.UnknownUnits.WithLabelValues(unit).Inc()
}

func (m *Metrics) RecordUnclassified(count int) {
	if m == nil || count < 1 {
		return
	}
	m.UnclassifiedItems.Add(float64(count))
}

func (m *Metrics) RecordPOSRequest(endpoint string, status string) {
	if m == nil {
		return
	}
	m.POSRequests.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) RecordHTTPRequest(method string, path string, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}
