package enrich

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricEnrichmentRequestsTotal   = "enrichment_requests_total"
	MetricEnrichmentRequestDuration = "enrichment_request_duration_seconds"
	MetricEnrichmentCircuitOpen     = "enrichment_circuit_open"
)

// Request outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeTimeout     = "timeout"
	OutcomeCanceled    = "canceled"
	OutcomeNetwork     = "network_error"
	OutcomeBadStatus   = "bad_status"
	OutcomeMalformed   = "malformed"
	OutcomeCircuitOpen = "circuit_open"
)

// Metrics contains Prometheus metrics for analyzer calls.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	circuitOpen     prometheus.Gauge
}

// NewMetrics creates the collectors. They are not registered.
func NewMetrics() *Metrics {
	return &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEnrichmentRequestsTotal,
				Help: "Total number of content analyzer calls by outcome",
			},
			[]string{"outcome"},
		),
		requestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricEnrichmentRequestDuration,
				Help:    "Histogram of content analyzer call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		circuitOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricEnrichmentCircuitOpen,
				Help: "1 while the content analyzer circuit breaker is open",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requestsTotal, m.requestDuration, m.circuitOpen}
}

func (m *Metrics) observe(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(seconds)
}

func (m *Metrics) setCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.circuitOpen.Set(1)
	} else {
		m.circuitOpen.Set(0)
	}
}
