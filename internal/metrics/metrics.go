package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the request counters of one simulator process. Backends share
// them and are told apart by the backend label.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	OutcomesTotal   *prometheus.CounterVec
	ActiveRequests  *prometheus.GaugeVec
	registry        *prometheus.Registry
}

// New creates the collectors and registers them on reg. A nil reg gets a
// private registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mimic_requests_total",
				Help: "Total simulated requests",
			},
			[]string{"backend", "endpoint", "method", "status_code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mimic_request_duration_seconds",
				Help:    "Duration of simulated requests in seconds, delays included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "endpoint", "method", "status_code"},
		),
		OutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mimic_outcomes_total",
				Help: "Simulated requests by pipeline outcome",
			},
			[]string{"backend", "endpoint", "outcome"},
		),
		ActiveRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mimic_active_requests",
				Help: "Number of requests being processed",
			},
			[]string{"backend", "method"},
		),
		registry: reg,
	}

	for _, c := range []prometheus.Collector{m.RequestsTotal, m.RequestDuration, m.OutcomesTotal, m.ActiveRequests} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on registration errors.
func MustNew(reg *prometheus.Registry) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
