package remote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts remote calls by operation and outcome and records their latency.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cafe",
		Subsystem: "remote",
		Name:      "requests_total",
		Help:      "Total number of requests sent to the café API.",
	}, []string{"operation", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cafe",
		Subsystem: "remote",
		Name:      "request_duration_seconds",
		Help:      "Latency of requests sent to the café API.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"operation"})
	if reg != nil {
		reg.MustRegister(requests, latency)
	}
	return &Metrics{Requests: requests, Latency: latency}
}

func (m *Metrics) observe(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(op, outcome).Inc()
	m.Latency.WithLabelValues(op).Observe(d.Seconds())
}
