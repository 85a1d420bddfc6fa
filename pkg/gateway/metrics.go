package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the pool. A nil *Metrics is valid and records
// nothing, so tests and library users who do not scrape can pass nil.
type Metrics struct {
	requestsTotal  *prometheus.CounterVec
	rotationsTotal prometheus.Counter
	refreshesTotal prometheus.Counter
	poolSize       prometheus.Gauge
}

// NewMetrics registers the pool metrics on the given registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dvote_gateway_requests_total",
			Help: "Requests issued through the pool by method and outcome.",
		}, []string{"method", "outcome"}),
		rotationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dvote_gateway_rotations_total",
			Help: "Times the pool demoted its active gateway.",
		}),
		refreshesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dvote_gateway_refreshes_total",
			Help: "Times the pool re-ran discovery to rebuild itself.",
		}),
		poolSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dvote_gateway_pool_size",
			Help: "Gateways currently held by the pool.",
		}),
	}
}

func (m *Metrics) observeRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) observeRotation() {
	if m == nil {
		return
	}
	m.rotationsTotal.Inc()
}

func (m *Metrics) observeRefresh() {
	if m == nil {
		return
	}
	m.refreshesTotal.Inc()
}

func (m *Metrics) setPoolSize(n int) {
	if m == nil {
		return
	}
	m.poolSize.Set(float64(n))
}
