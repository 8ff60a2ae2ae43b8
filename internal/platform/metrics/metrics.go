package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. It satisfies the
// lifecycle engine's Recorder interface.
type Metrics struct {
	EditsApplied  *prometheus.CounterVec
	EditsRejected *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		EditsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "brokergate_lifecycle_edits_applied_total",
			Help: "Accepted record edits, by entity kind",
		}, []string{"kind"}),
		EditsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "brokergate_lifecycle_edits_rejected_total",
			Help: "Rejected record edits, by entity kind and rejection reason",
		}, []string{"kind", "reason"}),
	}
}

// EditApplied counts one accepted edit.
func (m *Metrics) EditApplied(kind string) {
	m.EditsApplied.WithLabelValues(kind).Inc()
}

// EditRejected counts one rejected edit.
func (m *Metrics) EditRejected(kind, reason string) {
	m.EditsRejected.WithLabelValues(kind, reason).Inc()
}
