package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments transition execution. A nil *Metrics is a no-op.
type Metrics struct {
	TransitionOutcome *prometheus.CounterVec
	TransitionLatency *prometheus.HistogramVec
	Listeners         prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TransitionOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Transition attempts by outcome",
		}, []string{"outcome"}),

		TransitionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workflow_transition_duration_seconds",
			Help:    "Duration of transition execution including the commit",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"outcome"}),

		Listeners: factory.NewCounter(prometheus.CounterOpts{
			Name: "workflow_transition_events_total",
			Help: "Transition events delivered to listeners",
		}),
	}
}

func (m *Metrics) ObserveTransition(outcome string, d time.Duration) {
	if m != nil {
		m.TransitionOutcome.WithLabelValues(outcome).Inc()
		m.TransitionLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementEvents() {
	if m != nil {
		m.Listeners.Inc()
	}
}
