package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks pipeline throughput and routing outcomes.
type Metrics struct {
	decisions      *prometheus.CounterVec
	filingFailures prometheus.Counter
	confidence     prometheus.Histogram
}

// NewMetrics registers pipeline metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in the daemon, a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultd",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Routing decisions by action and source type.",
		}, []string{"action", "source"}),
		filingFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultd",
			Subsystem: "pipeline",
			Name:      "filing_failures_total",
			Help:      "Filing attempts rolled back due to storage failures.",
		}),
		confidence: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vaultd",
			Subsystem: "pipeline",
			Name:      "classification_confidence",
			Help:      "Distribution of classification confidence scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

func (m *Metrics) recordDecision(action, source string, confidence float64) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(action, source).Inc()
	m.confidence.Observe(confidence)
}

func (m *Metrics) recordFilingFailure() {
	if m == nil {
		return
	}
	m.filingFailures.Inc()
}
