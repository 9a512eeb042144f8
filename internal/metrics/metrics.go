package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for edit resolution.
type Metrics struct {
	// Group lookups by query mode (regex, prefix, id) and result
	GroupLookups *prometheus.CounterVec

	// Lookups suppressed by request-level dedup
	LookupsDeduplicated prometheus.Counter

	// Resolution outcomes: ready, needs_input, or the error category
	Resolutions *prometheus.CounterVec

	ResolveLatency prometheus.Histogram
}

// New registers the resolution metrics with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		GroupLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "editgate_group_lookups_total",
			Help: "Group lookups issued by query mode and result",
		}, []string{"mode", "result"}),

		LookupsDeduplicated: factory.NewCounter(prometheus.CounterOpts{
			Name: "editgate_group_lookups_deduplicated_total",
			Help: "Group lookups answered from the per-resolution memo",
		}),

		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "editgate_resolutions_total",
			Help: "Edit resolutions by outcome",
		}, []string{"outcome"}),

		ResolveLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "editgate_resolve_duration_seconds",
			Help:    "Duration of a full edit resolution including group lookups",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveLookup records a group lookup by mode.
func (m *Metrics) ObserveLookup(mode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.GroupLookups.WithLabelValues(mode, result).Inc()
}

// IncrementDeduplicated records a lookup served without a remote call.
func (m *Metrics) IncrementDeduplicated() {
	if m != nil {
		m.LookupsDeduplicated.Inc()
	}
}

// IncrementOutcome records a resolution outcome.
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.Resolutions.WithLabelValues(outcome).Inc()
	}
}

// ObserveResolveLatency records the total resolution duration.
func (m *Metrics) ObserveResolveLatency(d time.Duration) {
	if m != nil {
		m.ResolveLatency.Observe(d.Seconds())
	}
}
