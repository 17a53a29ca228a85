// Package promadapter exposes outbox relay metrics through Prometheus.
package promadapter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/seqra/outbox"
)

const (
	namespace = "outbox"
	subsystem = "relay"
)

// Metrics implements outbox.Metrics on Prometheus collectors.
type Metrics struct {
	cycleDuration prometheus.Histogram
	published     prometheus.Counter
	retried       prometheus.Counter
	deadLettered  prometheus.Counter
	conflicts     prometheus.Counter
	pending       prometheus.Gauge
}

var _ outbox.Metrics = (*Metrics)(nil)

// New registers the relay collectors with reg. Pass
// prometheus.DefaultRegisterer for the default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a poll-publish-update cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "published_total",
			Help:      "Records confirmed published.",
		}),
		retried: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "retried_total",
			Help:      "Failed publish attempts left for retry.",
		}),
		deadLettered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dead_lettered_total",
			Help:      "Records moved to the ignored state.",
		}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "conflicts_total",
			Help:      "Conditional updates lost to a concurrent instance.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_records",
			Help:      "Pending records awaiting publish.",
		}),
	}
}

func (m *Metrics) ObserveCycleDuration(d time.Duration) {
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) AddPublished(n int) {
	m.published.Add(float64(n))
}

func (m *Metrics) AddRetried(n int) {
	m.retried.Add(float64(n))
}

func (m *Metrics) AddDeadLettered(n int) {
	m.deadLettered.Add(float64(n))
}

func (m *Metrics) AddConflicts(n int) {
	m.conflicts.Add(float64(n))
}

func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}
