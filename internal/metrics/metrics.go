// Package metrics exposes engine counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"feedguard/internal/sweeper"
)

const namespace = "feedguard"

// Metrics implements the recorder interfaces of the processor, observer,
// lifecycle and sweeper packages.
type Metrics struct {
	BatchesTotal    prometheus.Counter
	DroppedTotal    prometheus.Counter
	BatchItems      prometheus.Histogram
	BatchDuration   prometheus.Histogram
	HiddenTotal     *prometheus.CounterVec
	RegistryWaits   *prometheus.CounterVec
	MutationBatches *prometheus.CounterVec
	BindsTotal      prometheus.Counter
	RootMisses      prometheus.Counter
	SweptTotal      *prometheus.CounterVec
}

// New registers every collector on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "processor", Name: "batches_total",
			Help: "Batches that ran.",
		}),
		DroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "processor", Name: "batches_dropped_total",
			Help: "Batch triggers dropped by the throttle or the in-flight guard.",
		}),
		BatchItems: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "processor", Name: "batch_items",
			Help:    "Items classified per batch.",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "processor", Name: "batch_duration_seconds",
			Help:    "Wall time from batch start to completion, registry wait included.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		HiddenTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "processor", Name: "hidden_total",
			Help: "Containers hidden, by rule.",
		}, []string{"rule"}),
		RegistryWaits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "processor", Name: "registry_waits_total",
			Help: "Registry readiness outcomes.",
		}, []string{"outcome"}),
		MutationBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "observer", Name: "mutation_batches_total",
			Help: "Observed mutation batches, by relevance.",
		}, []string{"relevance"}),
		BindsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "binds_total",
			Help: "Root bindings established.",
		}),
		RootMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "lifecycle", Name: "root_misses_total",
			Help: "Root lookups that found nothing.",
		}),
		SweptTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sweeper", Name: "pruned_total",
			Help: "Entries pruned by the sweeper, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) BatchRun(items int, took time.Duration) {
	m.BatchesTotal.Inc()
	m.BatchItems.Observe(float64(items))
	m.BatchDuration.Observe(took.Seconds())
}

func (m *Metrics) BatchDropped() { m.DroppedTotal.Inc() }

func (m *Metrics) Hidden(rule string) { m.HiddenTotal.WithLabelValues(rule).Inc() }

func (m *Metrics) RegistryWait(ok bool) {
	outcome := "ready"
	if !ok {
		outcome = "failed"
	}
	m.RegistryWaits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) MutationBatch(meaningful bool) {
	label := "noise"
	if meaningful {
		label = "meaningful"
	}
	m.MutationBatches.WithLabelValues(label).Inc()
}

func (m *Metrics) Rebind() { m.BindsTotal.Inc() }

func (m *Metrics) RootMissing() { m.RootMisses.Inc() }

func (m *Metrics) Swept(r sweeper.Report) {
	m.SweptTotal.WithLabelValues("ids").Add(float64(r.ReleasedIDs))
	m.SweptTotal.WithLabelValues("keys").Add(float64(r.PrunedKeys))
	m.SweptTotal.WithLabelValues("logs").Add(float64(r.PrunedLogs))
}
