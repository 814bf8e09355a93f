// Package metrics exposes Prometheus collectors for sync activity.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "budgetkeeper"

// Metrics groups the collectors.
type Metrics struct {
	syncs        *prometheus.CounterVec
	syncDuration prometheus.Histogram
	lastSync     prometheus.Gauge
	records      *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		syncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_total",
			Help:      "Sync attempts by outcome.",
		}, []string{"result"}),
		syncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of file based sync attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastSync: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sync_timestamp_seconds",
			Help:      "Unix time of the last successful sync.",
		}),
		records: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_records_total",
			Help:      "Records written by merges, by entity and action.",
		}, []string{"entity", "action"}),
	}
}

// ObserveSync records one sync attempt.
func (m *Metrics) ObserveSync(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	label := "failure"
	if ok {
		label = "success"
	}
	m.syncs.WithLabelValues(label).Inc()
	m.syncDuration.Observe(took.Seconds())
}

// SetLastSync stores the time of the last successful sync.
func (m *Metrics) SetLastSync(at time.Time) {
	if m == nil {
		return
	}
	m.lastSync.Set(float64(at.Unix()))
}

// AddMerged counts records created and updated for entity.
func (m *Metrics) AddMerged(entity string, created, updated int) {
	if m == nil {
		return
	}
	if created > 0 {
		m.records.WithLabelValues(entity, "created").Add(float64(created))
	}
	if updated > 0 {
		m.records.WithLabelValues(entity, "updated").Add(float64(updated))
	}
}
