// Package metrics bündelt die Prometheus-Kollektoren der Ingest-Pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics enthält alle Kollektoren. Registriert wird am übergebenen Registerer,
// damit Tests eigene Registries verwenden können.
type Metrics struct {
	Items            *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	BatchSize        prometheus.Histogram
	BatchDuration    prometheus.Histogram
	CacheResets      prometheus.Counter
	AdmissionPauses  prometheus.Counter
	Runs             *prometheus.CounterVec
	DedupGroups      *prometheus.CounterVec
	DedupRowsDeleted prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_items_total",
			Help: "Processed items per stage and outcome.",
		}, []string{"stage", "outcome"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Current number of items waiting in a stage queue.",
		}, []string{"queue"}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "import_batch_size",
			Help:    "Number of records per import batch.",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "import_batch_duration_seconds",
			Help:    "Duration of one import batch.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "entity_cache_resets_total",
			Help: "Wholesale clears of the entity resolution cache.",
		}),
		AdmissionPauses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "import_admission_pauses_total",
			Help: "Times an import worker paused because the store was exhausted.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Finished pipeline runs by result.",
		}, []string{"result"}),
		DedupGroups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dedup_groups_total",
			Help: "Dedup groups by outcome.",
		}, []string{"outcome"}),
		DedupRowsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dedup_rows_deleted_total",
			Help: "Non-canonical works deleted by the dedup pass.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Items, m.QueueDepth, m.BatchSize, m.BatchDuration, m.CacheResets,
			m.AdmissionPauses, m.Runs, m.DedupGroups, m.DedupRowsDeleted)
	}
	return m
}

// ItemDone zählt ein abgeschlossenes Element einer Stufe.
func (m *Metrics) ItemDone(stage string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.Items.WithLabelValues(stage, outcome).Inc()
}

// GroupMerged implementiert services.DedupObserver.
func (m *Metrics) GroupMerged(deleted int) {
	m.DedupGroups.WithLabelValues("merged").Inc()
	m.DedupRowsDeleted.Add(float64(deleted))
}

// GroupFailed implementiert services.DedupObserver.
func (m *Metrics) GroupFailed() {
	m.DedupGroups.WithLabelValues("failed").Inc()
}
