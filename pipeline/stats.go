package pipeline

import (
	"sync"

	"paper-kb/apperr"
	"paper-kb/metrics"

	"github.com/panjf2000/ants/v2"
)

// Stufennamen für Statistik, Logs und Metriken.
const (
	StageExtract   = "extract"
	StageStructure = "structure"
	StageImport    = "import"
)

// StageCounts zählt Erfolge und Fehlschläge einer Stufe.
type StageCounts struct {
	OK     int `json:"ok"`
	Failed int `json:"failed"`
}

// FailedItem beschreibt ein fehlgeschlagenes Element für den Bericht.
type FailedItem struct {
	Stage  string `json:"stage"`
	Item   string `json:"item"`
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Snapshot ist eine Kopie der Zähler zu einem Zeitpunkt.
type Snapshot struct {
	Extracted  StageCounts `json:"extracted"`
	Structured StageCounts `json:"structured"`
	Imported   StageCounts `json:"imported"`
}

// Stats sind die gemeinsamen Zähler aller Worker. Nach jeder Aktualisierung
// wird ein Flush asynchron eingereicht; läuft bereits einer, entfällt er.
type Stats struct {
	mu       sync.Mutex
	snapshot Snapshot
	failures []FailedItem

	flush   func(Snapshot)
	pool    *ants.Pool
	metrics *metrics.Metrics
}

// NewStats erstellt die Zähler. flush und m dürfen nil sein.
func NewStats(flush func(Snapshot), m *metrics.Metrics) (*Stats, error) {
	s := &Stats{flush: flush, metrics: m}
	if flush != nil {
		pool, err := ants.NewPool(1, ants.WithNonblocking(true))
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}
	return s, nil
}

// Record zählt ein abgeschlossenes Element einer Stufe.
func (s *Stats) Record(stage, item string, err error) {
	s.mu.Lock()
	counts := s.counts(stage)
	if err == nil {
		counts.OK++
	} else {
		counts.Failed++
		s.failures = append(s.failures, FailedItem{
			Stage:  stage,
			Item:   item,
			Kind:   apperr.Label(err),
			Reason: err.Error(),
		})
	}
	snap := s.snapshot
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ItemDone(stage, err == nil)
	}
	if s.pool != nil {
		// ErrPoolOverload: ein Flush läuft bereits
		_ = s.pool.Submit(func() { s.flush(snap) })
	}
}

func (s *Stats) counts(stage string) *StageCounts {
	switch stage {
	case StageExtract:
		return &s.snapshot.Extracted
	case StageStructure:
		return &s.snapshot.Structured
	default:
		return &s.snapshot.Imported
	}
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// Failures liefert eine Kopie der fehlgeschlagenen Elemente.
func (s *Stats) Failures() []FailedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FailedItem(nil), s.failures...)
}

// Close gibt den Flush-Pool frei.
func (s *Stats) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}
