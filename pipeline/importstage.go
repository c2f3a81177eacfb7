package pipeline

import (
	"context"
	"errors"
	"time"

	"paper-kb/apperr"
	"paper-kb/metrics"
	"paper-kb/models"

	"go.uber.org/zap"
)

// RecordImporter schreibt Datensätze in die Datenbank.
type RecordImporter interface {
	// ImportBatch liefert pro Datensatz nil oder den Fehler.
	ImportBatch(ctx context.Context, records []*models.StructuredRecord) []error
	Ping(ctx context.Context) error
}

// ImportStage sammelt strukturierte Datensätze zu Batches und importiert sie.
type ImportStage struct {
	Importer  RecordImporter
	BatchSize int
	Pause     time.Duration
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// run ist die Schleife eines Import-Workers. Ein Batch wird geschrieben, wenn er
// voll ist, wenn die Warteschlange leer bleibt oder beim Sentinel.
func (s *ImportStage) run(ctx context.Context, worker int, in *Queue[Structured], poll time.Duration, done func(Structured, error)) {
	log := s.Logger.With(zap.Int("worker", worker))
	size := s.BatchSize
	if size < 1 {
		size = 1
	}
	batch := make([]Structured, 0, size)
	exhausted := false

	flush := func() {
		if len(batch) == 0 {
			return
		}
		exhausted = s.flush(ctx, log, batch, exhausted, done)
		batch = batch[:0]
	}

	for {
		item, res := in.Get(ctx, poll)
		switch res {
		case Received:
			batch = append(batch, item)
			if len(batch) >= size {
				flush()
			}
		case TimedOut:
			flush()
		case Stopped, Canceled:
			flush()
			return
		}
	}
}

// flush schreibt einen Batch und meldet, ob die Datenbank erschöpft war.
func (s *ImportStage) flush(ctx context.Context, log *zap.Logger, batch []Structured, exhausted bool, done func(Structured, error)) bool {
	if exhausted {
		s.awaitStore(ctx, log)
	}

	records := make([]*models.StructuredRecord, len(batch))
	for i, b := range batch {
		records[i] = b.Record
	}

	start := time.Now()
	errs := s.Importer.ImportBatch(context.WithoutCancel(ctx), records)
	if s.Metrics != nil {
		s.Metrics.BatchSize.Observe(float64(len(batch)))
		s.Metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}

	failed := 0
	exhausted = false
	for i, b := range batch {
		var err error
		if i < len(errs) {
			err = errs[i]
		}
		if err != nil {
			failed++
			if errors.Is(err, apperr.ErrResourceExhausted) {
				exhausted = true
			}
			log.Warn("Import failed", zap.String("item", b.Source), zap.Error(err))
		}
		done(b, err)
	}
	log.Info("Batch imported",
		zap.Int("size", len(batch)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))
	return exhausted
}

// awaitStore pausiert die Annahme, bis die Datenbank wieder antwortet oder ctx endet.
func (s *ImportStage) awaitStore(ctx context.Context, log *zap.Logger) {
	for {
		err := s.Importer.Ping(ctx)
		if err == nil {
			return
		}
		if s.Metrics != nil {
			s.Metrics.AdmissionPauses.Inc()
		}
		log.Warn("Database exhausted, pausing import", zap.Duration("pause", s.Pause), zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.Pause):
		}
	}
}
