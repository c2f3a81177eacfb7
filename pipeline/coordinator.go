package pipeline

import (
	"context"
	"sync"
	"time"

	"paper-kb/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options dimensionieren die drei Stufen.
type Options struct {
	ExtractWorkers   int
	StructureWorkers int
	ImportWorkers    int
	QueueCapacity    int
	ExtractTimeout   time.Duration
	StructureTimeout time.Duration
	DequeuePoll      time.Duration
	JoinTimeout      time.Duration
}

// Coordinator besitzt die drei Warteschlangen, startet und stoppt die
// Worker-Pools und fasst die Statistik zusammen. Ein Coordinator führt
// höchstens einen Lauf gleichzeitig aus.
type Coordinator struct {
	opts        Options
	extraction  *ExtractionStage
	structuring *StructuringStage
	importing   *ImportStage
	metrics     *metrics.Metrics
	logger      *zap.Logger
	progress    func(Snapshot)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

func NewCoordinator(opts Options, extraction *ExtractionStage, structuring *StructuringStage, importing *ImportStage, m *metrics.Metrics, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		opts:        opts,
		extraction:  extraction,
		structuring: structuring,
		importing:   importing,
		metrics:     m,
		logger:      logger,
	}
}

// OnProgress setzt die Funktion für den asynchronen Statistik-Flush.
func (c *Coordinator) OnProgress(fn func(Snapshot)) {
	c.progress = fn
}

// Stop bricht den laufenden Lauf ab: wartende Elemente werden nicht mehr
// begonnen, laufende Aufrufe bleiben unberührt.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
}

// stageConfig beschreibt eine Stufe mit Ein- und Ausgangswarteschlange.
type stageConfig[In, Out any] struct {
	name    string
	workers int
	timeout time.Duration
	poll    time.Duration
	in      *Queue[In]
	out     *Queue[Out]
	handle  Handler[In, Out]
	id      func(In) string
	// finish wird für jedes Element aufgerufen, das die Pipeline hier verlässt.
	finish func(item string, err error)
	// forwarded zählt den Erfolg der Stufe.
	forwarded func(item string)
	logger    *zap.Logger
}

func runStage[In, Out any](ctx context.Context, cfg stageConfig[In, Out]) *workerGroup {
	g := newWorkerGroup(cfg.name)
	for i := 0; i < cfg.workers; i++ {
		worker := i
		g.spawn(worker, func() { runWorker(ctx, cfg, worker) })
	}
	return g
}

func runWorker[In, Out any](ctx context.Context, cfg stageConfig[In, Out], worker int) {
	log := cfg.logger.With(zap.String("stage", cfg.name), zap.Int("worker", worker))
	for {
		item, res := cfg.in.Get(ctx, cfg.poll)
		switch res {
		case Stopped, Canceled:
			return
		case TimedOut:
			continue
		}

		id := cfg.id(item)
		out, err := callWithTimeout(ctx, cfg.timeout, cfg.handle, worker, item)
		if err != nil {
			log.Warn("Item failed", zap.String("item", id), zap.Error(err))
			cfg.finish(id, err)
			continue
		}
		cfg.forwarded(id)
		if err := cfg.out.Put(ctx, out); err != nil {
			log.Warn("Handoff aborted", zap.String("item", id), zap.Error(err))
			cfg.finish("", nil)
		}
	}
}

// Run führt alle sources durch die Pipeline und liefert den Bericht. Der
// Bericht ist auch nach einem Abbruch vollständig.
func (c *Coordinator) Run(ctx context.Context, sources []string) (*Report, error) {
	return c.RunWithID(ctx, uuid.NewString(), sources)
}

// RunWithID wie Run, mit vorgegebener Lauf-ID.
func (c *Coordinator) RunWithID(ctx context.Context, runID string, sources []string) (*Report, error) {
	started := time.Now()
	log := c.logger.With(zap.String("run_id", runID))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.mu.Lock()
	c.cancel = cancel
	if c.stopped {
		cancel()
	}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
	}()

	stats, err := NewStats(c.progress, c.metrics)
	if err != nil {
		return nil, err
	}
	defer stats.Close()

	extractQ := NewQueue[string](StageExtract, c.opts.QueueCapacity)
	structureQ := NewQueue[Artifact](StageStructure, c.opts.QueueCapacity)
	importQ := NewQueue[Structured](StageImport, c.opts.QueueCapacity)
	if c.metrics != nil {
		extractQ.WithGauge(c.metrics.QueueDepth.WithLabelValues(StageExtract))
		structureQ.WithGauge(c.metrics.QueueDepth.WithLabelValues(StageStructure))
		importQ.WithGauge(c.metrics.QueueDepth.WithLabelValues(StageImport))
	}

	track := newTracker()
	// leaves schließt ein Element ab; item == "" heißt: ohne Zählung verworfen.
	leaves := func(stage string) func(string, error) {
		return func(item string, err error) {
			if item != "" {
				stats.Record(stage, item, err)
			}
			track.done()
		}
	}
	succeeded := func(stage string) func(string) {
		return func(item string) { stats.Record(stage, item, nil) }
	}

	extractGroup := runStage(runCtx, stageConfig[string, Artifact]{
		name:      StageExtract,
		workers:   c.opts.ExtractWorkers,
		timeout:   c.opts.ExtractTimeout,
		poll:      c.opts.DequeuePoll,
		in:        extractQ,
		out:       structureQ,
		handle:    c.extraction.Handle,
		id:        func(s string) string { return s },
		finish:    leaves(StageExtract),
		forwarded: succeeded(StageExtract),
		logger:    log,
	})
	structureGroup := runStage(runCtx, stageConfig[Artifact, Structured]{
		name:      StageStructure,
		workers:   c.opts.StructureWorkers,
		timeout:   c.opts.StructureTimeout,
		poll:      c.opts.DequeuePoll,
		in:        structureQ,
		out:       importQ,
		handle:    c.structuring.Handle,
		id:        func(a Artifact) string { return a.Source },
		finish:    leaves(StageStructure),
		forwarded: succeeded(StageStructure),
		logger:    log,
	})

	importGroup := newWorkerGroup(StageImport)
	importDone := leaves(StageImport)
	for i := 0; i < c.opts.ImportWorkers; i++ {
		worker := i
		importGroup.spawn(worker, func() {
			c.importing.run(runCtx, worker, importQ, c.opts.DequeuePoll, func(s Structured, err error) {
				importDone(s.Source, err)
			})
		})
	}

	log.Info("Pipeline started",
		zap.Int("sources", len(sources)),
		zap.Int("extract_workers", c.opts.ExtractWorkers),
		zap.Int("structure_workers", c.opts.StructureWorkers),
		zap.Int("import_workers", c.opts.ImportWorkers))

	submitted := 0
	for _, src := range sources {
		track.add(1)
		if err := extractQ.Put(runCtx, src); err != nil {
			track.done()
			log.Warn("Submission aborted", zap.Int("submitted", submitted), zap.Error(err))
			break
		}
		submitted++
	}
	track.seal()

	aborted := track.wait(runCtx) != nil
	if aborted {
		log.Warn("Pipeline aborted", zap.Int("pending", track.pending()))
	}

	var stragglers []string
	stragglers = append(stragglers, shutdownStage(c, extractQ, extractGroup, c.opts.ExtractWorkers, aborted)...)
	stragglers = append(stragglers, shutdownStage(c, structureQ, structureGroup, c.opts.StructureWorkers, aborted)...)
	stragglers = append(stragglers, shutdownStage(c, importQ, importGroup, c.opts.ImportWorkers, aborted)...)
	for _, name := range stragglers {
		log.Warn("Worker did not stop in time", zap.String("worker", name))
	}

	report := buildReport(runID, started, time.Now(), submitted, stats.Snapshot(), stats.Failures())
	report.Stragglers = stragglers
	report.Aborted = aborted
	if c.metrics != nil {
		result := "ok"
		if aborted {
			result = "aborted"
		} else if !report.Succeeded() {
			result = "failed"
		}
		c.metrics.Runs.WithLabelValues(result).Inc()
	}

	log.Info("Pipeline finished",
		zap.Int("submitted", report.Submitted),
		zap.Int("extracted_ok", report.Extracted.OK),
		zap.Int("extracted_failed", report.Extracted.Failed),
		zap.Int("structured_ok", report.Structured.OK),
		zap.Int("structured_failed", report.Structured.Failed),
		zap.Int("imported_ok", report.Imported.OK),
		zap.Int("imported_failed", report.Imported.Failed),
		zap.Float64("duration_seconds", report.DurationSeconds),
		zap.Float64("throughput_per_second", report.ThroughputPerSecond))
	return report, nil
}

// shutdownStage reiht einen Sentinel pro Worker ein und wartet begrenzt auf
// deren Ende. Nach einem Abbruch beenden sich die Worker über den Kontext.
func shutdownStage[T any](c *Coordinator, q *Queue[T], g *workerGroup, workers int, aborted bool) []string {
	if !aborted {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.JoinTimeout)
		if err := q.Stop(ctx, workers); err != nil {
			c.logger.Warn("Failed to enqueue sentinels", zap.String("queue", q.Name()), zap.Error(err))
		}
		cancel()
	}
	return g.join(c.opts.JoinTimeout)
}
