// Package app verdrahtet Datenbank, Dienste und Pipeline für Server und CLI.
package app

import (
	"context"
	"fmt"

	"paper-kb/config"
	"paper-kb/metrics"
	"paper-kb/pipeline"
	"paper-kb/providers"
	"paper-kb/providers/llm"
	"paper-kb/providers/mineru"
	"paper-kb/providers/nvsmi"
	"paper-kb/services"
	"paper-kb/storage"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Collaborators sind die externen Werkzeuge der Pipeline.
type Collaborators struct {
	Extractor  providers.Extractor
	Structurer providers.Structurer
	Monitor    providers.DeviceMonitor
}

// DefaultCollaborators erstellt MinerU, den HTTP-Strukturierer und den GPU-Monitor.
func DefaultCollaborators(cfg *config.Config, logger *zap.Logger) Collaborators {
	return Collaborators{
		Extractor: mineru.NewExtractor(mineru.Options{
			Bin:     cfg.ExtractorBin,
			Backend: cfg.ExtractorBackend,
			Lang:    cfg.ExtractorLang,
			TempDir: cfg.TempDir,
		}, logger.Named("mineru")),
		Structurer: llm.NewClient(cfg.StructurerURL, cfg.StructurerAPIKey, logger.Named("structurer")),
		Monitor:    nvsmi.NewMonitor(),
	}
}

// App bündelt alle langlebigen Abhängigkeiten.
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Cache    *services.EntityCache
	Importer *services.Importer
	Dedup    *services.DedupService
	Runs     *pipeline.RunStore
	Archive  pipeline.ArtifactArchiver

	collaborators Collaborators
}

// NewLogger erstellt den Logger passend zu LOG_MODE.
func NewLogger(mode string) (*zap.Logger, error) {
	if mode == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// New verdrahtet die Dienste. reg darf nil sein.
func New(cfg *config.Config, db *gorm.DB, logger *zap.Logger, reg prometheus.Registerer, collab Collaborators) (*App, error) {
	rules := services.DefaultCategoryRules()
	if cfg.CategoryRulesFile != "" {
		loaded, err := services.LoadCategoryRules(cfg.CategoryRulesFile)
		if err != nil {
			return nil, err
		}
		rules = loaded
		logger.Info("Category rules loaded", zap.String("file", cfg.CategoryRulesFile), zap.Int("rules", len(rules)))
	}

	m := metrics.New(reg)
	cache := services.NewEntityCache(cfg.CacheMaxEntries, cfg.CacheResetEvery)
	cache.OnReset(m.CacheResets.Inc)
	a := &App{
		Config:        cfg,
		DB:            db,
		Logger:        logger,
		Metrics:       m,
		Cache:         cache,
		Importer:      services.NewImporter(db, cache, services.NewCategoryClassifier(rules), cfg.DefaultCategory, logger.Named("importer")),
		Dedup:         services.NewDedupService(db, logger.Named("dedup"), m),
		Runs:          pipeline.NewRunStore(db),
		collaborators: collab,
	}
	return a, nil
}

// EnableArchive aktiviert die S3-Spiegelung der Artefakte.
func (a *App) EnableArchive(ctx context.Context) error {
	if !a.Config.ArchiveEnabled() {
		return nil
	}
	client, err := storage.NewS3Client(ctx, a.Config)
	if err != nil {
		return fmt.Errorf("s3 client: %w", err)
	}
	archive := storage.NewArtifactArchive(client, a.Config.S3Bucket, a.Logger.Named("archive"))
	archive.Root = a.Config.OutputDir
	a.Archive = archive
	return nil
}

// Devices ermittelt die Geräte der Extraktions-Worker.
func (a *App) Devices(ctx context.Context) []providers.Device {
	count := a.Config.DeviceCount
	if count < 0 && a.collaborators.Monitor != nil {
		n, err := a.collaborators.Monitor.Count(ctx)
		if err != nil {
			a.Logger.Warn("GPU detection failed, using CPU", zap.Error(err))
		}
		count = n
	}
	if count < 0 {
		count = 0
	}
	devices := make([]providers.Device, 0, count)
	for i := 0; i < count; i++ {
		devices = append(devices, providers.GPUDevice(i))
	}
	return devices
}

// NewCoordinator erstellt einen Coordinator für genau einen Lauf.
func (a *App) NewCoordinator(ctx context.Context) *pipeline.Coordinator {
	cfg := a.Config
	extraction := &pipeline.ExtractionStage{
		Extractor: a.collaborators.Extractor,
		Monitor:   a.collaborators.Monitor,
		Devices:   a.Devices(ctx),
		InputDir:  cfg.InputDir,
		OutputDir: cfg.OutputDir,
		MinFreeGB: cfg.DeviceMinFreeGB,
		Wait:      cfg.DeviceWait,
		Poll:      cfg.DevicePoll,
		Archive:   a.Archive,
		Logger:    a.Logger.Named("extract"),
	}
	structuring := &pipeline.StructuringStage{
		Structurer: a.collaborators.Structurer,
		Logger:     a.Logger.Named("structure"),
	}
	importing := &pipeline.ImportStage{
		Importer:  a.Importer,
		BatchSize: cfg.ImportBatchSize,
		Pause:     cfg.AdmissionPause,
		Metrics:   a.Metrics,
		Logger:    a.Logger.Named("import"),
	}
	c := pipeline.NewCoordinator(pipeline.Options{
		ExtractWorkers:   cfg.ExtractWorkers,
		StructureWorkers: cfg.StructureWorkers,
		ImportWorkers:    cfg.ImportWorkers,
		QueueCapacity:    cfg.QueueCapacity,
		ExtractTimeout:   cfg.ExtractTimeout,
		StructureTimeout: cfg.StructureTimeout,
		DequeuePoll:      cfg.DequeuePoll,
		JoinTimeout:      cfg.JoinTimeout,
	}, extraction, structuring, importing, a.Metrics, a.Logger.Named("pipeline"))
	c.OnProgress(func(s pipeline.Snapshot) {
		a.Logger.Debug("Progress",
			zap.Int("extracted", s.Extracted.OK+s.Extracted.Failed),
			zap.Int("structured", s.Structured.OK+s.Structured.Failed),
			zap.Int("imported", s.Imported.OK+s.Imported.Failed))
	})
	return c
}

// SaveReport speichert den Bericht; Fehler werden nur protokolliert.
func (a *App) SaveReport(ctx context.Context, report *pipeline.Report) {
	if err := a.Runs.Save(ctx, report); err != nil {
		a.Logger.Error("Failed to save run report", zap.String("run_id", report.RunID), zap.Error(err))
	}
}
