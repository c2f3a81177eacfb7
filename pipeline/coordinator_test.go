package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"paper-kb/apperr"
	"paper-kb/metrics"
	"paper-kb/models"
	"paper-kb/providers"
	"paper-kb/providers/mock"
	"paper-kb/services"
	"paper-kb/testutil"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testOptions() Options {
	return Options{
		ExtractWorkers:   2,
		StructureWorkers: 4,
		ImportWorkers:    2,
		QueueCapacity:    8,
		ExtractTimeout:   time.Second,
		StructureTimeout: time.Second,
		DequeuePoll:      10 * time.Millisecond,
		JoinTimeout:      5 * time.Second,
	}
}

type harness struct {
	db         *gorm.DB
	extractor  *mock.Extractor
	structurer *mock.Structurer
	metrics    *metrics.Metrics
	coord      *Coordinator
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	db := testutil.DB(t)
	logger := testutil.Logger(t)
	h := &harness{
		db:         db,
		extractor:  &mock.Extractor{},
		structurer: &mock.Structurer{},
		metrics:    metrics.New(prometheus.NewRegistry()),
	}
	importer := services.NewImporter(db, services.NewEntityCache(1000, 100), services.NewCategoryClassifier(nil), "Environmental Engineering", logger)
	h.coord = NewCoordinator(opts,
		&ExtractionStage{Extractor: h.extractor, OutputDir: t.TempDir(), Logger: logger},
		&StructuringStage{Structurer: h.structurer, Logger: logger},
		&ImportStage{Importer: importer, BatchSize: 50, Pause: time.Millisecond, Metrics: h.metrics, Logger: logger},
		h.metrics, logger)
	return h
}

func sourceNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("/in/paper-%02d.pdf", i+1)
	}
	return out
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func TestCoordinator_ImportsAllItems(t *testing.T) {
	h := newHarness(t, testOptions())
	var mu sync.Mutex
	progress := 0
	h.coord.OnProgress(func(Snapshot) {
		mu.Lock()
		progress++
		mu.Unlock()
	})

	report, err := h.coord.Run(context.Background(), sourceNames(20))
	require.NoError(t, err)

	assert.Equal(t, 20, report.Submitted)
	assert.Equal(t, StageCounts{OK: 20}, report.Extracted)
	assert.Equal(t, StageCounts{OK: 20}, report.Structured)
	assert.Equal(t, StageCounts{OK: 20}, report.Imported)
	assert.Zero(t, report.Unfinished)
	assert.False(t, report.Aborted)
	assert.Empty(t, report.Stragglers)
	assert.True(t, report.Succeeded())
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, int64(20), testutil.Count(t, h.db, &models.Work{}))
	assert.Equal(t, int64(1), testutil.Count(t, h.db, &models.Contributor{}))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.Runs.WithLabelValues("ok")))
}

func TestCoordinator_RerunDoesNotDuplicate(t *testing.T) {
	h := newHarness(t, testOptions())
	h.structurer.StructureFunc = func(ctx context.Context, path string) (*models.StructuredRecord, error) {
		return &models.StructuredRecord{Title: "X", Authors: []string{"Jane Doe"}}, nil
	}

	_, err := h.coord.Run(context.Background(), []string{"/in/x.pdf"})
	require.NoError(t, err)
	report, err := h.coord.Run(context.Background(), []string{"/in/x.pdf"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Imported.OK)
	assert.Equal(t, 1, h.extractor.CallCount())
	var works []models.Work
	require.NoError(t, h.db.Find(&works).Error)
	require.Len(t, works, 1)
	assert.Equal(t, "X", works[0].Title)
}

func TestCoordinator_EmptyTitleFailsStructuring(t *testing.T) {
	h := newHarness(t, testOptions())
	h.structurer.StructureFunc = func(ctx context.Context, path string) (*models.StructuredRecord, error) {
		if stem(path) == "paper-02" {
			return &models.StructuredRecord{Title: "   "}, nil
		}
		return &models.StructuredRecord{Title: stem(path)}, nil
	}

	report, err := h.coord.Run(context.Background(), sourceNames(3))
	require.NoError(t, err)

	assert.Equal(t, StageCounts{OK: 2, Failed: 1}, report.Structured)
	assert.Equal(t, StageCounts{OK: 2}, report.Imported)
	require.Len(t, report.FailedItems, 1)
	assert.Equal(t, StageStructure, report.FailedItems[0].Stage)
	assert.Equal(t, "/in/paper-02.pdf", report.FailedItems[0].Item)
	assert.Equal(t, "validation", report.FailedItems[0].Kind)
	assert.Equal(t, int64(2), testutil.Count(t, h.db, &models.Work{}))
}

func TestCoordinator_ConstraintViolationFailsOnlyItsRecord(t *testing.T) {
	opts := testOptions()
	opts.ImportWorkers = 1
	opts.QueueCapacity = 100
	h := newHarness(t, opts)
	h.structurer.StructureFunc = func(ctx context.Context, path string) (*models.StructuredRecord, error) {
		rec := &models.StructuredRecord{Title: stem(path), Metadata: []models.MetadataEntry{{Key: "origin", Value: "test"}}}
		if stem(path) == "paper-23" {
			rec.Metadata = []models.MetadataEntry{{Key: " ", Value: "malformed"}}
		}
		return rec, nil
	}

	report, err := h.coord.Run(context.Background(), sourceNames(50))
	require.NoError(t, err)

	assert.Equal(t, StageCounts{OK: 49, Failed: 1}, report.Imported)
	require.Len(t, report.FailedItems, 1)
	assert.Equal(t, "/in/paper-23.pdf", report.FailedItems[0].Item)
	assert.Equal(t, "constraint", report.FailedItems[0].Kind)
	assert.Equal(t, int64(49), testutil.Count(t, h.db, &models.WorkMetadata{}, "meta_key = ?", "origin"))
}

func TestCoordinator_ExtractionFailuresAreCounted(t *testing.T) {
	h := newHarness(t, testOptions())
	h.extractor.ConvertFunc = func(ctx context.Context, src, out string, d providers.Device) (string, error) {
		return "", apperr.Transient("extraktion", errors.New("exit status 1"))
	}

	report, err := h.coord.Run(context.Background(), sourceNames(4))
	require.NoError(t, err)
	assert.Equal(t, StageCounts{Failed: 4}, report.Extracted)
	assert.Zero(t, report.Structured.OK+report.Structured.Failed)
	assert.False(t, report.Succeeded())
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.Runs.WithLabelValues("failed")))
	for _, f := range report.FailedItems {
		assert.Equal(t, "transient", f.Kind)
	}
}

func TestCoordinator_StructureTimeout(t *testing.T) {
	opts := testOptions()
	opts.StructureTimeout = 20 * time.Millisecond
	h := newHarness(t, opts)
	h.structurer.StructureFunc = func(ctx context.Context, path string) (*models.StructuredRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	report, err := h.coord.Run(context.Background(), sourceNames(2))
	require.NoError(t, err)
	assert.Equal(t, StageCounts{Failed: 2}, report.Structured)
}

func TestCoordinator_StopAbortsRun(t *testing.T) {
	opts := testOptions()
	opts.StructureTimeout = 200 * time.Millisecond
	h := newHarness(t, opts)
	started := make(chan struct{}, 10)
	h.structurer.StructureFunc = func(ctx context.Context, path string) (*models.StructuredRecord, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	go func() {
		<-started
		h.coord.Stop()
	}()

	begin := time.Now()
	report, err := h.coord.Run(context.Background(), sourceNames(6))
	require.NoError(t, err)
	assert.True(t, report.Aborted)
	assert.Zero(t, report.Imported.OK)
	assert.Empty(t, report.Stragglers)
	assert.Less(t, time.Since(begin), opts.JoinTimeout)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.Runs.WithLabelValues("aborted")))
}

func TestCoordinator_EmptyRun(t *testing.T) {
	h := newHarness(t, testOptions())
	report, err := h.coord.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, report.Submitted)
	assert.True(t, report.Succeeded())
}
