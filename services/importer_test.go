package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"paper-kb/apperr"
	"paper-kb/models"
	"paper-kb/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestImporter(t *testing.T, db *gorm.DB) *Importer {
	return NewImporter(db, NewEntityCache(100, 10), NewCategoryClassifier(nil), "Environmental Engineering", testutil.Logger(t))
}

func fullRecord() *models.StructuredRecord {
	return &models.StructuredRecord{
		Title:    "Nitrification in membrane bioreactors",
		Authors:  []string{"Jane Doe", "Max Mustermann"},
		Abstract: testutil.Ptr("We study sludge."),
		Keywords: []string{"Wastewater", "Bioreactor"},
		Year:     testutil.Ptr(2021),
		Venue:    testutil.Ptr("Water Research"),
		References: []string{
			"Smith J (2019) Sludge ageing. https://doi.org/10.1016/j.watres.2019.01.001",
		},
		SourcePath: testutil.Ptr("/data/pdfs/mbr.pdf"),
		Metadata:   []models.MetadataEntry{{Key: "doi_source", Value: "crossref"}},
	}
}

func TestImportRecord_WritesAllTables(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	cited := testutil.SeedWork(t, db, models.Work{Title: "Sludge ageing", ExternalID: testutil.Ptr("10.1016/j.watres.2019.01.001")})

	imp := newTestImporter(t, db)
	id, err := imp.ImportRecord(ctx, fullRecord())
	require.NoError(t, err)

	var w models.Work
	require.NoError(t, db.First(&w, id).Error)
	assert.Equal(t, "We study sludge.", w.Abstract)
	assert.Equal(t, 2021, *w.PublicationYear)
	assert.Equal(t, "/data/pdfs/mbr.pdf", w.SourceLocation)
	require.NotNil(t, w.VenueID)
	require.NotNil(t, w.CategoryID)

	var category models.Category
	require.NoError(t, db.First(&category, *w.CategoryID).Error)
	assert.Equal(t, "Environmental Engineering", category.Name)

	var links []models.WorkContributor
	require.NoError(t, db.Where("work_id = ?", id).Order("position").Find(&links).Error)
	require.Len(t, links, 2)
	var first models.Contributor
	require.NoError(t, db.First(&first, links[0].ContributorID).Error)
	assert.Equal(t, "Jane Doe", first.Name)
	assert.Equal(t, 1, links[0].Position)
	assert.Equal(t, 2, links[1].Position)

	assert.Equal(t, int64(2), testutil.Count(t, db, &models.WorkTag{}, "work_id = ?", id))
	assert.Equal(t, int64(2), testutil.Count(t, db, &models.Tag{}, "category_id = ?", category.ID))

	var refs models.WorkMetadata
	require.NoError(t, db.Where("work_id = ? AND meta_key = ?", id, ReferencesKey).First(&refs).Error)
	assert.Equal(t, "json", refs.Type)
	assert.Equal(t, int64(2), testutil.Count(t, db, &models.WorkMetadata{}, "work_id = ?", id))

	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Citation{}, "citing_work_id = ? AND cited_work_id = ?", id, cited.ID))
}

func TestImportRecord_RerunIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	imp := newTestImporter(t, db)

	rec := &models.StructuredRecord{Title: "X", Authors: []string{"A. Author"}, Keywords: []string{"sludge"}}
	first, err := imp.ImportRecord(ctx, rec)
	require.NoError(t, err)
	imp.Cache.Clear()
	second, err := imp.ImportRecord(ctx, rec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Work{}))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Contributor{}))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.WorkContributor{}))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.WorkTag{}))

	var w models.Work
	require.NoError(t, db.First(&w).Error)
	assert.Equal(t, "X", w.Title)
	assert.Nil(t, w.ExternalID)
}

func TestImportRecord_ExternalIDUpdatesInPlace(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	imp := newTestImporter(t, db)

	_, err := imp.ImportRecord(ctx, &models.StructuredRecord{Title: "A", ExternalID: testutil.Ptr("10.1/e1")})
	require.NoError(t, err)
	_, err = imp.ImportRecord(ctx, &models.StructuredRecord{Title: "B", ExternalID: testutil.Ptr("10.1/e1"), Abstract: testutil.Ptr("abs")})
	require.NoError(t, err)

	var works []models.Work
	require.NoError(t, db.Find(&works).Error)
	require.Len(t, works, 1)
	assert.Equal(t, "B", works[0].Title)
	assert.Equal(t, "abs", works[0].Abstract)
}

func TestImportRecord_TitleMatchAdoptsExternalID(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	imp := newTestImporter(t, db)

	first, err := imp.ImportRecord(ctx, &models.StructuredRecord{Title: "Same title", Abstract: testutil.Ptr("keep me")})
	require.NoError(t, err)
	second, err := imp.ImportRecord(ctx, &models.StructuredRecord{Title: "Same title", ExternalID: testutil.Ptr("10.1/e2")})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var w models.Work
	require.NoError(t, db.First(&w, first).Error)
	require.NotNil(t, w.ExternalID)
	assert.Equal(t, "10.1/e2", *w.ExternalID)
	assert.Equal(t, "keep me", w.Abstract)
}

func TestImportRecord_NullCategoryCarriesNoTags(t *testing.T) {
	db := testutil.DB(t)
	imp := NewImporter(db, NewEntityCache(100, 10), nil, "", testutil.Logger(t))

	id, err := imp.ImportRecord(context.Background(), &models.StructuredRecord{Title: "Untagged", Keywords: []string{"a", "b"}})
	require.NoError(t, err)

	var w models.Work
	require.NoError(t, db.First(&w, id).Error)
	assert.Nil(t, w.CategoryID)
	assert.Zero(t, testutil.Count(t, db, &models.WorkTag{}))
	assert.Zero(t, testutil.Count(t, db, &models.Tag{}))
}

func TestImportRecord_ExplicitCategoryWins(t *testing.T) {
	db := testutil.DB(t)
	imp := newTestImporter(t, db)

	rec := fullRecord()
	rec.Category = testutil.Ptr("Hydrology")
	id, err := imp.ImportRecord(context.Background(), rec)
	require.NoError(t, err)

	var name []string
	require.NoError(t, db.Model(&models.Category{}).
		Joins("JOIN works ON works.category_id = categories.id").
		Where("works.id = ?", id).Pluck("categories.name", &name).Error)
	assert.Equal(t, []string{"Hydrology"}, name)
}

func TestImportRecord_BlankMetadataKeyIsConstraintViolation(t *testing.T) {
	db := testutil.DB(t)
	imp := newTestImporter(t, db)

	rec := &models.StructuredRecord{Title: "Bad metadata", Metadata: []models.MetadataEntry{{Key: "  ", Value: "x"}}}
	_, err := imp.ImportRecord(context.Background(), rec)
	assert.ErrorIs(t, err, apperr.ErrConstraintViolation)
	assert.Zero(t, testutil.Count(t, db, &models.WorkMetadata{}))
}

func TestImportRecord_MetadataFirstWriterWins(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	imp := newTestImporter(t, db)

	_, err := imp.ImportRecord(ctx, &models.StructuredRecord{Title: "M", Metadata: []models.MetadataEntry{{Key: "license", Value: "cc-by"}}})
	require.NoError(t, err)
	_, err = imp.ImportRecord(ctx, &models.StructuredRecord{Title: "M", Metadata: []models.MetadataEntry{{Key: "license", Value: "proprietary"}}})
	require.NoError(t, err)

	var row models.WorkMetadata
	require.NoError(t, db.Where("meta_key = ?", "license").First(&row).Error)
	assert.Equal(t, "cc-by", row.Value)
}

func TestImportBatch_FailureDoesNotAbortBatch(t *testing.T) {
	db := testutil.DB(t)
	imp := newTestImporter(t, db)

	records := make([]*models.StructuredRecord, 50)
	for i := range records {
		records[i] = &models.StructuredRecord{
			Title:    fmt.Sprintf("Paper %02d", i+1),
			Metadata: []models.MetadataEntry{{Key: "batch", Value: "d"}},
		}
	}
	records[22].Metadata = []models.MetadataEntry{{Key: "", Value: "broken"}}

	errs := imp.ImportBatch(context.Background(), records)
	require.Len(t, errs, 50)
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			assert.Equal(t, 22, i)
			assert.ErrorIs(t, err, apperr.ErrConstraintViolation)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, int64(49), testutil.Count(t, db, &models.WorkMetadata{}, "meta_key = ?", "batch"))
	assert.Equal(t, 5, imp.Cache.Resets())
}

func TestLinkContributors_ConcurrentWritersCreateOneRow(t *testing.T) {
	db := testutil.DB(t)
	work := testutil.SeedWork(t, db, models.Work{Title: "Shared"})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// eigener Cache je Worker, damit jeder selbst in die Datenbank schreibt
			imp := NewImporter(db, NewEntityCache(100, 100), nil, "", testutil.Logger(t))
			errs[i] = imp.linkContributors(context.Background(), work.ID, []string{"Jane  Doe"})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Contributor{}))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.WorkContributor{}))
}

func TestImportRecord_RejectsMissingTitle(t *testing.T) {
	imp := newTestImporter(t, testutil.DB(t))
	_, err := imp.ImportRecord(context.Background(), &models.StructuredRecord{Title: "  "})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
