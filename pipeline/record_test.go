package pipeline

import (
	"testing"

	"paper-kb/apperr"
	"paper-kb/models"
	"paper-kb/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRecord(t *testing.T) {
	rec := &models.StructuredRecord{
		Title:      "  Sludge \n ageing ",
		Authors:    []string{" Jane  Doe ", "", "Max Mustermann"},
		Keywords:   []string{"Sludge", "sludge ", "MBR"},
		Abstract:   testutil.Ptr("   "),
		Venue:      testutil.Ptr(" Water Research "),
		ExternalID: testutil.Ptr("https://doi.org/10.1016/J.WATRES.2019.01.001"),
		SourcePath: testutil.Ptr("/data/pdfs/ageing.pdf"),
		Metadata:   []models.MetadataEntry{{Key: " license ", Value: "cc"}},
	}
	require.NoError(t, NormalizeRecord(rec))

	assert.Equal(t, "Sludge ageing", rec.Title)
	assert.Equal(t, []string{"Jane Doe", "Max Mustermann"}, rec.Authors)
	assert.Equal(t, []string{"Sludge", "MBR"}, rec.Keywords)
	assert.Nil(t, rec.Abstract)
	assert.Equal(t, "Water Research", *rec.Venue)
	assert.Equal(t, "10.1016/j.watres.2019.01.001", *rec.ExternalID)
	assert.Equal(t, "/data/pdfs/ageing.pdf", *rec.SourcePath)
	assert.Equal(t, "license", rec.Metadata[0].Key)
}

func TestNormalizeRecord_RejectsEmptyTitle(t *testing.T) {
	assert.ErrorIs(t, NormalizeRecord(&models.StructuredRecord{Title: " \t "}), apperr.ErrValidation)
	assert.ErrorIs(t, NormalizeRecord(nil), apperr.ErrValidation)
}

func TestNormalizeRecord_DropsInvalidSourcePath(t *testing.T) {
	rec := &models.StructuredRecord{Title: "T", SourcePath: testutil.Ptr("https://example.org/a.pdf")}
	require.NoError(t, NormalizeRecord(rec))
	assert.Nil(t, rec.SourcePath)
}

func TestValidSourcePath(t *testing.T) {
	assert.True(t, ValidSourcePath("/data/pdfs/a.pdf"))
	assert.True(t, ValidSourcePath("relative/B.PDF"))
	assert.False(t, ValidSourcePath(""))
	assert.False(t, ValidSourcePath("/data/pdfs/a.md"))
	assert.False(t, ValidSourcePath("/data/pdfs/.pdf"))
	assert.False(t, ValidSourcePath("s3://bucket/a.pdf"))
	assert.False(t, ValidSourcePath("/data/a\x00.pdf"))
}

func TestReferencesFromMarkdown(t *testing.T) {
	md := "# T\n\n## References\n\n-   Smith J (2019)   Sludge ageing. Water Res.\n"
	assert.Equal(t, []string{"Smith J (2019) Sludge ageing. Water Res."}, ReferencesFromMarkdown(md))
}
