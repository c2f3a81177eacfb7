package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"paper-kb/apperr"
	"paper-kb/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReferencesKey ist der Metadaten-Schlüssel, unter dem die Literaturliste abgelegt wird.
const ReferencesKey = "references"

// Importer schreibt strukturierte Datensätze idempotent in die relationale Datenbank.
// Jeder Schritt committet einzeln; parallele Importer dürfen denselben Datensatz schreiben.
type Importer struct {
	DB              *gorm.DB
	Cache           *EntityCache
	Classifier      *CategoryClassifier
	DefaultCategory string
	Logger          *zap.Logger
}

// NewImporter erstellt einen neuen Importer.
func NewImporter(db *gorm.DB, cache *EntityCache, classifier *CategoryClassifier, defaultCategory string, logger *zap.Logger) *Importer {
	return &Importer{
		DB:              db,
		Cache:           cache,
		Classifier:      classifier,
		DefaultCategory: strings.TrimSpace(defaultCategory),
		Logger:          logger,
	}
}

// ImportBatch importiert alle Datensätze einzeln. Das Ergebnis enthält pro
// Datensatz nil oder den Fehler; ein fehlgeschlagener Datensatz bricht den Batch nicht ab.
func (imp *Importer) ImportBatch(ctx context.Context, records []*models.StructuredRecord) []error {
	errs := make([]error, len(records))
	for i, rec := range records {
		_, errs[i] = imp.ImportRecord(ctx, rec)
		if imp.Cache.Tick() {
			imp.Logger.Debug("Entity cache cleared")
		}
	}
	return errs
}

// Ping prüft, ob die Datenbank wieder Verbindungen annimmt.
func (imp *Importer) Ping(ctx context.Context) error {
	sqlDB, err := imp.DB.DB()
	if err != nil {
		return apperr.ClassifyDB(err)
	}
	return apperr.ClassifyDB(sqlDB.PingContext(ctx))
}

// ImportRecord schreibt einen Datensatz in fester Reihenfolge: Venue, Kategorie,
// Work, Autoren, Tags, Metadaten, Zitationskanten. Ein Fehler bricht die
// restlichen Schritte dieses Datensatzes ab.
func (imp *Importer) ImportRecord(ctx context.Context, rec *models.StructuredRecord) (uint, error) {
	if rec == nil || strings.TrimSpace(rec.Title) == "" {
		return 0, apperr.Validation("datensatz ohne Titel")
	}

	venueID, err := imp.resolveVenue(ctx, rec.Venue)
	if err != nil {
		return 0, fmt.Errorf("venue: %w", err)
	}

	categoryID, err := imp.resolveCategory(ctx, rec)
	if err != nil {
		return 0, fmt.Errorf("kategorie: %w", err)
	}

	workID, err := imp.upsertWork(ctx, rec, venueID, categoryID)
	if err != nil {
		return 0, fmt.Errorf("work: %w", err)
	}

	if err := imp.linkContributors(ctx, workID, rec.Authors); err != nil {
		return workID, fmt.Errorf("autoren: %w", err)
	}
	if categoryID != nil {
		if err := imp.linkTags(ctx, workID, *categoryID, rec.Keywords); err != nil {
			return workID, fmt.Errorf("tags: %w", err)
		}
	}
	if err := imp.insertMetadata(ctx, workID, metadataEntries(rec)); err != nil {
		return workID, fmt.Errorf("metadaten: %w", err)
	}
	if err := imp.linkCitations(ctx, workID, rec.References); err != nil {
		return workID, fmt.Errorf("zitationen: %w", err)
	}
	return workID, nil
}

func (imp *Importer) resolveVenue(ctx context.Context, venue *string) (*uint, error) {
	if venue == nil {
		return nil, nil
	}
	name := CollapseWhitespace(*venue)
	key := NormalizeName(name)
	if key == "" {
		return nil, nil
	}
	id, err := getOrCreate(ctx, imp.DB, imp.Cache,
		CacheKey{Kind: KindVenue, Value: key},
		map[string]any{"name_norm": key},
		&models.Venue{Name: name, NameNorm: key},
		func(v *models.Venue) uint { return v.ID })
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// categoryName wählt explizite Kategorie, dann Inferenz, dann den Fallback.
func (imp *Importer) categoryName(rec *models.StructuredRecord) string {
	if rec.Category != nil {
		if name := CollapseWhitespace(*rec.Category); name != "" {
			return name
		}
	}
	if imp.Classifier != nil {
		if name := imp.Classifier.Infer(rec); name != "" {
			return name
		}
	}
	return imp.DefaultCategory
}

func (imp *Importer) resolveCategory(ctx context.Context, rec *models.StructuredRecord) (*uint, error) {
	name := imp.categoryName(rec)
	if name == "" {
		return nil, nil
	}
	id, err := getOrCreate(ctx, imp.DB, imp.Cache,
		CacheKey{Kind: KindCategory, Value: name},
		map[string]any{"name": name},
		&models.Category{Name: name},
		func(c *models.Category) uint { return c.ID })
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// upsertWork sucht zuerst über den externen Identifier, dann über den Titel,
// und legt sonst eine neue Zeile an.
func (imp *Importer) upsertWork(ctx context.Context, rec *models.StructuredRecord, venueID, categoryID *uint) (uint, error) {
	db := imp.DB.WithContext(ctx)
	title := CollapseWhitespace(rec.Title)
	extID := optionalString(rec.ExternalID)

	var existing []models.Work
	if extID != nil {
		if err := db.Where("external_id = ?", *extID).Order("id").Limit(1).Find(&existing).Error; err != nil {
			return 0, apperr.ClassifyDB(err)
		}
	}
	if len(existing) == 0 {
		q := db.Where("title = ?", title)
		if extID != nil {
			q = q.Where("external_id IS NULL OR external_id = ''")
		}
		if err := q.Order("id").Limit(1).Find(&existing).Error; err != nil {
			return 0, apperr.ClassifyDB(err)
		}
	}

	if len(existing) > 0 {
		w := existing[0]
		updates := map[string]any{"title": title}
		if rec.Abstract != nil && strings.TrimSpace(*rec.Abstract) != "" {
			updates["abstract"] = strings.TrimSpace(*rec.Abstract)
		}
		if rec.Year != nil {
			updates["publication_year"] = *rec.Year
		}
		if venueID != nil {
			updates["venue_id"] = *venueID
		}
		if categoryID != nil {
			updates["category_id"] = *categoryID
		}
		if rec.SourcePath != nil && *rec.SourcePath != "" {
			updates["source_location"] = *rec.SourcePath
		}
		if extID != nil && (w.ExternalID == nil || *w.ExternalID == "") {
			updates["external_id"] = *extID
		}
		if err := db.Model(&models.Work{}).Where("id = ?", w.ID).Updates(updates).Error; err != nil {
			return 0, apperr.ClassifyDB(err)
		}
		return w.ID, nil
	}

	w := models.Work{
		Title:           title,
		PublicationYear: rec.Year,
		ExternalID:      extID,
		VenueID:         venueID,
		CategoryID:      categoryID,
	}
	if rec.Abstract != nil {
		w.Abstract = strings.TrimSpace(*rec.Abstract)
	}
	if rec.SourcePath != nil {
		w.SourceLocation = *rec.SourcePath
	}
	if err := db.Create(&w).Error; err != nil {
		return 0, apperr.ClassifyDB(err)
	}
	return w.ID, nil
}

func (imp *Importer) linkContributors(ctx context.Context, workID uint, authors []string) error {
	position := 0
	for _, raw := range authors {
		name := CollapseWhitespace(raw)
		key := NormalizeName(name)
		if key == "" {
			continue
		}
		position++
		contributorID, err := getOrCreate(ctx, imp.DB, imp.Cache,
			CacheKey{Kind: KindContributor, Value: key},
			map[string]any{"name_norm": key},
			&models.Contributor{Name: name, NameNorm: key},
			func(c *models.Contributor) uint { return c.ID })
		if err != nil {
			return err
		}
		link := models.WorkContributor{WorkID: workID, ContributorID: contributorID, Position: position}
		if err := imp.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return apperr.ClassifyDB(err)
		}
	}
	return nil
}

func (imp *Importer) linkTags(ctx context.Context, workID, categoryID uint, keywords []string) error {
	for _, raw := range keywords {
		name := CollapseWhitespace(raw)
		key := NormalizeName(name)
		if key == "" {
			continue
		}
		tagID, err := getOrCreate(ctx, imp.DB, imp.Cache,
			CacheKey{Kind: KindTag, Scope: categoryID, Value: key},
			map[string]any{"category_id": categoryID, "name_norm": key},
			&models.Tag{CategoryID: categoryID, Name: name, NameNorm: key},
			func(t *models.Tag) uint { return t.ID })
		if err != nil {
			return err
		}
		link := models.WorkTag{WorkID: workID, TagID: tagID}
		if err := imp.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return apperr.ClassifyDB(err)
		}
	}
	return nil
}

// insertMetadata schreibt Einträge mit ON CONFLICT DO NOTHING: der erste
// Schreiber eines Schlüssels gewinnt.
func (imp *Importer) insertMetadata(ctx context.Context, workID uint, entries []models.MetadataEntry) error {
	for _, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			// entspricht chk_work_metadata_key
			return fmt.Errorf("%w: leerer Metadaten-Schlüssel", apperr.ErrConstraintViolation)
		}
		row := models.WorkMetadata{WorkID: workID, MetaKey: key, Value: e.Value, Type: e.Type}
		if row.Type == "" {
			row.Type = "string"
		}
		if err := imp.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
			return apperr.ClassifyDB(err)
		}
	}
	return nil
}

// linkCitations verknüpft die Arbeit mit bereits bekannten Arbeiten, deren
// DOI in der Literaturliste vorkommt. Später importierte Ziele ergänzt
// DedupService.BackfillCitations.
func (imp *Importer) linkCitations(ctx context.Context, workID uint, references []string) error {
	_, err := linkCitations(imp.DB.WithContext(ctx), workID, references)
	return err
}

func metadataEntries(rec *models.StructuredRecord) []models.MetadataEntry {
	entries := append([]models.MetadataEntry(nil), rec.Metadata...)
	if len(rec.References) > 0 {
		data, err := json.Marshal(rec.References)
		if err == nil {
			entries = append(entries, models.MetadataEntry{Key: ReferencesKey, Value: string(data), Type: "json"})
		}
	}
	return entries
}

func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
