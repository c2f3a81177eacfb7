package services

import (
	"context"
	"errors"
	"fmt"

	"paper-kb/apperr"
	"paper-kb/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DedupReport fasst einen Deduplizierungslauf zusammen.
type DedupReport struct {
	DryRun               bool     `json:"dryRun"`
	GroupsScanned        int      `json:"groupsScanned"`
	GroupsWithDuplicates int      `json:"groupsWithDuplicates"`
	CanonicalChosen      int      `json:"canonicalChosen"`
	RowsDeleted          int      `json:"rowsDeleted"`
	CitationsAdded       int      `json:"citationsAdded"`
	FailedGroups         []string `json:"failedGroups"`
}

// DedupObserver erhält das Ergebnis jeder Gruppe (z.B. für Metriken).
type DedupObserver interface {
	GroupMerged(deleted int)
	GroupFailed()
}

// DedupService führt Arbeiten mit gleichem externen Identifier zusammen.
type DedupService struct {
	DB       *gorm.DB
	Logger   *zap.Logger
	Observer DedupObserver
}

func NewDedupService(db *gorm.DB, logger *zap.Logger, observer DedupObserver) *DedupService {
	return &DedupService{DB: db, Logger: logger, Observer: observer}
}

var errDryRunRollback = errors.New("dry run: rollback")

// Run gruppiert nach externem Identifier, wählt je Gruppe die kanonische Zeile,
// migriert die Verknüpfungen der übrigen Zeilen und löscht diese. Jede Gruppe
// läuft in einer eigenen Transaktion; bei dryRun wird immer zurückgerollt.
// Danach werden fehlende Zitationskanten aus den Literaturlisten ergänzt.
func (s *DedupService) Run(ctx context.Context, dryRun bool) (*DedupReport, error) {
	report := &DedupReport{DryRun: dryRun, FailedGroups: []string{}}
	db := s.DB.WithContext(ctx)

	var scanned int64
	if err := db.Model(&models.Work{}).
		Where("external_id IS NOT NULL AND external_id <> ''").
		Distinct("external_id").Count(&scanned).Error; err != nil {
		return nil, apperr.ClassifyDB(err)
	}
	report.GroupsScanned = int(scanned)

	var groups []string
	if err := db.Model(&models.Work{}).
		Select("external_id").
		Where("external_id IS NOT NULL AND external_id <> ''").
		Group("external_id").
		Having("COUNT(*) > 1").
		Order("external_id").
		Pluck("external_id", &groups).Error; err != nil {
		return nil, apperr.ClassifyDB(err)
	}
	report.GroupsWithDuplicates = len(groups)

	for _, externalID := range groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		deleted, err := s.mergeGroup(ctx, externalID, dryRun)
		if err != nil {
			s.Logger.Error("Dedup of group failed",
				zap.String("external_id", externalID), zap.Error(err))
			report.FailedGroups = append(report.FailedGroups, externalID)
			if s.Observer != nil {
				s.Observer.GroupFailed()
			}
			continue
		}
		if deleted > 0 {
			report.CanonicalChosen++
			report.RowsDeleted += deleted
		}
		if s.Observer != nil && !dryRun {
			s.Observer.GroupMerged(deleted)
		}
	}

	added, err := s.BackfillCitations(ctx, dryRun)
	if err != nil {
		return report, err
	}
	report.CitationsAdded = added

	s.Logger.Info("Dedup finished",
		zap.Bool("dry_run", dryRun),
		zap.Int("groups_scanned", report.GroupsScanned),
		zap.Int("groups_with_duplicates", report.GroupsWithDuplicates),
		zap.Int("rows_deleted", report.RowsDeleted),
		zap.Int("citations_added", report.CitationsAdded),
		zap.Int("failed_groups", len(report.FailedGroups)))
	return report, nil
}

func (s *DedupService) mergeGroup(ctx context.Context, externalID string, dryRun bool) (int, error) {
	deleted := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var works []models.Work
		if err := tx.Where("external_id = ?", externalID).Order("id").Find(&works).Error; err != nil {
			return err
		}
		if len(works) < 2 {
			return nil
		}

		canonical, err := chooseCanonical(tx, works)
		if err != nil {
			return err
		}
		for _, w := range works {
			if w.ID == canonical.ID {
				continue
			}
			if err := mergeAssociations(tx, canonical.ID, w.ID); err != nil {
				return fmt.Errorf("verknüpfungen von %d: %w", w.ID, err)
			}
			if err := tx.Delete(&models.Work{}, w.ID).Error; err != nil {
				return fmt.Errorf("löschen von %d: %w", w.ID, err)
			}
			deleted++
		}
		s.Logger.Debug("Canonical work chosen",
			zap.String("external_id", externalID),
			zap.Uint("work_id", canonical.ID),
			zap.Int("duplicates", deleted))
		if dryRun {
			return errDryRunRollback
		}
		return nil
	})
	if errors.Is(err, errDryRunRollback) {
		err = nil
	}
	if err != nil {
		return 0, apperr.ClassifyDB(err)
	}
	return deleted, nil
}

// chooseCanonical wählt die Zeile mit der höchsten Vollständigkeit; bei
// Gleichstand bleibt die kleinste ID. works ist nach ID sortiert.
func chooseCanonical(tx *gorm.DB, works []models.Work) (models.Work, error) {
	best := works[0]
	bestScore := -1.0
	for _, w := range works {
		score, err := completeness(tx, w)
		if err != nil {
			return models.Work{}, err
		}
		if score > bestScore {
			best, bestScore = w, score
		}
	}
	return best, nil
}

func completeness(tx *gorm.DB, w models.Work) (float64, error) {
	score := 0.0
	if w.Abstract != "" {
		score += 1
	}
	if w.Title != "" {
		score += 0.5
	}

	var citations, metadata, contributors, tags int64
	if err := tx.Model(&models.Citation{}).
		Where("citing_work_id = ? OR cited_work_id = ?", w.ID, w.ID).Count(&citations).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.WorkMetadata{}).Where("work_id = ?", w.ID).Count(&metadata).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.WorkContributor{}).Where("work_id = ?", w.ID).Count(&contributors).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.WorkTag{}).Where("work_id = ?", w.ID).Count(&tags).Error; err != nil {
		return 0, err
	}
	score += 0.2*float64(citations) + 0.1*float64(metadata) + 0.1*float64(contributors) + 0.1*float64(tags)
	return score, nil
}

// mergeAssociations hängt die Verknüpfungen von dup an canonical um. Zeilen,
// die mit bestehenden Verknüpfungen der kanonischen Arbeit kollidieren, werden
// vorher gelöscht.
func mergeAssociations(tx *gorm.DB, canonical, dup uint) error {
	if err := repoint(tx, &models.WorkContributor{}, "work_id", "contributor_id", canonical, dup); err != nil {
		return err
	}
	if err := repoint(tx, &models.WorkTag{}, "work_id", "tag_id", canonical, dup); err != nil {
		return err
	}
	if err := repoint(tx, &models.WorkMetadata{}, "work_id", "meta_key", canonical, dup); err != nil {
		return err
	}

	// Kanten zwischen Dublette und kanonischer Arbeit würden zu Selbstkanten.
	if err := tx.Where("(citing_work_id = ? AND cited_work_id = ?) OR (citing_work_id = ? AND cited_work_id = ?)",
		dup, canonical, canonical, dup).Delete(&models.Citation{}).Error; err != nil {
		return err
	}
	if err := repoint(tx, &models.Citation{}, "citing_work_id", "cited_work_id", canonical, dup); err != nil {
		return err
	}
	return repoint(tx, &models.Citation{}, "cited_work_id", "citing_work_id", canonical, dup)
}

// repoint setzt ownerCol von dup auf canonical; Zeilen, deren otherCol bei
// canonical schon existiert, werden zuvor entfernt.
func repoint(tx *gorm.DB, model any, ownerCol, otherCol string, canonical, dup uint) error {
	existing := tx.Model(model).Select(otherCol).Where(ownerCol+" = ?", canonical)
	if err := tx.Where(ownerCol+" = ? AND "+otherCol+" IN (?)", dup, existing).Delete(model).Error; err != nil {
		return err
	}
	return tx.Model(model).Where(ownerCol+" = ?", dup).Update(ownerCol, canonical).Error
}
