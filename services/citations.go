package services

import (
	"context"
	"encoding/json"
	"errors"

	"paper-kb/apperr"
	"paper-kb/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const backfillBatchSize = 200

// linkCitations legt Zitationskanten von workID zu allen vorhandenen Arbeiten an,
// deren DOI in references vorkommt. Liefert die Anzahl neuer Kanten.
func linkCitations(db *gorm.DB, workID uint, references []string) (int, error) {
	dois := ExtractDOIs(references)
	if len(dois) == 0 {
		return 0, nil
	}
	var cited []uint
	err := db.Model(&models.Work{}).
		Where("external_id IN ? AND id <> ?", dois, workID).
		Pluck("id", &cited).Error
	if err != nil {
		return 0, apperr.ClassifyDB(err)
	}
	added := 0
	for _, citedID := range cited {
		edge := models.Citation{CitingWorkID: workID, CitedWorkID: citedID}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge)
		if res.Error != nil {
			return added, apperr.ClassifyDB(res.Error)
		}
		added += int(res.RowsAffected)
	}
	return added, nil
}

// BackfillCitations liest die gespeicherten Literaturlisten aller Arbeiten und
// ergänzt Kanten zu Arbeiten, die erst nach der zitierenden importiert wurden.
// Bei dryRun wird gezählt und zurückgerollt.
func (s *DedupService) BackfillCitations(ctx context.Context, dryRun bool) (int, error) {
	added := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.WorkMetadata
		res := tx.Where("meta_key = ?", ReferencesKey).FindInBatches(&rows, backfillBatchSize, func(batch *gorm.DB, _ int) error {
			for _, row := range rows {
				var refs []string
				if err := json.Unmarshal([]byte(row.Value), &refs); err != nil {
					s.Logger.Warn("Skipping unreadable references",
						zap.Uint("work_id", row.WorkID), zap.Error(err))
					continue
				}
				n, err := linkCitations(tx, row.WorkID, refs)
				if err != nil {
					return err
				}
				added += n
			}
			return nil
		})
		if res.Error != nil {
			return res.Error
		}
		if dryRun {
			return errDryRunRollback
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDryRunRollback) {
		return 0, apperr.ClassifyDB(err)
	}
	if added > 0 {
		s.Logger.Info("Citations backfilled", zap.Bool("dry_run", dryRun), zap.Int("added", added))
	}
	return added, nil
}
