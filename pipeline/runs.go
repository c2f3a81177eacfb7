package pipeline

import (
	"context"

	"paper-kb/apperr"
	"paper-kb/models"

	"gorm.io/gorm"
)

// RunStore speichert und liest Abschlussberichte.
type RunStore struct {
	DB *gorm.DB
}

func NewRunStore(db *gorm.DB) *RunStore {
	return &RunStore{DB: db}
}

func (s *RunStore) Save(ctx context.Context, r *Report) error {
	row, err := r.ToModel()
	if err != nil {
		return err
	}
	return apperr.ClassifyDB(s.DB.WithContext(ctx).Create(row).Error)
}

// List liefert die letzten limit Läufe, neueste zuerst.
func (s *RunStore) List(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	var runs []models.PipelineRun
	q := s.DB.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, apperr.ClassifyDB(err)
	}
	return runs, nil
}

// Get liefert einen Lauf; gorm.ErrRecordNotFound, wenn er nicht existiert.
func (s *RunStore) Get(ctx context.Context, runID string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	if err := s.DB.WithContext(ctx).Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
