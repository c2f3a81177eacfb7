package models

import (
	"time"

	"gorm.io/datatypes"
)

// PipelineRun speichert den Abschlussbericht eines Ingest-Laufs.
type PipelineRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	RunID      string    `json:"run_id" gorm:"size:64;uniqueIndex;not null"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Submitted  int       `json:"submitted"`

	ExtractedOK     int `json:"extracted_ok"`
	ExtractedFailed int `json:"extracted_failed"`
	StructuredOK    int `json:"structured_ok"`
	StructuredFail  int `json:"structured_failed"`
	ImportedOK      int `json:"imported_ok"`
	ImportedFailed  int `json:"imported_failed"`

	DurationSeconds     float64 `json:"duration_seconds"`
	ThroughputPerSecond float64 `json:"throughput_per_second"`

	// Vollständiger Bericht inkl. fehlgeschlagener Elemente
	Report datatypes.JSON `json:"report" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
