package pipeline

import (
	"encoding/json"
	"time"

	"paper-kb/models"

	"gorm.io/datatypes"
)

// Report ist der Abschlussbericht eines Laufs.
type Report struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Submitted  int       `json:"submitted"`

	Extracted  StageCounts `json:"extracted"`
	Structured StageCounts `json:"structured"`
	Imported   StageCounts `json:"imported"`
	// Unfinished zählt eingereichte Elemente ohne Ergebnis (nur nach Abbruch > 0).
	Unfinished int `json:"unfinished"`

	DurationSeconds     float64 `json:"durationSeconds"`
	ThroughputPerSecond float64 `json:"throughputPerSecond"`

	FailedItems []FailedItem `json:"failedItems"`
	Stragglers  []string     `json:"stragglers,omitempty"`
	Aborted     bool         `json:"aborted"`
}

func buildReport(runID string, started, finished time.Time, submitted int, snap Snapshot, failures []FailedItem) *Report {
	r := &Report{
		RunID:       runID,
		StartedAt:   started,
		FinishedAt:  finished,
		Submitted:   submitted,
		Extracted:   snap.Extracted,
		Structured:  snap.Structured,
		Imported:    snap.Imported,
		FailedItems: failures,
	}
	if r.FailedItems == nil {
		r.FailedItems = []FailedItem{}
	}
	r.Unfinished = submitted - snap.Extracted.Failed - snap.Structured.Failed - snap.Imported.OK - snap.Imported.Failed
	if r.Unfinished < 0 {
		r.Unfinished = 0
	}
	r.DurationSeconds = finished.Sub(started).Seconds()
	if r.DurationSeconds > 0 {
		r.ThroughputPerSecond = float64(snap.Imported.OK) / r.DurationSeconds
	}
	return r
}

// Succeeded meldet false, wenn Elemente eingereicht, aber keines importiert wurde.
func (r *Report) Succeeded() bool {
	return r.Submitted == 0 || r.Imported.OK > 0
}

// ToModel wandelt den Bericht in eine speicherbare Zeile.
func (r *Report) ToModel() (*models.PipelineRun, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return &models.PipelineRun{
		RunID:               r.RunID,
		StartedAt:           r.StartedAt,
		FinishedAt:          r.FinishedAt,
		Submitted:           r.Submitted,
		ExtractedOK:         r.Extracted.OK,
		ExtractedFailed:     r.Extracted.Failed,
		StructuredOK:        r.Structured.OK,
		StructuredFail:      r.Structured.Failed,
		ImportedOK:          r.Imported.OK,
		ImportedFailed:      r.Imported.Failed,
		DurationSeconds:     r.DurationSeconds,
		ThroughputPerSecond: r.ThroughputPerSecond,
		Report:              datatypes.JSON(data),
	}, nil
}
