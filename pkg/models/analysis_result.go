package models

import (
	"time"
)

// AnalysisResult holds the aggregated output of a completed job. It is
// created exactly once, at the transition to completed; its absence for a
// terminal job is the failure signal to readers.
type AnalysisResult struct {
	ID        int64              `db:"id"         json:"id"`
	JobID     int64              `db:"job_id"     json:"job_id"`
	Summary   string             `db:"summary"    json:"summary"`
	Metrics   map[string]float64 `db:"metrics"    json:"metrics"`
	Raw       []FrameDetections  `db:"raw"        json:"raw"`
	Artifacts []string           `db:"artifacts"  json:"artifacts"`
	CreatedAt time.Time          `db:"created_at" json:"created_at"`
}
