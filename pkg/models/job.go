// Package models contains shared data models used across the revid codebase.
package models

import (
	"time"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job tracks one unit of batch video-analysis work. The API returns the job
// on POST /api/v1/videos; clients poll GET /api/v1/videos/{id} until status
// is completed or failed.
//
// Progress is monotonically non-decreasing and reaches 100 only on
// completion. A failed job freezes progress at its last value and carries a
// non-empty ErrorMessage. Terminal states never transition back.
type Job struct {
	ID               int64      `db:"id"                json:"id"`
	Title            string     `db:"title"             json:"title"`
	Description      *string    `db:"description"       json:"description,omitempty"`
	OriginalFilename string     `db:"original_filename" json:"original_filename"`
	StoragePath      string     `db:"storage_path"      json:"-"`
	Status           string     `db:"status"            json:"status"`
	Progress         int        `db:"progress"          json:"progress"`
	ErrorMessage     *string    `db:"error_message"     json:"error_message,omitempty"`
	DurationMS       *int64     `db:"duration_ms"       json:"duration_ms,omitempty"`
	CreatedAt        time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"        json:"updated_at"`
}

// JobSummary is the list-view projection of a Job.
type JobSummary struct {
	ID        int64     `db:"id"         json:"id"`
	Title     string    `db:"title"      json:"title"`
	Status    string    `db:"status"     json:"status"`
	Progress  int       `db:"progress"   json:"progress"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ValidJobStatus reports whether s is one of the defined job statuses.
func ValidJobStatus(s string) bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}
