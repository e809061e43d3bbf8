package models

// LogEntry is one append-only event in a job's processing log.
// Timestamps are wall-clock seconds and non-decreasing within a job.
type LogEntry struct {
	Timestamp float64        `json:"timestamp"`
	Event     string         `json:"event"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}
