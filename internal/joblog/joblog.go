// Package joblog stores the append-only processing log of each job as one
// JSONL stream per job id. Entries are immutable once written and carry
// non-decreasing wall-clock timestamps.
package joblog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vehiclereid/revid/pkg/models"
)

// Store appends and reads per-job log entries under a base directory.
// Safe for concurrent use across jobs; entries within one job are written
// by that job's single worker.
type Store struct {
	dir string

	mu     sync.Mutex
	lastTS map[int64]float64
}

// NewStore creates the base directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Store{dir: dir, lastTS: make(map[int64]float64)}, nil
}

func (s *Store) path(jobID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("job_%d.log", jobID))
}

// Reset truncates a job's log stream. Called once when the job is created.
func (s *Store) Reset(jobID int64) error {
	s.mu.Lock()
	delete(s.lastTS, jobID)
	s.mu.Unlock()

	if err := os.WriteFile(s.path(jobID), nil, 0o644); err != nil {
		return fmt.Errorf("reset job log: %w", err)
	}
	return nil
}

// Append writes one entry stamped with the current time. Timestamps never
// decrease within a job even if the system clock steps backwards.
func (s *Store) Append(jobID int64, event, message string, fields map[string]any) error {
	s.mu.Lock()
	ts := float64(time.Now().UnixNano()) / float64(time.Second)
	if last := s.lastTS[jobID]; ts < last {
		ts = last
	}
	s.lastTS[jobID] = ts
	s.mu.Unlock()

	entry := models.LogEntry{
		Timestamp: ts,
		Event:     event,
		Message:   message,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	f, err := os.OpenFile(s.path(jobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open job log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append job log: %w", err)
	}
	return nil
}

// Tail returns the most recent entries for a job, in timestamp order,
// bounded by limit. An unknown job id yields an empty slice, not an error:
// a job may legitimately have no log yet.
func (s *Store) Tail(jobID int64, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	f, err := os.Open(s.path(jobID))
	if os.IsNotExist(err) {
		return []models.LogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open job log: %w", err)
	}
	defer f.Close()

	var entries []models.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			// A torn final line from a crash mid-write is skipped, not fatal.
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read job log: %w", err)
	}

	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}
