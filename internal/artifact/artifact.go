// Package artifact persists generated job artifacts (annotated frame images)
// as one directory per job id.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("artifact not found")

// Ref describes one stored artifact.
type Ref struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Store writes and reads per-job artifacts under a base directory.
type Store struct {
	dir string
}

// NewStore creates the base directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) jobDir(jobID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d", jobID))
}

// Save writes one artifact. Filenames are unique within a job; a repeated
// name overwrites, which never happens during a single run.
func (s *Store) Save(jobID int64, filename string, data []byte) error {
	if err := validFilename(filename); err != nil {
		return err
	}
	dir := s.jobDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create job artifact dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

// List returns the artifacts of a job sorted by filename. A job without
// artifacts yields an empty slice.
func (s *Store) List(jobID int64) ([]Ref, error) {
	entries, err := os.ReadDir(s.jobDir(jobID))
	if os.IsNotExist(err) {
		return []Ref{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		refs = append(refs, Ref{
			Filename:    e.Name(),
			ContentType: contentType(e.Name()),
			SizeBytes:   info.Size(),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Filename < refs[j].Filename })
	return refs, nil
}

// Open returns a reader over one artifact's content and its content type.
// The caller closes the reader.
func (s *Store) Open(jobID int64, filename string) (io.ReadCloser, string, error) {
	if err := validFilename(filename); err != nil {
		return nil, "", err
	}
	f, err := os.Open(filepath.Join(s.jobDir(jobID), filename))
	if os.IsNotExist(err) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("open artifact: %w", err)
	}
	return f, contentType(filename), nil
}

func validFilename(filename string) error {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return ErrNotFound
	}
	return nil
}

func contentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
