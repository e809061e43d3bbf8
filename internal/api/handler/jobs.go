// Package handler contains the HTTP handlers for the public API.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vehiclereid/revid/internal/api/response"
	"github.com/vehiclereid/revid/internal/artifact"
	"github.com/vehiclereid/revid/internal/engine"
	"github.com/vehiclereid/revid/internal/store"
	"github.com/vehiclereid/revid/pkg/models"
)

// maxUploadMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxUploadMemory = 32 << 20

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// Pipeline is the interface the job handlers depend on.
type Pipeline interface {
	Submit(ctx context.Context, upload io.Reader, req engine.SubmitRequest) (*models.Job, error)
	Get(ctx context.Context, id int64) (*models.Job, error)
	List(ctx context.Context, filter store.JobFilter) ([]*models.JobSummary, int, error)
	GetResult(ctx context.Context, jobID int64) (*models.AnalysisResult, error)
	GetLogs(ctx context.Context, jobID int64, limit int) ([]models.LogEntry, error)
	ListArtifacts(ctx context.Context, jobID int64) ([]artifact.Ref, error)
	OpenArtifact(ctx context.Context, jobID int64, filename string) (io.ReadCloser, string, error)
}

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
}

// NewSubmitHandler returns the handler for POST /api/v1/videos. The upload
// is a multipart form with a "file" part plus optional title and description.
func NewSubmitHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Expected a multipart form upload", nil)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "file part is required", nil)
			return
		}
		defer file.Close()

		if !looksLikeVideo(header.Header.Get("Content-Type"), header.Filename) {
			response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE",
				"Uploaded file does not look like a video", nil)
			return
		}

		title := strings.TrimSpace(r.FormValue("title"))
		if title == "" {
			title = header.Filename
		}
		var description *string
		if d := strings.TrimSpace(r.FormValue("description")); d != "" {
			description = &d
		}

		job, err := p.Submit(r.Context(), file, engine.SubmitRequest{
			Title:            title,
			Description:      description,
			OriginalFilename: header.Filename,
		})
		if err != nil {
			if errors.Is(err, engine.ErrQueueFull) {
				response.Error(w, http.StatusServiceUnavailable, "QUEUE_FULL",
					"The processing queue is full, retry later", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not accept the upload", nil)
			return
		}

		response.Accepted(w, job)
	}
}

// NewListJobsHandler returns the handler for GET /api/v1/videos.
func NewListJobsHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		if page < 1 {
			page = 1
		}
		pageSize := queryInt(r, "page_size", defaultPageSize)
		if pageSize < 1 {
			pageSize = defaultPageSize
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		status := r.URL.Query().Get("status")
		if status != "" && !models.ValidJobStatus(status) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of queued, processing, completed, failed", nil)
			return
		}

		jobs, total, err := p.List(r.Context(), store.JobFilter{
			Status: status,
			Page:   page,
			Limit:  pageSize,
		})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Could not list jobs", nil)
			return
		}

		response.Collection(w, jobs, response.PaginationMeta{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
			HasNext:  page*pageSize < total,
		})
	}
}

// NewGetJobHandler returns the handler for GET /api/v1/videos/{jobID}.
func NewGetJobHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := p.Get(r.Context(), jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewResultHandler returns the handler for GET /api/v1/videos/{jobID}/result.
func NewResultHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		result, err := p.GetResult(r.Context(), jobID)
		if err != nil {
			if errors.Is(err, engine.ErrResultNotReady) {
				response.Error(w, http.StatusConflict, "RESULT_NOT_READY",
					"The job has not completed yet", nil)
				return
			}
			writeJobError(w, err)
			return
		}
		response.JSON(w, result)
	}
}

// NewLogsHandler returns the handler for GET /api/v1/videos/{jobID}/logs.
func NewLogsHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		limit := queryInt(r, "limit", defaultLogLimit)
		if limit < 1 {
			limit = defaultLogLimit
		}
		if limit > maxLogLimit {
			limit = maxLogLimit
		}

		entries, err := p.GetLogs(r.Context(), jobID, limit)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, entries)
	}
}

// NewListArtifactsHandler returns the handler for GET /api/v1/videos/{jobID}/artifacts.
func NewListArtifactsHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		refs, err := p.ListArtifacts(r.Context(), jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, refs)
	}
}

// NewGetArtifactHandler returns the handler for
// GET /api/v1/videos/{jobID}/artifacts/{filename}. It streams the raw bytes,
// not an envelope.
func NewGetArtifactHandler(p Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		rc, contentType, err := p.OpenArtifact(r.Context(), jobID, chi.URLParam(r, "filename"))
		if err != nil {
			if errors.Is(err, artifact.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Artifact not found", nil)
				return
			}
			writeJobError(w, err)
			return
		}
		defer rc.Close()

		w.Header().Set("Content-Type", contentType)
		io.Copy(w, rc)
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil || id < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func writeJobError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func looksLikeVideo(contentType, filename string) bool {
	if strings.HasPrefix(contentType, "video/") {
		return true
	}
	return videoExtensions[strings.ToLower(filepath.Ext(filename))]
}
