package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vehiclereid/revid/internal/api/handler"
	"github.com/vehiclereid/revid/internal/artifact"
	"github.com/vehiclereid/revid/internal/engine"
	"github.com/vehiclereid/revid/internal/store"
	"github.com/vehiclereid/revid/pkg/models"
)

// --- Mock Pipeline ---

type mockPipeline struct {
	job       *models.Job
	jobs      []*models.JobSummary
	total     int
	result    *models.AnalysisResult
	logs      []models.LogEntry
	artifacts []artifact.Ref
	content   string

	submitErr   error
	getErr      error
	resultErr   error
	artifactErr error
	gotSubmit   engine.SubmitRequest
	gotUpload   []byte
	gotFilter   store.JobFilter
	gotLogLimit int
	gotFilename string
}

func (m *mockPipeline) Submit(_ context.Context, upload io.Reader, req engine.SubmitRequest) (*models.Job, error) {
	m.gotSubmit = req
	m.gotUpload, _ = io.ReadAll(upload)
	return m.job, m.submitErr
}

func (m *mockPipeline) Get(_ context.Context, _ int64) (*models.Job, error) {
	return m.job, m.getErr
}

func (m *mockPipeline) List(_ context.Context, filter store.JobFilter) ([]*models.JobSummary, int, error) {
	m.gotFilter = filter
	return m.jobs, m.total, nil
}

func (m *mockPipeline) GetResult(_ context.Context, _ int64) (*models.AnalysisResult, error) {
	return m.result, m.resultErr
}

func (m *mockPipeline) GetLogs(_ context.Context, _ int64, limit int) ([]models.LogEntry, error) {
	m.gotLogLimit = limit
	return m.logs, m.getErr
}

func (m *mockPipeline) ListArtifacts(_ context.Context, _ int64) ([]artifact.Ref, error) {
	return m.artifacts, m.getErr
}

func (m *mockPipeline) OpenArtifact(_ context.Context, _ int64, filename string) (io.ReadCloser, string, error) {
	m.gotFilename = filename
	if m.artifactErr != nil {
		return nil, "", m.artifactErr
	}
	return io.NopCloser(strings.NewReader(m.content)), "image/jpeg", nil
}

// --- helpers ---

func multipartUpload(t *testing.T, filename, contentType, title string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write([]byte("not really a video"))
	require.NoError(t, err)

	if title != "" {
		require.NoError(t, w.WriteField("title", title))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func routeRequest(h http.HandlerFunc, pattern string, req *http.Request) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Handle(pattern, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func dataField(t *testing.T, w *httptest.ResponseRecorder) any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["data"]
}

// ========================================
// Submit
// ========================================

func TestSubmit_Accepted(t *testing.T) {
	mp := &mockPipeline{job: &models.Job{ID: 12, Title: "dashcam", Status: models.JobStatusQueued}}
	h := handler.NewSubmitHandler(mp)

	body, ct := multipartUpload(t, "dashcam.mp4", "video/mp4", "dashcam")
	req := httptest.NewRequest("POST", "/api/v1/videos", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := dataField(t, w).(map[string]any)
	assert.Equal(t, 12.0, data["id"])
	assert.Equal(t, "queued", data["status"])
	assert.Equal(t, "dashcam", mp.gotSubmit.Title)
	assert.Equal(t, "dashcam.mp4", mp.gotSubmit.OriginalFilename)
	assert.Equal(t, "not really a video", string(mp.gotUpload))
}

func TestSubmit_TitleDefaultsToFilename(t *testing.T) {
	mp := &mockPipeline{job: &models.Job{ID: 1}}
	h := handler.NewSubmitHandler(mp)

	body, ct := multipartUpload(t, "clip.mov", "video/quicktime", "")
	req := httptest.NewRequest("POST", "/api/v1/videos", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "clip.mov", mp.gotSubmit.Title)
}

func TestSubmit_RejectsNonVideo(t *testing.T) {
	mp := &mockPipeline{job: &models.Job{ID: 1}}
	h := handler.NewSubmitHandler(mp)

	body, ct := multipartUpload(t, "report.pdf", "application/pdf", "")
	req := httptest.NewRequest("POST", "/api/v1/videos", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", errCode(t, w))
}

func TestSubmit_MissingFilePart(t *testing.T) {
	h := handler.NewSubmitHandler(&mockPipeline{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("title", "no file"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/api/v1/videos", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, rec))
}

func TestSubmit_QueueFull(t *testing.T) {
	mp := &mockPipeline{submitErr: engine.ErrQueueFull}
	h := handler.NewSubmitHandler(mp)

	body, ct := multipartUpload(t, "clip.mp4", "video/mp4", "")
	req := httptest.NewRequest("POST", "/api/v1/videos", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "QUEUE_FULL", errCode(t, w))
}

// ========================================
// List
// ========================================

func TestListJobs_Pagination(t *testing.T) {
	mp := &mockPipeline{
		jobs:  []*models.JobSummary{{ID: 2}, {ID: 1}},
		total: 45,
	}
	h := handler.NewListJobsHandler(mp)

	req := httptest.NewRequest("GET", "/api/v1/videos?page=2&page_size=20&status=completed", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.JobFilter{Status: "completed", Page: 2, Limit: 20}, mp.gotFilter)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	meta := body["meta"].(map[string]any)
	assert.Equal(t, 2.0, meta["page"])
	assert.Equal(t, 45.0, meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

func TestListJobs_InvalidStatus(t *testing.T) {
	h := handler.NewListJobsHandler(&mockPipeline{})

	req := httptest.NewRequest("GET", "/api/v1/videos?status=exploded", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, w))
}

func TestListJobs_ClampsPageSize(t *testing.T) {
	mp := &mockPipeline{}
	h := handler.NewListJobsHandler(mp)

	req := httptest.NewRequest("GET", "/api/v1/videos?page_size=5000", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, 100, mp.gotFilter.Limit)
}

// ========================================
// Get / result / logs / artifacts
// ========================================

func TestGetJob_OK(t *testing.T) {
	mp := &mockPipeline{job: &models.Job{ID: 3, Status: models.JobStatusProcessing, Progress: 40}}
	req := httptest.NewRequest("GET", "/api/v1/videos/3", nil)
	w := routeRequest(handler.NewGetJobHandler(mp), "/api/v1/videos/{jobID}", req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataField(t, w).(map[string]any)
	assert.Equal(t, "processing", data["status"])
	assert.Equal(t, 40.0, data["progress"])
}

func TestGetJob_NotFound(t *testing.T) {
	mp := &mockPipeline{getErr: store.ErrNotFound}
	req := httptest.NewRequest("GET", "/api/v1/videos/99", nil)
	w := routeRequest(handler.NewGetJobHandler(mp), "/api/v1/videos/{jobID}", req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, w))
}

func TestGetJob_InvalidID(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/v1/videos/abc", nil)
	w := routeRequest(handler.NewGetJobHandler(&mockPipeline{}), "/api/v1/videos/{jobID}", req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errCode(t, w))
}

func TestResult_NotReady(t *testing.T) {
	mp := &mockPipeline{resultErr: engine.ErrResultNotReady}
	req := httptest.NewRequest("GET", "/api/v1/videos/3/result", nil)
	w := routeRequest(handler.NewResultHandler(mp), "/api/v1/videos/{jobID}/result", req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RESULT_NOT_READY", errCode(t, w))
}

func TestResult_OK(t *testing.T) {
	mp := &mockPipeline{result: &models.AnalysisResult{
		JobID:   3,
		Summary: "2 unique vehicles identified across 40 sampled frames",
		Metrics: map[string]float64{"unique_vehicles": 2},
	}}
	req := httptest.NewRequest("GET", "/api/v1/videos/3/result", nil)
	w := routeRequest(handler.NewResultHandler(mp), "/api/v1/videos/{jobID}/result", req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataField(t, w).(map[string]any)
	assert.Contains(t, data["summary"], "2 unique vehicles")
}

func TestLogs_LimitClamped(t *testing.T) {
	mp := &mockPipeline{logs: []models.LogEntry{{Event: "processing_started"}}}
	req := httptest.NewRequest("GET", "/api/v1/videos/3/logs?limit=99999", nil)
	w := routeRequest(handler.NewLogsHandler(mp), "/api/v1/videos/{jobID}/logs", req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1000, mp.gotLogLimit)
}

func TestListArtifacts_OK(t *testing.T) {
	mp := &mockPipeline{artifacts: []artifact.Ref{
		{Filename: "frame_000005.jpg", ContentType: "image/jpeg", SizeBytes: 1234},
	}}
	req := httptest.NewRequest("GET", "/api/v1/videos/3/artifacts", nil)
	w := routeRequest(handler.NewListArtifactsHandler(mp), "/api/v1/videos/{jobID}/artifacts", req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := dataField(t, w).([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "frame_000005.jpg", data[0].(map[string]any)["filename"])
}

func TestGetArtifact_StreamsBytes(t *testing.T) {
	mp := &mockPipeline{content: "jpeg bytes here"}
	req := httptest.NewRequest("GET", "/api/v1/videos/3/artifacts/frame_000005.jpg", nil)
	w := routeRequest(handler.NewGetArtifactHandler(mp), "/api/v1/videos/{jobID}/artifacts/{filename}", req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "jpeg bytes here", w.Body.String())
	assert.Equal(t, "frame_000005.jpg", mp.gotFilename)
}

func TestGetArtifact_NotFound(t *testing.T) {
	mp := &mockPipeline{artifactErr: artifact.ErrNotFound}
	req := httptest.NewRequest("GET", "/api/v1/videos/3/artifacts/nope.jpg", nil)
	w := routeRequest(handler.NewGetArtifactHandler(mp), "/api/v1/videos/{jobID}/artifacts/{filename}", req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errCode(t, w))
}
