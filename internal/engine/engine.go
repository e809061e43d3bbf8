// Package engine runs the batch analysis pipeline: it owns the job queue,
// the worker pool and the full lifecycle of a job from upload to result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vehiclereid/revid/internal/artifact"
	"github.com/vehiclereid/revid/internal/cache"
	"github.com/vehiclereid/revid/internal/config"
	"github.com/vehiclereid/revid/internal/joblog"
	"github.com/vehiclereid/revid/internal/store"
	"github.com/vehiclereid/revid/internal/video"
	"github.com/vehiclereid/revid/pkg/models"
)

var (
	// ErrQueueFull means the submission queue is at capacity; the client
	// should retry later.
	ErrQueueFull = errors.New("job queue full")
	// ErrResultNotReady means the job exists but has not completed yet.
	ErrResultNotReady = errors.New("analysis result not ready")
)

// jobStateTTL bounds how long a stale cached job state can outlive the row.
const jobStateTTL = 5 * time.Minute

// Dependencies holds everything the engine needs. All fields are required.
type Dependencies struct {
	Store     store.Store
	Cache     cache.Cache
	Logs      *joblog.Store
	Artifacts *artifact.Store
	Extractor video.Extractor
	Analyzer  models.FrameAnalyzer
	Logger    *slog.Logger
	VideoDir  string
	Pipeline  config.PipelineConfig
}

// Engine accepts submissions, runs jobs on a fixed worker pool and serves
// reads over jobs, results, logs and artifacts.
type Engine struct {
	store     store.Store
	cache     cache.Cache
	logs      *joblog.Store
	artifacts *artifact.Store
	extractor video.Extractor
	analyzer  models.FrameAnalyzer
	logger    *slog.Logger
	videoDir  string
	pipeline  config.PipelineConfig

	jobs chan int64
	wg   sync.WaitGroup
}

func New(deps Dependencies) (*Engine, error) {
	if err := os.MkdirAll(deps.VideoDir, 0o755); err != nil {
		return nil, fmt.Errorf("create video dir: %w", err)
	}
	return &Engine{
		store:     deps.Store,
		cache:     deps.Cache,
		logs:      deps.Logs,
		artifacts: deps.Artifacts,
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		logger:    deps.Logger,
		videoDir:  deps.VideoDir,
		pipeline:  deps.Pipeline,
		jobs:      make(chan int64, deps.Pipeline.QueueSize),
	}, nil
}

// Start launches the worker pool. Workers drain the queue until ctx is
// cancelled; Wait blocks until all of them have returned.
func (e *Engine) Start(ctx context.Context) {
	for i := 0; i < e.pipeline.MaxWorkers; i++ {
		e.wg.Add(1)
		go func(worker int) {
			defer e.wg.Done()
			logger := e.logger.With("worker", worker)
			logger.Info("worker started")
			for {
				select {
				case <-ctx.Done():
					logger.Info("worker stopped")
					return
				case jobID := <-e.jobs:
					e.runJob(ctx, jobID)
				}
			}
		}(i)
	}
}

// Wait blocks until every worker has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// RecoverOrphans reconciles persisted state with reality after a restart:
// jobs stuck in processing are failed (their worker is gone), queued jobs
// are put back on the queue.
func (e *Engine) RecoverOrphans(ctx context.Context) error {
	stuck, err := e.store.ListJobIDsByStatus(ctx, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("list processing jobs: %w", err)
	}
	for _, id := range stuck {
		msg := "interrupted by server restart"
		if err := e.store.UpdateJobStatus(ctx, id, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
			return fmt.Errorf("fail orphaned job %d: %w", id, err)
		}
		if err := e.logs.Append(id, "job_failed", msg, nil); err != nil {
			e.logger.Warn("append recovery log failed", "job_id", id, "error", err)
		}
		e.logger.Warn("orphaned job failed on recovery", "job_id", id)
	}

	queued, err := e.store.ListJobIDsByStatus(ctx, models.JobStatusQueued)
	if err != nil {
		return fmt.Errorf("list queued jobs: %w", err)
	}
	for _, id := range queued {
		select {
		case e.jobs <- id:
			e.logger.Info("queued job recovered", "job_id", id)
		default:
			return fmt.Errorf("recover queued job %d: %w", id, ErrQueueFull)
		}
	}
	return nil
}

// SubmitRequest carries the metadata accompanying an uploaded video.
type SubmitRequest struct {
	Title            string
	Description      *string
	OriginalFilename string
}

// Submit persists the upload, creates the job in queued state and enqueues
// it. Returns ErrQueueFull when the queue cannot take another job; in that
// case no job row is left behind in a runnable state.
func (e *Engine) Submit(ctx context.Context, upload io.Reader, req SubmitRequest) (*models.Job, error) {
	if len(e.jobs) >= cap(e.jobs) {
		return nil, ErrQueueFull
	}

	job := &models.Job{
		Title:            req.Title,
		Description:      req.Description,
		OriginalFilename: req.OriginalFilename,
		Status:           models.JobStatusQueued,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	path, size, err := e.saveUpload(job.ID, req.OriginalFilename, upload)
	if err != nil {
		e.failJob(ctx, job.ID, 0, "could not store uploaded video")
		return nil, err
	}
	if err := e.store.UpdateJobStoragePath(ctx, job.ID, path); err != nil {
		return nil, fmt.Errorf("set storage path: %w", err)
	}
	job.StoragePath = path

	if err := e.logs.Reset(job.ID); err != nil {
		e.logger.Warn("could not reset job log", "job_id", job.ID, "error", err)
	}
	e.appendLog(job.ID, "upload_saved", "uploaded video stored", map[string]any{
		"filename":   req.OriginalFilename,
		"size_bytes": size,
	})

	select {
	case e.jobs <- job.ID:
	default:
		// Lost the race for the last slot since the capacity check.
		e.failJob(ctx, job.ID, 0, "job queue full")
		return nil, ErrQueueFull
	}

	e.mirrorState(ctx, job.ID, models.JobStatusQueued, 0)
	e.logger.Info("job submitted", "job_id", job.ID, "filename", req.OriginalFilename)
	return job, nil
}

func (e *Engine) saveUpload(jobID int64, originalFilename string, upload io.Reader) (string, int64, error) {
	name := filepath.Base(originalFilename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "video"
	}

	dir := filepath.Join(e.videoDir, fmt.Sprintf("%d", jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create job video dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create video file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, upload)
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("write video file: %w", err)
	}
	return path, size, nil
}

// Get returns a job. Between throttled database writes the cache can hold a
// fresher progress value; prefer it when it is ahead.
func (e *Engine) Get(ctx context.Context, id int64) (*models.Job, error) {
	job, err := e.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.IsTerminal() {
		status, progress, ok, err := e.cache.GetJobState(ctx, id)
		if err != nil {
			e.logger.Warn("job state cache read failed", "job_id", id, "error", err)
		} else if ok && status == job.Status && progress > job.Progress {
			job.Progress = progress
		}
	}
	return job, nil
}

func (e *Engine) List(ctx context.Context, filter store.JobFilter) ([]*models.JobSummary, int, error) {
	return e.store.ListJobs(ctx, filter)
}

// GetResult returns the analysis result of a completed job. A job that is
// still queued or processing, or that failed, yields ErrResultNotReady.
func (e *Engine) GetResult(ctx context.Context, jobID int64) (*models.AnalysisResult, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: job is %s", ErrResultNotReady, job.Status)
	}
	return e.store.GetAnalysisResultByJobID(ctx, jobID)
}

// GetLogs returns the most recent log entries of an existing job.
func (e *Engine) GetLogs(ctx context.Context, jobID int64, limit int) ([]models.LogEntry, error) {
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return e.logs.Tail(jobID, limit)
}

// ListArtifacts returns the artifacts of an existing job.
func (e *Engine) ListArtifacts(ctx context.Context, jobID int64) ([]artifact.Ref, error) {
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return e.artifacts.List(jobID)
}

// OpenArtifact streams one artifact of an existing job.
func (e *Engine) OpenArtifact(ctx context.Context, jobID int64, filename string) (io.ReadCloser, string, error) {
	if _, err := e.store.GetJob(ctx, jobID); err != nil {
		return nil, "", err
	}
	return e.artifacts.Open(jobID, filename)
}

// mirrorState pushes job state to the cache. Best effort: the database row
// is authoritative and a cache miss only costs an extra query.
func (e *Engine) mirrorState(ctx context.Context, jobID int64, status string, progress int) {
	if err := e.cache.SetJobState(ctx, jobID, status, progress, jobStateTTL); err != nil {
		e.logger.Warn("job state cache write failed", "job_id", jobID, "error", err)
	}
}
