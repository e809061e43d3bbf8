package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vehiclereid/revid/internal/reid"
	"github.com/vehiclereid/revid/internal/render"
	"github.com/vehiclereid/revid/internal/store"
	"github.com/vehiclereid/revid/pkg/models"
)

// Progress checkpoints. Frame analysis fills the span between extraction
// and the 99 ceiling; only completion writes 100.
const (
	progressStarted   = 5
	progressExtracted = 10
	progressCeiling   = 99
)

// runJob drives one job through its full lifecycle. Any error or panic
// lands the job in failed with its progress frozen.
func (e *Engine) runJob(ctx context.Context, jobID int64) {
	logger := e.logger.With("job_id", jobID)

	ctx, cancel := context.WithTimeout(ctx, e.pipeline.JobTimeout)
	defer cancel()

	progress := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked", "panic", r)
			e.failJob(context.WithoutCancel(ctx), jobID, progress, "internal error")
		}
	}()

	if err := e.store.UpdateJobStatus(ctx, jobID, models.JobStatusProcessing); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			// Already terminal, e.g. failed by recovery before we got here.
			logger.Warn("skipping job not in queued state", "error", err)
			return
		}
		logger.Error("could not start job", "error", err)
		return
	}

	e.appendLog(jobID, "processing_started", "processing started", nil)
	progress = progressStarted
	e.writeProgress(ctx, jobID, progress)

	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		logger.Error("could not load job", "error", err)
		return
	}

	start := time.Now()
	logger.Info("job started", "filename", job.OriginalFilename)

	result, err := e.analyze(ctx, job, &progress)
	if err != nil {
		// The parent ctx survives job timeouts so failure is still recorded.
		e.failJob(context.WithoutCancel(ctx), jobID, progress, failureMessage(ctx, err))
		logger.Warn("job failed", "error", err, "duration", time.Since(start))
		return
	}

	if err := e.store.CreateAnalysisResult(ctx, result); err != nil {
		e.failJob(context.WithoutCancel(ctx), jobID, progress, "could not persist analysis result")
		logger.Error("persist result failed", "error", err)
		return
	}

	duration := time.Since(start)
	if err := e.store.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted, store.WithDuration(duration)); err != nil {
		logger.Error("complete job failed", "error", err)
		return
	}
	e.mirrorState(ctx, jobID, models.JobStatusCompleted, 100)
	e.appendLog(jobID, "job_completed", "job completed", map[string]any{
		"duration_ms":     duration.Milliseconds(),
		"unique_vehicles": result.Metrics["unique_vehicles"],
	})
	logger.Info("job completed", "duration", duration)
}

// analyze extracts frames, runs detection on each and assembles the result.
func (e *Engine) analyze(ctx context.Context, job *models.Job, progress *int) (*models.AnalysisResult, error) {
	frames, err := e.extractor.ExtractFrames(ctx, job.StoragePath, e.pipeline.FrameStride, e.pipeline.MaxFrames)
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	*progress = progressExtracted
	e.writeProgress(ctx, job.ID, *progress)
	e.appendLog(job.ID, "frames_extracted", fmt.Sprintf("extracted %d frames", len(frames)), map[string]any{
		"frame_count": len(frames),
		"stride":      e.pipeline.FrameStride,
	})

	detections := make([]models.FrameDetections, 0, len(frames))
	artifacts := make([]string, 0, e.pipeline.MaxArtifacts)
	lastProgressWrite := time.Now()

	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dets, err := e.analyzer.Detect(ctx, frame.Data)
		if err != nil {
			return nil, fmt.Errorf("detect frame %d: %w", frame.Index, err)
		}

		fd := models.FrameDetections{
			FrameIndex: frame.Index,
			Timestamp:  frame.Timestamp,
			Detections: dets,
		}

		if len(dets) > 0 && len(artifacts) < e.pipeline.MaxArtifacts {
			name := fmt.Sprintf("frame_%06d.jpg", frame.Index)
			if annotated, err := render.AnnotateJPEG(frame.Data, dets); err != nil {
				e.logger.Warn("annotate frame failed", "job_id", job.ID, "frame", frame.Index, "error", err)
			} else if err := e.artifacts.Save(job.ID, name, annotated); err != nil {
				e.logger.Warn("save artifact failed", "job_id", job.ID, "frame", frame.Index, "error", err)
			} else {
				fd.ArtifactName = name
				artifacts = append(artifacts, name)
			}
		}
		detections = append(detections, fd)

		done := i + 1
		if e.pipeline.LogEveryNFrames > 0 && done%e.pipeline.LogEveryNFrames == 0 {
			e.appendLog(job.ID, "frame_processed", fmt.Sprintf("processed %d/%d frames", done, len(frames)), map[string]any{
				"frames_done":  done,
				"frames_total": len(frames),
			})
		}

		pct := progressExtracted + (progressCeiling-progressExtracted)*done/len(frames)
		if pct > *progress && time.Since(lastProgressWrite) >= e.pipeline.ProgressInterval {
			*progress = pct
			lastProgressWrite = time.Now()
			e.writeProgress(ctx, job.ID, pct)
		}
	}

	groups := reid.Group(detections)
	metrics := reid.Metrics(detections)
	e.appendLog(job.ID, "analysis_aggregated", fmt.Sprintf("identified %d unique vehicles", len(groups)), map[string]any{
		"unique_vehicles": len(groups),
	})

	return &models.AnalysisResult{
		JobID:     job.ID,
		Summary:   summarize(groups, len(frames)),
		Metrics:   metrics,
		Raw:       detections,
		Artifacts: artifacts,
	}, nil
}

// writeProgress persists progress and mirrors it to the cache. The store
// clamps and keeps progress monotonic; errors only get logged because a
// missed progress tick is harmless.
func (e *Engine) writeProgress(ctx context.Context, jobID int64, progress int) {
	if progress > progressCeiling {
		progress = progressCeiling
	}
	if err := e.store.UpdateJobProgress(ctx, jobID, progress); err != nil {
		e.logger.Warn("progress update failed", "job_id", jobID, "error", err)
	}
	e.mirrorState(ctx, jobID, models.JobStatusProcessing, progress)
}

// failJob lands a job in failed state with its progress frozen where it was.
func (e *Engine) failJob(ctx context.Context, jobID int64, progress int, msg string) {
	if err := e.store.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(msg)); err != nil {
		e.logger.Error("fail job update failed", "job_id", jobID, "error", err)
		return
	}
	e.mirrorState(ctx, jobID, models.JobStatusFailed, progress)
	e.appendLog(jobID, "job_failed", msg, nil)
}

func (e *Engine) appendLog(jobID int64, event, message string, fields map[string]any) {
	if err := e.logs.Append(jobID, event, message, fields); err != nil {
		e.logger.Warn("append job log failed", "job_id", jobID, "event", event, "error", err)
	}
}

// failureMessage maps an internal error to the message stored on the job.
func failureMessage(ctx context.Context, err error) string {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "job timed out"
	case errors.Is(ctx.Err(), context.Canceled):
		return "interrupted by server shutdown"
	}
	return err.Error()
}

func summarize(groups []reid.VehicleGroup, frameCount int) string {
	identified := 0
	for _, g := range groups {
		if g.VehicleID != "" {
			identified++
		}
	}
	unmatched := len(groups) - identified
	s := fmt.Sprintf("%d unique vehicles identified across %d sampled frames", identified, frameCount)
	if unmatched > 0 {
		s += fmt.Sprintf(" (%d unmatched sightings)", unmatched)
	}
	return s
}
