package store

import (
	"context"
	"errors"
	"time"

	"github.com/vehiclereid/revid/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
// It is the single source of truth for job status and progress; only the
// engine worker that owns a job id mutates that job's row.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.JobSummary, int, error)
	UpdateJobStatus(ctx context.Context, id int64, status string, opts ...JobUpdateOption) error
	UpdateJobProgress(ctx context.Context, id int64, progress int) error
	ListJobIDsByStatus(ctx context.Context, status string) ([]int64, error)
	UpdateJobStoragePath(ctx context.Context, id int64, path string) error

	CreateAnalysisResult(ctx context.Context, result *models.AnalysisResult) error
	GetAnalysisResultByJobID(ctx context.Context, jobID int64) (*models.AnalysisResult, error)
}

// JobFilter narrows and pages a job listing. Status is optional.
type JobFilter struct {
	Status string
	Page   int
	Limit  int
}

// JobUpdateParams holds the optional fields of a status update. Exported so
// alternative Store implementations can resolve options the same way.
type JobUpdateParams struct {
	ErrorMessage *string
	Duration     *time.Duration
}

type JobUpdateOption func(*JobUpdateParams)

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithDuration(d time.Duration) JobUpdateOption {
	return func(p *JobUpdateParams) {
		p.Duration = &d
	}
}

// ApplyJobUpdateOptions resolves options into their parameter values.
func ApplyJobUpdateOptions(opts []JobUpdateOption) JobUpdateParams {
	var params JobUpdateParams
	for _, opt := range opts {
		opt(&params)
	}
	return params
}
