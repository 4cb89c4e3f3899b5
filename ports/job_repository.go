package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// FetchJobStatus enumerates the lifecycle of a remote data-retrieval job.
type FetchJobStatus string

const (
	FetchJobPending   FetchJobStatus = "pending"
	FetchJobRunning   FetchJobStatus = "running"
	FetchJobCompleted FetchJobStatus = "completed"
	FetchJobFailed    FetchJobStatus = "failed"
)

// FetchJob records one climate-data retrieval, so repeated dashboard
// sessions can see what has already been downloaded and what failed.
type FetchJob struct {
	ID          uuid.UUID      `db:"id"`
	Source      string         `db:"source"`
	DatasetName string         `db:"dataset_name"`
	Status      FetchJobStatus `db:"status"`
	Error       string         `db:"error"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// JobRepository persists fetch jobs.
type JobRepository interface {
	Create(ctx context.Context, job *FetchJob) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status FetchJobStatus, errorMsg string) error
	Get(ctx context.Context, id uuid.UUID) (*FetchJob, error)
	ListRecent(ctx context.Context, limit int) ([]*FetchJob, error)
}
