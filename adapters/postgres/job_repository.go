package postgres

import (
	"context"
	"time"

	"epiclim/ports"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// JobRepositoryImpl implements JobRepository for PostgreSQL
type JobRepositoryImpl struct {
	db *sqlx.DB
}

// NewJobRepository creates a new PostgreSQL fetch job repository
func NewJobRepository(db *sqlx.DB) ports.JobRepository {
	return &JobRepositoryImpl{db: db}
}

// Create inserts a new fetch job record
func (r *JobRepositoryImpl) Create(ctx context.Context, job *ports.FetchJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = ports.FetchJobPending
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fetch_jobs (id, source, dataset_name, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.Source, job.DatasetName, job.Status, job.Error, job.CreatedAt, job.UpdatedAt)
	return err
}

// UpdateStatus transitions a fetch job and records its error message, if any
func (r *JobRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, status ports.FetchJobStatus, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fetch_jobs
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, errorMsg)
	return err
}

// Get retrieves a fetch job by ID
func (r *JobRepositoryImpl) Get(ctx context.Context, id uuid.UUID) (*ports.FetchJob, error) {
	var job ports.FetchJob
	err := r.db.GetContext(ctx, &job, `
		SELECT id, source, dataset_name, status, error, created_at, updated_at
		FROM fetch_jobs
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListRecent returns the most recently created fetch jobs
func (r *JobRepositoryImpl) ListRecent(ctx context.Context, limit int) ([]*ports.FetchJob, error) {
	query := `
		SELECT id, source, dataset_name, status, error, created_at, updated_at
		FROM fetch_jobs
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var jobs []*ports.FetchJob
	if err := r.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, err
	}
	return jobs, nil
}
