package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"epiclim/adapters/climdata"
	"epiclim/domain/dataset"
	"epiclim/internal"
	"epiclim/internal/observability"
	"epiclim/ports"
)

// ClimateService orchestrates example dataset retrieval, recording fetch
// jobs and metrics around the data-getter pipeline.
type ClimateService struct {
	examples *climdata.ExampleStore
	jobs     ports.JobRepository
	metrics  *observability.Metrics
	logger   *internal.Logger
}

// NewClimateService creates the climate data service. The job repository may
// be nil when no database is configured.
func NewClimateService(examples *climdata.ExampleStore, jobs ports.JobRepository, metrics *observability.Metrics, logger *internal.Logger) *ClimateService {
	return &ClimateService{
		examples: examples,
		jobs:     jobs,
		metrics:  metrics,
		logger:   logger,
	}
}

// ListExamples returns the available example dataset names.
func (s *ClimateService) ListExamples() []string {
	return climdata.ExampleNames()
}

// GetDataset retrieves an example dataset, tracking the retrieval as a fetch
// job when a repository is configured.
func (s *ClimateService) GetDataset(ctx context.Context, name string) (*dataset.Dataset, error) {
	jobID, err := s.startJob(ctx, name)
	if err != nil {
		return nil, err
	}

	s.metrics.FetchJobsStarted.Inc()
	s.metrics.RetrievalRunning.Set(1)
	start := time.Now()
	ds, err := s.examples.GetExampleDataset(ctx, name)
	s.metrics.RetrievalRunning.Set(0)
	s.metrics.RetrievalDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.FetchJobsFailed.Inc()
		s.finishJob(ctx, jobID, ports.FetchJobFailed, err.Error())
		return nil, err
	}
	s.finishJob(ctx, jobID, ports.FetchJobCompleted, "")
	return ds, nil
}

// MakeAllExamples retrieves every example dataset, reporting failures
// together.
func (s *ClimateService) MakeAllExamples(ctx context.Context) error {
	return s.examples.MakeAllExamples(ctx)
}

// InspectScope derives the ensemble and temporal scope of a dataset, used by
// the dashboard to decide which analyses apply.
func (s *ClimateService) InspectScope(ds *dataset.Dataset) dataset.Scope {
	return dataset.DeriveScope(ds)
}

// RecentJobs lists recent fetch jobs, or nothing when no repository is
// configured.
func (s *ClimateService) RecentJobs(ctx context.Context, limit int) ([]*ports.FetchJob, error) {
	if s.jobs == nil {
		return nil, nil
	}
	return s.jobs.ListRecent(ctx, limit)
}

func (s *ClimateService) startJob(ctx context.Context, name string) (uuid.UUID, error) {
	if s.jobs == nil {
		return uuid.Nil, nil
	}
	job := &ports.FetchJob{
		ID:          uuid.New(),
		Source:      sourceOf(name),
		DatasetName: name,
		Status:      ports.FetchJobRunning,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return uuid.Nil, err
	}
	return job.ID, nil
}

func (s *ClimateService) finishJob(ctx context.Context, id uuid.UUID, status ports.FetchJobStatus, errMsg string) {
	if s.jobs == nil || id == uuid.Nil {
		return
	}
	if err := s.jobs.UpdateStatus(ctx, id, status, errMsg); err != nil {
		s.logger.Warn("Updating fetch job %s failed: %v", id, err)
	}
}

func sourceOf(example string) string {
	if ex, ok := climdata.Examples[example]; ok {
		return ex.Source
	}
	return "unknown"
}
