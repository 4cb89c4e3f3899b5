package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epiclim/adapters/climdata"
	"epiclim/domain/dataset"
	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/internal/observability"
	"epiclim/internal/testkit"
	"epiclim/ports"
)

// memJobs is an in-memory JobRepository.
type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*ports.FetchJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[uuid.UUID]*ports.FetchJob{}}
}

func (r *memJobs) Create(_ context.Context, job *ports.FetchJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *memJobs) UpdateStatus(_ context.Context, id uuid.UUID, status ports.FetchJobStatus, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return errors.NotFound("fetch job")
	}
	job.Status = status
	job.Error = errorMsg
	return nil
}

func (r *memJobs) Get(_ context.Context, id uuid.UUID) (*ports.FetchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.NotFound("fetch job")
	}
	copied := *job
	return &copied, nil
}

func (r *memJobs) ListRecent(_ context.Context, limit int) ([]*ports.FetchJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ports.FetchJob
	for _, job := range r.jobs {
		copied := *job
		out = append(out, &copied)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// stubCodec keeps datasets in memory and touches marker files for the cache.
type stubCodec struct {
	mu    sync.Mutex
	files map[string]*dataset.Dataset
}

func (c *stubCodec) Read(path string) (*dataset.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.files[path]
	if !ok {
		return nil, errors.NotFound("file " + path)
	}
	return ds.Copy(), nil
}

func (c *stubCodec) Write(path string, ds *dataset.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("mem"), 0o644); err != nil {
		return err
	}
	c.files[path] = ds.Copy()
	return nil
}

// stubSource serves the monthly fixture grid, shifted into the first
// requested year, and fails entirely when broken.
type stubSource struct {
	codec  *stubCodec
	broken bool
	n      int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) DefaultRequest() ports.SubsetRequest {
	return ports.SubsetRequest{Years: []int{2000, 2001}, Variables: []string{"temperature"}}
}

func (s *stubSource) FetchSubset(_ context.Context, req ports.SubsetRequest, _ string, dir string) ([]string, error) {
	if s.broken {
		return nil, errors.ExternalServiceError("stub", fmt.Errorf("unreachable"))
	}
	s.n++
	ds := testkit.GenerateDataset(testkit.Options{Frequency: "monthly"})
	if len(req.Years) > 0 && req.Years[0] != 2000 {
		times, err := ds.TimeValues()
		if err != nil {
			return nil, err
		}
		for i, ts := range times {
			times[i] = ts.AddDate(req.Years[0]-2000, 0, 0)
		}
		encoded, err := dataset.EncodeTimes(times, ds.TimeUnits())
		if err != nil {
			return nil, err
		}
		ds.Coord("time").Values = encoded
	}
	path := filepath.Join(dir, fmt.Sprintf("part%d.nc", s.n))
	if err := s.codec.Write(path, ds); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(_ context.Context, name string) (ports.GeoPoint, error) {
	return ports.GeoPoint{Name: name, Lat: 51.5, Lon: -0.13}, nil
}

func newClimateService(t *testing.T, broken bool) (*ClimateService, *memJobs) {
	t.Helper()
	logger := internal.NewLogger(internal.LogLevelError)
	codec := &stubCodec{files: map[string]*dataset.Dataset{}}
	source := &stubSource{codec: codec, broken: broken}

	newGetter := func() *climdata.Getter {
		cache, err := climdata.NewFileCache(t.TempDir(), logger)
		require.NoError(t, err)
		return climdata.NewGetter(source, codec, stubGeocoder{}, cache, logger)
	}
	store := climdata.NewExampleStore(map[string]*climdata.Getter{
		"isimip": newGetter(),
		"lens2":  newGetter(),
	}, logger)

	jobs := newMemJobs()
	return NewClimateService(store, jobs, observability.NewMetricsForTesting(), logger), jobs
}

func TestGetDataset_RecordsCompletedJob(t *testing.T) {
	svc, jobs := newClimateService(t, false)

	ds, err := svc.GetDataset(context.Background(), "isimip_cities")
	require.NoError(t, err)
	assert.Equal(t, []string{"London", "Los Angeles", "Paris", "Cape Town", "Istanbul"},
		ds.Coord("location").Labels)

	recent, err := jobs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ports.FetchJobCompleted, recent[0].Status)
	assert.Equal(t, "isimip", recent[0].Source)
	assert.Empty(t, recent[0].Error)
}

func TestGetDataset_RecordsFailedJob(t *testing.T) {
	svc, jobs := newClimateService(t, true)

	_, err := svc.GetDataset(context.Background(), "isimip_cities")
	require.Error(t, err)

	recent, err := jobs.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, ports.FetchJobFailed, recent[0].Status)
	assert.NotEmpty(t, recent[0].Error)
}

func TestGetDataset_WorksWithoutJobRepository(t *testing.T) {
	svc, _ := newClimateService(t, false)
	svc.jobs = nil

	_, err := svc.GetDataset(context.Background(), "lens2_cities")
	require.NoError(t, err)

	recent, err := svc.RecentJobs(context.Background(), 10)
	require.NoError(t, err)
	assert.Nil(t, recent)
}

func TestListExamples(t *testing.T) {
	svc, _ := newClimateService(t, false)
	assert.Contains(t, svc.ListExamples(), "lens2_2030_2060_2090")
}

func TestInspectScope(t *testing.T) {
	svc, _ := newClimateService(t, false)
	ds := testkit.GenerateDataset(testkit.Options{
		Frequency:    "daily",
		Realizations: []string{"r1", "r2"},
	})
	scope := svc.InspectScope(ds)
	assert.Equal(t, dataset.TemporalDaily, scope.Temporal)
	assert.Equal(t, dataset.SpatialGrid, scope.Spatial)
	assert.Equal(t, 2, scope.Realizations)
}
