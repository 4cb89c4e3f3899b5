package climdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"epiclim/domain/dataset"
	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/internal/testkit"
	"epiclim/ports"
)

// memCodec keeps datasets in memory, keyed by path.
type memCodec struct {
	mu    sync.Mutex
	files map[string]*dataset.Dataset
}

func newMemCodec() *memCodec {
	return &memCodec{files: map[string]*dataset.Dataset{}}
}

func (c *memCodec) Read(path string) (*dataset.Dataset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ds, ok := c.files[path]
	if !ok {
		return nil, errors.NotFound("file " + path)
	}
	return ds.Copy(), nil
}

func (c *memCodec) Write(path string, ds *dataset.Dataset) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Touch a marker file so cache lookups based on the filesystem see it.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte("mem"), 0o644); err != nil {
		return err
	}
	c.files[path] = ds.Copy()
	return nil
}

// fakeSource serves a synthetic monthly grid per fetch and records the
// locations of every call.
type fakeSource struct {
	codec        *memCodec
	mu           sync.Mutex
	calls        [][]ports.GeoPoint
	failLocation string
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) DefaultRequest() ports.SubsetRequest {
	return ports.SubsetRequest{
		Years:     []int{2000, 2001},
		Variables: []string{"temperature"},
	}
}

func (s *fakeSource) FetchSubset(_ context.Context, req ports.SubsetRequest, _ string, dir string) ([]string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]ports.GeoPoint(nil), req.Locations...))
	n := len(s.calls)
	s.mu.Unlock()

	for _, loc := range req.Locations {
		if loc.Name == s.failLocation {
			return nil, errors.ExternalServiceError("fake", fmt.Errorf("subsetting %s failed", loc.Name))
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("part%d.nc", n))
	ds := testkit.GenerateDataset(testkit.Options{Frequency: "monthly"})
	if len(req.Years) > 0 && req.Years[0] != 2000 {
		if err := shiftYears(ds, req.Years[0]-2000); err != nil {
			return nil, err
		}
	}
	if err := s.codec.Write(path, ds); err != nil {
		return nil, err
	}
	return []string{path}, nil
}

// shiftYears moves the fixture's 2000-based time axis so its first sample
// falls in the requested start year.
func shiftYears(ds *dataset.Dataset, delta int) error {
	times, err := ds.TimeValues()
	if err != nil {
		return err
	}
	for i, ts := range times {
		times[i] = ts.AddDate(delta, 0, 0)
	}
	encoded, err := dataset.EncodeTimes(times, ds.TimeUnits())
	if err != nil {
		return err
	}
	ds.Coord("time").Values = encoded
	return nil
}

type fakeGeocoder struct {
	mu    sync.Mutex
	calls int
}

func (g *fakeGeocoder) Geocode(_ context.Context, name string) (ports.GeoPoint, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	return ports.GeoPoint{Name: name, Lat: 51.5, Lon: -0.13}, nil
}

func newTestGetter(t *testing.T) (*Getter, *fakeSource, *fakeGeocoder) {
	t.Helper()
	logger := internal.NewLogger(internal.LogLevelError)
	codec := newMemCodec()
	source := &fakeSource{codec: codec}
	geocoder := &fakeGeocoder{}
	cache, err := NewFileCache(t.TempDir(), logger)
	require.NoError(t, err)
	return NewGetter(source, codec, geocoder, cache, logger), source, geocoder
}

func cityRequest(names ...string) ports.SubsetRequest {
	return ports.SubsetRequest{Locations: namedLocations(names)}
}

func TestGetClimateData_AssemblesLocations(t *testing.T) {
	g, source, geocoder := newTestGetter(t)

	ds, err := g.GetClimateData(context.Background(), "cities", cityRequest("London", "Paris"), "monthly")
	require.NoError(t, err)

	loc := ds.Coord("location")
	require.NotNil(t, loc)
	assert.Equal(t, []string{"London", "Paris"}, loc.Labels)
	assert.False(t, ds.HasDim("lat"))
	assert.False(t, ds.HasDim("lon"))

	temp, ok := ds.Var("temperature")
	require.True(t, ok)
	assert.Equal(t, []string{"location", "time"}, temp.Dims)
	assert.Equal(t, []int{2, 15}, temp.Shape)

	assert.Equal(t, 2, geocoder.calls)
	// One independent fetch per location.
	assert.Len(t, source.calls, 2)
	assert.Equal(t, "London", source.calls[0][0].Name)
	assert.Equal(t, "Paris", source.calls[1][0].Name)
}

func TestGetClimateData_CachesProcessedDataset(t *testing.T) {
	g, source, _ := newTestGetter(t)
	ctx := context.Background()

	first, err := g.GetClimateData(ctx, "cities", cityRequest("London"), "monthly")
	require.NoError(t, err)
	fetches := len(source.calls)

	second, err := g.GetClimateData(ctx, "cities", cityRequest("London"), "monthly")
	require.NoError(t, err)
	assert.Len(t, source.calls, fetches, "cached read must not refetch")
	assert.Equal(t, first.VarNames(), second.VarNames())

	_, ok := g.cache.Lookup("fake_cities_monthly")
	assert.True(t, ok)
}

func TestGetClimateData_FailedLocationsReportedTogether(t *testing.T) {
	g, source, _ := newTestGetter(t)
	source.failLocation = "Paris"

	_, err := g.GetClimateData(context.Background(), "cities", cityRequest("London", "Paris"), "monthly")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeExternalService))
	assert.Contains(t, err.Error(), "Paris")
	// The failure must not have stopped the other location's fetch.
	assert.Len(t, source.calls, 2)
}

func TestGetClimateData_SubsetsRequestedYears(t *testing.T) {
	g, _, _ := newTestGetter(t)

	req := cityRequest("London")
	req.Years = []int{2000}
	ds, err := g.GetClimateData(context.Background(), "y2000", req, "monthly")
	require.NoError(t, err)

	// The monthly fixture holds 12 samples in 2000 and 3 in 2001.
	assert.Equal(t, 12, ds.Coord("time").Len())
	times, err := ds.TimeValues()
	require.NoError(t, err)
	for _, ts := range times {
		assert.Equal(t, 2000, ts.Year())
	}
}

func TestGetClimateData_FullGridWithoutLocations(t *testing.T) {
	g, _, _ := newTestGetter(t)

	ds, err := g.GetClimateData(context.Background(), "global", ports.SubsetRequest{}, "monthly")
	require.NoError(t, err)
	assert.True(t, ds.HasDim("lat"))
	assert.True(t, ds.HasDim("lon"))
	assert.Nil(t, ds.Coord("location"))
}

func TestExampleStore_MakeAllCollectsFailures(t *testing.T) {
	logger := internal.NewLogger(internal.LogLevelError)
	codec := newMemCodec()
	geocoder := &fakeGeocoder{}

	newGetterFor := func(fail string) *Getter {
		cache, err := NewFileCache(t.TempDir(), logger)
		require.NoError(t, err)
		return NewGetter(&fakeSource{codec: codec, failLocation: fail}, codec, geocoder, cache, logger)
	}

	store := NewExampleStore(map[string]*Getter{
		"isimip": newGetterFor("London"),
		"lens2":  newGetterFor(""),
	}, logger)

	err := store.MakeAllExamples(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "isimip_cities")
	assert.Contains(t, err.Error(), "isimip_cities_daily")
	assert.NotContains(t, err.Error(), "lens2_cities")
}

func TestExampleStore_UnknownExample(t *testing.T) {
	store := NewExampleStore(nil, internal.NewLogger(internal.LogLevelError))
	_, err := store.GetExampleDataset(context.Background(), "nope")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}

func TestExampleNames(t *testing.T) {
	names := ExampleNames()
	assert.Equal(t, []string{
		"isimip_cities", "isimip_cities_daily", "lens2_2030_2060_2090", "lens2_cities",
	}, names)
}
