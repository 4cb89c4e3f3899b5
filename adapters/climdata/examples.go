package climdata

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"epiclim/domain/dataset"
	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/ports"
)

// Example names a canned retrieval: a source, a frequency and the subset to
// request.
type Example struct {
	Name      string
	Source    string
	Frequency string
	Request   ports.SubsetRequest
}

var exampleCities = []string{"London", "Los Angeles", "Paris", "Cape Town", "Istanbul"}

// Examples is the registry of canned retrievals the dashboard offers.
var Examples = map[string]Example{
	"isimip_cities": {
		Name:      "isimip_cities",
		Source:    "isimip",
		Frequency: "monthly",
		Request: ports.SubsetRequest{
			Years:     yearRange(2030, 2100),
			Locations: namedLocations(exampleCities),
		},
	},
	"isimip_cities_daily": {
		Name:      "isimip_cities_daily",
		Source:    "isimip",
		Frequency: "daily",
		Request: ports.SubsetRequest{
			Years:     yearRange(2030, 2100),
			Locations: namedLocations(exampleCities),
		},
	},
	"lens2_cities": {
		Name:      "lens2_cities",
		Source:    "lens2",
		Frequency: "monthly",
		Request: ports.SubsetRequest{
			Years:     yearRange(2030, 2100),
			Locations: namedLocations(exampleCities),
		},
	},
	"lens2_2030_2060_2090": {
		Name:      "lens2_2030_2060_2090",
		Source:    "lens2",
		Frequency: "monthly",
		Request: ports.SubsetRequest{
			Years: []int{2030, 2060, 2090},
		},
	},
}

// ExampleNames lists the registry in stable order.
func ExampleNames() []string {
	names := make([]string, 0, len(Examples))
	for name := range Examples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExampleStore retrieves example datasets through per-source getters.
type ExampleStore struct {
	getters map[string]*Getter
	logger  *internal.Logger
}

// NewExampleStore wires an example store. The getters map is keyed by source
// name (isimip, lens2).
func NewExampleStore(getters map[string]*Getter, logger *internal.Logger) *ExampleStore {
	return &ExampleStore{getters: getters, logger: logger}
}

// GetExampleDataset retrieves one example by name, from cache when already
// made.
func (s *ExampleStore) GetExampleDataset(ctx context.Context, name string) (*dataset.Dataset, error) {
	ex, ok := Examples[name]
	if !ok {
		return nil, errors.NotFound("example dataset " + name)
	}
	getter, ok := s.getters[ex.Source]
	if !ok {
		return nil, errors.ConfigInvalid("no climate source configured for " + ex.Source)
	}
	return getter.GetClimateData(ctx, ex.Name, ex.Request, ex.Frequency)
}

// MakeAllExamples retrieves every registered example. Failures, including
// subsetting timeouts, do not stop the remaining examples; they are collected
// and reported together at the end.
func (s *ExampleStore) MakeAllExamples(ctx context.Context) error {
	var failures []string
	for _, name := range ExampleNames() {
		s.logger.Info("Making example dataset %s", name)
		if _, err := s.GetExampleDataset(ctx, name); err != nil {
			s.logger.Warn("Example %s failed: %v", name, err)
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failures) > 0 {
		return errors.InternalError("some example datasets failed: " + strings.Join(failures, "; "))
	}
	return nil
}

func yearRange(from, to int) []int {
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years
}

func namedLocations(names []string) []ports.GeoPoint {
	out := make([]ports.GeoPoint, len(names))
	for i, name := range names {
		out[i] = ports.GeoPoint{Name: name}
	}
	return out
}
