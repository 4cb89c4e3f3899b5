package ports

import (
	"context"

	"epiclim/domain/dataset"
)

// SubsetRequest describes the slice of a climate projection archive to
// retrieve.
type SubsetRequest struct {
	Years     []int
	Scenarios []string
	Models    []string
	// Realizations selects ensemble members by index. Empty means all
	// members the source provides.
	Realizations []int
	// Locations are named places resolved via geocoding; empty means the full
	// spatial grid.
	Locations []GeoPoint
	// Variables are climate variable names (temperature, precipitation).
	Variables []string
}

// ClimateSource retrieves a subset of a remote climate data archive and
// returns the local paths of the downloaded files, one per model/scenario
// (and location, for location-subset requests).
type ClimateSource interface {
	// Name identifies the source (isimip, lens2).
	Name() string
	// DefaultRequest returns the source's full available extent, used to
	// fill unset SubsetRequest fields.
	DefaultRequest() SubsetRequest
	// FetchSubset downloads the requested subset into dir.
	FetchSubset(ctx context.Context, req SubsetRequest, frequency string, dir string) ([]string, error)
}

// DatasetCodec persists datasets to files and reads them back.
type DatasetCodec interface {
	Read(path string) (*dataset.Dataset, error)
	Write(path string, ds *dataset.Dataset) error
}
