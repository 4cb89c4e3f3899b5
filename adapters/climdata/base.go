// Package climdata orchestrates climate data retrieval: geocoding named
// locations, fetching archive subsets through a climate source, assembling
// the downloaded files into one dataset and caching the processed result.
package climdata

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"epiclim/domain/dataset"
	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/ports"
)

// Getter runs the retrieval pipeline for one climate source.
type Getter struct {
	source   ports.ClimateSource
	codec    ports.DatasetCodec
	geocoder ports.Geocoder
	cache    *FileCache
	logger   *internal.Logger
}

// NewGetter wires a retrieval pipeline. The geocoder may be nil when requests
// never carry unresolved location names.
func NewGetter(source ports.ClimateSource, codec ports.DatasetCodec, geocoder ports.Geocoder, cache *FileCache, logger *internal.Logger) *Getter {
	return &Getter{
		source:   source,
		codec:    codec,
		geocoder: geocoder,
		cache:    cache,
		logger:   logger,
	}
}

// GetClimateData returns the processed dataset for the named retrieval,
// reading it from the cache when present and otherwise downloading,
// assembling and caching it first.
func (g *Getter) GetClimateData(ctx context.Context, name string, req ports.SubsetRequest, frequency string) (*dataset.Dataset, error) {
	key := fmt.Sprintf("%s_%s_%s", g.source.Name(), name, frequency)
	if path, ok := g.cache.Lookup(key); ok {
		g.logger.Info("Using cached dataset %s", path)
		return g.codec.Read(path)
	}

	req = fillRequest(g.source.DefaultRequest(), req)
	if err := g.resolveLocations(ctx, req.Locations); err != nil {
		return nil, err
	}

	ds, err := g.retrieve(ctx, key, req, frequency)
	if err != nil {
		return nil, err
	}

	path, err := g.cache.WritePath(key)
	if err != nil {
		return nil, err
	}
	if err := g.codec.Write(path, ds); err != nil {
		return nil, err
	}
	g.logger.Info("Cached processed dataset %s", path)
	// Reopen so callers always see the persisted form.
	return g.codec.Read(path)
}

// fillRequest completes unset request fields from the source's defaults.
func fillRequest(defaults, req ports.SubsetRequest) ports.SubsetRequest {
	if len(req.Years) == 0 {
		req.Years = defaults.Years
	}
	if len(req.Scenarios) == 0 {
		req.Scenarios = defaults.Scenarios
	}
	if len(req.Models) == 0 {
		req.Models = defaults.Models
	}
	if len(req.Realizations) == 0 {
		req.Realizations = defaults.Realizations
	}
	if len(req.Variables) == 0 {
		req.Variables = defaults.Variables
	}
	return req
}

// resolveLocations geocodes locations given by name only, in place.
func (g *Getter) resolveLocations(ctx context.Context, locations []ports.GeoPoint) error {
	for i, loc := range locations {
		if loc.Lat != 0 || loc.Lon != 0 {
			continue
		}
		if g.geocoder == nil {
			return errors.ConfigInvalid("location " + loc.Name + " needs geocoding but no geocoder is configured")
		}
		point, err := g.geocoder.Geocode(ctx, loc.Name)
		if err != nil {
			return err
		}
		locations[i] = point
	}
	return nil
}

// retrieve downloads and assembles the dataset. With named locations each
// location is fetched independently, so one location's failure does not
// abort the others; failures are collected and reported together.
func (g *Getter) retrieve(ctx context.Context, key string, req ports.SubsetRequest, frequency string) (*dataset.Dataset, error) {
	rawDir := filepath.Join(g.cache.Dir(), "raw", key)

	if len(req.Locations) == 0 {
		files, err := g.source.FetchSubset(ctx, req, frequency, rawDir)
		if err != nil {
			return nil, err
		}
		ds, err := g.readFiles(files)
		if err != nil {
			return nil, err
		}
		return subsetYears(ds, req.Years)
	}

	var perLocation []*dataset.Dataset
	var failed []string
	for _, loc := range req.Locations {
		locReq := req
		locReq.Locations = []ports.GeoPoint{loc}
		ds, err := g.retrieveLocation(ctx, locReq, frequency, rawDir, loc)
		if err != nil {
			g.logger.Warn("Retrieval for %s failed: %v", loc.Name, err)
			failed = append(failed, fmt.Sprintf("%s (%v)", loc.Name, err))
			continue
		}
		perLocation = append(perLocation, ds)
	}
	if len(failed) > 0 {
		return nil, errors.ExternalServiceError(g.source.Name(),
			fmt.Errorf("retrieval failed for locations: %s", strings.Join(failed, "; ")))
	}
	return dataset.Concat("location", perLocation...)
}

func (g *Getter) retrieveLocation(ctx context.Context, req ports.SubsetRequest, frequency, rawDir string, loc ports.GeoPoint) (*dataset.Dataset, error) {
	files, err := g.source.FetchSubset(ctx, req, frequency, filepath.Join(rawDir, sanitizeKey(loc.Name)))
	if err != nil {
		return nil, err
	}
	ds, err := g.readFiles(files)
	if err != nil {
		return nil, err
	}
	ds, err = subsetYears(ds, req.Years)
	if err != nil {
		return nil, err
	}
	return locationDataset(ds, loc)
}

// readFiles reads the downloaded files and merges them into one dataset.
func (g *Getter) readFiles(files []string) (*dataset.Dataset, error) {
	if len(files) == 0 {
		return nil, errors.NotFound("downloaded climate data files")
	}
	dss := make([]*dataset.Dataset, 0, len(files))
	for _, path := range files {
		ds, err := g.codec.Read(path)
		if err != nil {
			return nil, err
		}
		dss = append(dss, ds)
	}
	return dataset.Merge(dss...), nil
}

// subsetYears narrows the time axis to samples falling in the requested
// years.
func subsetYears(ds *dataset.Dataset, years []int) (*dataset.Dataset, error) {
	if len(years) == 0 || ds.Coord("time") == nil {
		return ds, nil
	}
	times, err := ds.TimeValues()
	if err != nil {
		return nil, err
	}
	wanted := map[int]bool{}
	for _, y := range years {
		wanted[y] = true
	}
	var indices []int
	for i, t := range times {
		if wanted[t.Year()] {
			indices = append(indices, i)
		}
	}
	if len(indices) == len(times) {
		return ds, nil
	}
	if len(indices) == 0 {
		return nil, errors.NotFound("time samples in the requested years")
	}
	return ds.SelIndices("time", indices)
}

// locationDataset collapses the spatial grid to the point nearest the
// location and replaces the lat/lon dimensions with a length-one location
// dimension, so per-location datasets concatenate along "location".
func locationDataset(ds *dataset.Dataset, loc ports.GeoPoint) (*dataset.Dataset, error) {
	point, err := ds.SelNearest(loc.Lat, loc.Lon)
	if err != nil {
		return nil, err
	}
	// Spatial bounds are meaningless for a single named point.
	delete(point.Vars, "lat_bnds")
	delete(point.Vars, "lon_bnds")
	point, err = point.Squeeze("lat")
	if err != nil {
		return nil, err
	}
	point, err = point.Squeeze("lon")
	if err != nil {
		return nil, err
	}
	out := point.Copy()
	for name, v := range out.Vars {
		if dataset.IsBoundsVar(name) {
			continue
		}
		out.Vars[name] = v.ExpandDims("location")
	}
	out.SetCoord(dataset.NewLabelCoord("location", []string{loc.Name}))
	return out, nil
}

func sanitizeKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
