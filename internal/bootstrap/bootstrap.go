// Package bootstrap wires the climate data sources from configuration,
// shared by the dashboard and fetch binaries.
package bootstrap

import (
	"context"
	"path/filepath"

	"epiclim/adapters/climdata"
	"epiclim/adapters/climdata/isimip"
	"epiclim/adapters/climdata/lens2"
	"epiclim/adapters/geocode"
	"epiclim/adapters/netcdf"
	"epiclim/internal"
	"epiclim/internal/config"
	"epiclim/internal/observability"
	"epiclim/ports"
)

// BuildExampleStore assembles the per-source data getters behind the example
// registry: NetCDF codec, cached geocoder, ISIMIP subsetting client and the
// LENS2 bucket store, each with its own file cache under the cache directory.
func BuildExampleStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *internal.Logger) (*climdata.ExampleStore, error) {
	codec := netcdf.NewCodec()
	geocoder := geocode.NewCachedGeocoder(
		geocode.NewClient(cfg.Geocode.BaseURL, cfg.Geocode.UserAgent, cfg.Geocode.Timeout, logger).
			WithMetrics(metrics.GeocodeRequests),
		cfg.Geocode.CacheSize)

	isimipSource := isimip.NewClient(isimip.Config{
		BaseURL:         cfg.ISIMIP.BaseURL,
		PollInterval:    cfg.ISIMIP.PollInterval,
		Timeout:         cfg.ISIMIP.Timeout,
		DownloadRetries: cfg.ISIMIP.DownloadRetries,
	}, nil, logger).WithMetrics(metrics.SubsetPollCycles, metrics.FilesDownloaded)

	lens2Source, err := lens2.New(ctx, lens2.Config{
		Bucket:   cfg.LENS2.Bucket,
		Region:   cfg.LENS2.Region,
		Endpoint: cfg.LENS2.Endpoint,
	}, logger)
	if err != nil {
		return nil, err
	}

	getters := map[string]*climdata.Getter{}
	for name, source := range map[string]ports.ClimateSource{
		isimipSource.Name(): isimipSource,
		lens2Source.Name():  lens2Source,
	} {
		cache, err := climdata.NewFileCache(filepath.Join(cfg.Data.CacheDir, name), logger)
		if err != nil {
			return nil, err
		}
		cache.WithLookupMetric(metrics.CacheLookups)
		getters[name] = climdata.NewGetter(source, codec, geocoder, cache, logger)
	}
	return climdata.NewExampleStore(getters, logger), nil
}
