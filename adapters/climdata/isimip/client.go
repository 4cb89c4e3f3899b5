// Package isimip retrieves climate projection data from the ISIMIP
// repository's server-side subsetting API.
package isimip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/ports"
)

const (
	defaultBaseURL = "https://files.isimip.org/api/v1"

	// maxBatchPaths is the server's cap on paths per subsetting job.
	maxBatchPaths = 1000

	// pointMargin is the half-width of the bounding box cut around a
	// geocoded point, in degrees.
	pointMargin = 0.25
)

// Job statuses reported by the subsetting API.
const (
	statusQueued   = "queued"
	statusStarted  = "started"
	statusFinished = "finished"
	statusFailed   = "failed"
)

var climateVars = map[string]string{
	"temperature":   "tas",
	"precipitation": "pr",
}

// Client fetches subsets of the ISIMIP climate projection archive. Jobs are
// submitted per location and path batch, then polled serially until finished
// or until the aggregate elapsed time exceeds the configured ceiling.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	clock           clockwork.Clock
	pollInterval    time.Duration
	timeout         time.Duration
	downloadRetries int
	logger          *internal.Logger
	pollCycles      prometheus.Counter
	downloads       prometheus.Counter
}

// Config holds the tunables of the ISIMIP client.
type Config struct {
	BaseURL         string
	PollInterval    time.Duration
	Timeout         time.Duration
	DownloadRetries int
}

// NewClient creates an ISIMIP client. A nil clock uses real time; tests
// inject a fake for deterministic poll loops.
func NewClient(cfg Config, clock clockwork.Clock, logger *internal.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Minute
	}
	if cfg.DownloadRetries <= 0 {
		cfg.DownloadRetries = 3
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		baseURL:         strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient:      &http.Client{Timeout: time.Minute},
		clock:           clock,
		pollInterval:    cfg.PollInterval,
		timeout:         cfg.Timeout,
		downloadRetries: cfg.DownloadRetries,
		logger:          logger,
	}
}

// WithMetrics attaches poll cycle and download counters.
func (c *Client) WithMetrics(pollCycles, downloads prometheus.Counter) *Client {
	c.pollCycles = pollCycles
	c.downloads = downloads
	return c
}

// Name implements ports.ClimateSource.
func (c *Client) Name() string { return "isimip" }

// DefaultRequest returns the full extent of the ISIMIP3b bias-adjusted
// projection archive this client understands.
func (c *Client) DefaultRequest() ports.SubsetRequest {
	years := make([]int, 0, 71)
	for y := 2030; y <= 2100; y++ {
		years = append(years, y)
	}
	return ports.SubsetRequest{
		Years:     years,
		Scenarios: []string{"ssp126", "ssp370", "ssp585"},
		Models: []string{
			"gfdl-esm4", "ipsl-cm6a-lr", "mpi-esm1-2-hr", "mri-esm2-0", "ukesm1-0-ll",
		},
		Variables: []string{"temperature", "precipitation"},
	}
}

// job tracks one submitted subsetting request.
type job struct {
	id       string
	location string
	paths    []string
	status   string
	fileURL  string
}

// FetchSubset downloads the requested subset into dir, one server-side
// cutout job per location and path batch. A failure in one location's jobs
// does not abort the others; all failures are reported together.
func (c *Client) FetchSubset(ctx context.Context, req ports.SubsetRequest, frequency string, dir string) ([]string, error) {
	paths, err := c.archivePaths(req, frequency)
	if err != nil {
		return nil, err
	}
	if len(req.Locations) == 0 {
		return nil, errors.UnsupportedConfig(
			"ISIMIP retrieval requires named locations; full-grid download is not supported")
	}

	var jobs []*job
	for _, loc := range req.Locations {
		for _, batch := range batchPaths(paths, maxBatchPaths) {
			j, err := c.submitJob(ctx, loc, batch)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, j)
		}
	}
	c.logger.Info("Submitted %d ISIMIP subsetting jobs", len(jobs))

	if err := c.awaitJobs(ctx, jobs); err != nil {
		return nil, err
	}

	files, err := c.downloadFinished(ctx, jobs, dir)
	if err != nil {
		return nil, err
	}
	if failed := failedLocations(jobs); len(failed) > 0 {
		return files, errors.ExternalServiceError("isimip",
			fmt.Errorf("subsetting failed for locations: %s", strings.Join(failed, ", ")))
	}
	return files, nil
}

// archivePaths lists the archive files covering the request. ISIMIP stores
// one file per model, scenario, variable and decade.
func (c *Client) archivePaths(req ports.SubsetRequest, frequency string) ([]string, error) {
	if frequency != "daily" && frequency != "monthly" {
		return nil, errors.UnsupportedConfig("ISIMIP provides daily and monthly data; got " + frequency)
	}
	defaults := c.DefaultRequest()
	models := req.Models
	if len(models) == 0 {
		models = defaults.Models
	}
	scenarios := req.Scenarios
	if len(scenarios) == 0 {
		scenarios = defaults.Scenarios
	}
	variables := req.Variables
	if len(variables) == 0 {
		variables = defaults.Variables
	}
	years := req.Years
	if len(years) == 0 {
		years = defaults.Years
	}

	var paths []string
	for _, model := range models {
		for _, scenario := range scenarios {
			for _, variable := range variables {
				short, ok := climateVars[variable]
				if !ok {
					return nil, errors.UnsupportedConfig("unknown climate variable " + variable)
				}
				for _, span := range decadeSpans(years) {
					paths = append(paths, fmt.Sprintf(
						"ISIMIP3b/InputData/climate/atmosphere/bias-adjusted/global/daily/%s/%s/%s_r1i1p1f1_w5e5_%s_%s_global_daily_%d_%d.nc",
						scenario, model, model, scenario, short, span[0], span[1],
					))
				}
			}
		}
	}
	return paths, nil
}

// decadeSpans returns the archive's decade file spans overlapping the
// requested years. Projection files align to 2021-2030, 2031-2040, ...;
// earlier years follow the 2011-2020 alignment (..., 2001-2010, 2011-2020).
func decadeSpans(years []int) [][2]int {
	seen := map[int]bool{}
	var spans [][2]int
	for _, y := range years {
		anchor := 2021
		if y < 2021 {
			anchor = 2011
		}
		start := anchor + floorDiv(y-anchor, 10)*10
		if !seen[start] {
			seen[start] = true
			spans = append(spans, [2]int{start, start + 9})
		}
	}
	return spans
}

// floorDiv divides rounding toward negative infinity, unlike Go's /.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func batchPaths(paths []string, size int) [][]string {
	var out [][]string
	for len(paths) > size {
		out = append(out, paths[:size])
		paths = paths[size:]
	}
	if len(paths) > 0 {
		out = append(out, paths)
	}
	return out
}

type jobResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	FileURL string `json:"file_url"`
}

func (c *Client) submitJob(ctx context.Context, loc ports.GeoPoint, paths []string) (*job, error) {
	body := map[string]interface{}{
		"task":  "cutout_bbox",
		"paths": paths,
		"bbox": []float64{
			loc.Lat - pointMargin, loc.Lat + pointMargin,
			loc.Lon - pointMargin, loc.Lon + pointMargin,
		},
	}
	resp, err := c.postJSON(ctx, c.baseURL+"/files/", body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("ISIMIP job %s submitted for %s (%d paths)", resp.ID, loc.Name, len(paths))
	return &job{
		id:       resp.ID,
		location: loc.Name,
		paths:    paths,
		status:   resp.Status,
		fileURL:  resp.FileURL,
	}, nil
}

// awaitJobs polls the submitted jobs serially, sleeping between sweeps,
// until every job is finished or failed or the aggregate elapsed time
// exceeds the ceiling. On timeout the error enumerates the pending jobs.
func (c *Client) awaitJobs(ctx context.Context, jobs []*job) error {
	start := c.clock.Now()
	for {
		if c.pollCycles != nil {
			c.pollCycles.Inc()
		}
		pending := 0
		for _, j := range jobs {
			if j.status == statusFinished || j.status == statusFailed {
				continue
			}
			if err := c.refreshJob(ctx, j); err != nil {
				return err
			}
			if j.status != statusFinished && j.status != statusFailed {
				pending++
			}
		}
		if pending == 0 {
			return nil
		}
		if c.clock.Since(start) > c.timeout {
			var ids []string
			for _, j := range jobs {
				if j.status != statusFinished && j.status != statusFailed {
					ids = append(ids, fmt.Sprintf("%s (%s/files/%s/)", j.id, c.baseURL, j.id))
				}
			}
			return errors.Timeout(fmt.Sprintf(
				"ISIMIP subsetting timed out after %s with %d jobs pending: %s",
				c.timeout, len(ids), strings.Join(ids, ", ")))
		}
		c.logger.Debug("%d ISIMIP jobs pending, sleeping %s", pending, c.pollInterval)
		c.clock.Sleep(c.pollInterval)
	}
}

func (c *Client) refreshJob(ctx context.Context, j *job) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+j.id+"/", nil)
	if err != nil {
		return errors.Wrap(err, "creating job status request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.ExternalServiceError("isimip", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errors.ExternalServiceError("isimip",
			fmt.Errorf("job status %s: %d: %s", j.id, resp.StatusCode, body))
	}
	var jr jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return errors.Wrap(err, "decoding job status")
	}
	j.status = jr.Status
	if jr.FileURL != "" {
		j.fileURL = jr.FileURL
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, url string, body interface{}) (*jobResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding job request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "creating job request")
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.ExternalServiceError("isimip", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, errors.ExternalServiceError("isimip",
			fmt.Errorf("job submission: %d: %s", resp.StatusCode, b))
	}
	var jr jobResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		return nil, errors.Wrap(err, "decoding job submission response")
	}
	return &jr, nil
}

// downloadFinished fetches every finished job's output file, retrying
// transient failures a bounded number of times.
func (c *Client) downloadFinished(ctx context.Context, jobs []*job, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating download directory")
	}
	var files []string
	for _, j := range jobs {
		if j.status != statusFinished {
			continue
		}
		if j.fileURL == "" {
			return nil, errors.ExternalServiceError("isimip",
				fmt.Errorf("job %s finished without a file URL", j.id))
		}
		name := fmt.Sprintf("%s_%s", sanitize(j.location), filepath.Base(j.fileURL))
		dest := filepath.Join(dir, name)
		if err := c.downloadFile(ctx, j.fileURL, dest); err != nil {
			return nil, err
		}
		if c.downloads != nil {
			c.downloads.Inc()
		}
		files = append(files, dest)
	}
	return files, nil
}

func (c *Client) downloadFile(ctx context.Context, url, dest string) error {
	var lastErr error
	for attempt := 1; attempt <= c.downloadRetries; attempt++ {
		lastErr = c.tryDownload(ctx, url, dest)
		if lastErr == nil {
			return nil
		}
		c.logger.Warn("Download attempt %d/%d for %s failed: %v", attempt, c.downloadRetries, url, lastErr)
		c.clock.Sleep(c.pollInterval)
	}
	return errors.Wrap(lastErr, "downloading "+url)
}

func (c *Client) tryDownload(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func failedLocations(jobs []*job) []string {
	seen := map[string]bool{}
	var failed []string
	for _, j := range jobs {
		if j.status == statusFailed && !seen[j.location] {
			seen[j.location] = true
			failed = append(failed, j.location)
		}
	}
	return failed
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
