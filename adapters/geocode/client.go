// Package geocode resolves place names to coordinates via the Nominatim
// (OpenStreetMap) search API.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"epiclim/internal"
	"epiclim/internal/errors"
	"epiclim/ports"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// Client implements ports.Geocoder against a Nominatim server.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *internal.Logger
	requests   *prometheus.CounterVec
}

// NewClient creates a Nominatim geocoding client. The user agent is required
// by Nominatim's usage policy.
func NewClient(baseURL, userAgent string, timeout time.Duration, logger *internal.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// WithMetrics attaches a request counter labeled by outcome.
func (c *Client) WithMetrics(requests *prometheus.CounterVec) *Client {
	c.requests = requests
	return c
}

// Geocode resolves a free-text place name to its best-match coordinates.
func (c *Client) Geocode(ctx context.Context, placeName string) (ports.GeoPoint, error) {
	point, err := c.geocode(ctx, placeName)
	if c.requests != nil {
		switch {
		case err == nil:
			c.requests.WithLabelValues("success").Inc()
		case errors.HasCode(err, errors.CodeNotFound):
			c.requests.WithLabelValues("empty").Inc()
		default:
			c.requests.WithLabelValues("error").Inc()
		}
	}
	return point, err
}

func (c *Client) geocode(ctx context.Context, placeName string) (ports.GeoPoint, error) {
	params := url.Values{
		"q":      {placeName},
		"format": {"jsonv2"},
		"limit":  {"1"},
	}
	fullURL := c.baseURL + "/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return ports.GeoPoint{}, errors.Wrap(err, "creating geocode request")
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.GeoPoint{}, errors.ExternalServiceError("geocoding", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ports.GeoPoint{}, errors.ExternalServiceError("geocoding",
			fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	var places []place
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return ports.GeoPoint{}, errors.Wrap(err, "decoding geocode response")
	}
	if len(places) == 0 {
		return ports.GeoPoint{}, errors.NotFound("place " + placeName)
	}

	p := places[0]
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return ports.GeoPoint{}, errors.Wrap(err, "parsing latitude")
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return ports.GeoPoint{}, errors.Wrap(err, "parsing longitude")
	}
	c.logger.Debug("Geocoded %q to (%.4f, %.4f)", placeName, lat, lon)
	return ports.GeoPoint{Name: placeName, Lat: lat, Lon: lon}, nil
}

// Nominatim response shape; coordinates arrive as strings.
type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}
