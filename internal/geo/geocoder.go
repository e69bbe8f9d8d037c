// Package geo resolves street addresses to coordinates through a
// Nominatim-compatible HTTP service.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fitbook/internal/config"
	"fitbook/internal/metrics"
	"fitbook/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ErrUnavailable marks transport or upstream failures, as opposed to an
// address that simply resolved to nothing.
var ErrUnavailable = errors.New("geocoding service unavailable")

type Geocoder interface {
	Geocode(ctx context.Context, addr models.Address) (*models.Coordinates, error)
}

// Client is a rate-limited Nominatim search client. Public instances demand
// one request per second, enforced here rather than left to callers.
type Client struct {
	baseURL     string
	userAgent   string
	countryBias string
	httpClient  *http.Client
	limiter     *rate.Limiter
	logger      *zerolog.Logger
}

func NewClient(cfg config.GeocoderConfig, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		countryBias: cfg.CountryCodeBias,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
		logger:  logger,
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves the address to coordinates. An address the service does
// not know yields nil, nil; infrastructure failures wrap ErrUnavailable.
func (c *Client) Geocode(ctx context.Context, addr models.Address) (*models.Coordinates, error) {
	if addr.Empty() {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("format", "json")
	query.Set("limit", "1")
	query.Set("street", strings.TrimSpace(addr.BuildingNumber+" "+addr.Street))
	if addr.ZipCode != "" {
		query.Set("postalcode", addr.ZipCode)
	}
	if addr.City != "" {
		query.Set("city", addr.City)
	}
	if c.countryBias != "" {
		query.Set("countrycodes", c.countryBias)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.IncGeocode("error")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.IncGeocode("error")
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		metrics.IncGeocode("error")
		return nil, fmt.Errorf("%w: bad response: %v", ErrUnavailable, err)
	}

	if len(results) == 0 {
		metrics.IncGeocode("not_found")
		c.logger.Debug().
			Str("city", addr.City).
			Str("street", addr.Street).
			Msg("address not found")
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad latitude %q", ErrUnavailable, results[0].Lat)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad longitude %q", ErrUnavailable, results[0].Lon)
	}

	metrics.IncGeocode("ok")
	return &models.Coordinates{Latitude: lat, Longitude: lon}, nil
}
