package gmaps

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"
)

// Status normalizes provider outcomes. Zero results and a missing
// credential are normal states, not errors.
type Status string

const (
	StatusOK            Status = "ok"
	StatusZeroResults   Status = "zero_results"
	StatusNotConfigured Status = "not_configured"
)

// Place is one raw provider match.
type Place struct {
	Name      string
	Address   string
	PlaceID   string
	Latitude  *float64
	Longitude *float64
	Raw       json.RawMessage
}

type SearchResult struct {
	Status Status
	Places []Place
}

// API is the provider surface the resolution pipeline depends on.
type API interface {
	SearchByText(ctx context.Context, query string) (SearchResult, error)
	DetailsByPlaceID(ctx context.Context, placeID string) (SearchResult, error)
	ReverseGeocode(ctx context.Context, lat, lng float64) (SearchResult, error)
}

const defaultCallTimeout = 15 * time.Second

type Client struct {
	mc       *maps.Client
	language string
	region   string
	timeout  time.Duration
	logger   *zap.Logger
}

var _ API = (*Client)(nil)

type ClientOption func(*Client)

func WithLanguage(language string) ClientOption {
	return func(c *Client) {
		c.language = language
	}
}

func WithRegion(region string) ClientOption {
	return func(c *Client) {
		c.region = region
	}
}

func WithCallTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient wraps the Google Maps client. An empty API key is valid: every
// call then short-circuits to StatusNotConfigured without network I/O.
func NewClient(apiKey string, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	ans := Client{
		language: "pt-BR",
		region:   "br",
		timeout:  defaultCallTimeout,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(&ans)
	}

	if apiKey == "" {
		logger.Warn("google maps api key not configured, geocoding disabled")

		return &ans, nil
	}

	mc, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	ans.mc = mc

	return &ans, nil
}

func (c *Client) configured() bool {
	return c.mc != nil
}

func (c *Client) SearchByText(ctx context.Context, query string) (SearchResult, error) {
	if !c.configured() {
		return SearchResult{Status: StatusNotConfigured}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := maps.TextSearchRequest{
		Query:    query,
		Language: c.language,
		Region:   c.region,
		Type:     maps.PlaceTypeChurch,
	}

	resp, err := c.mc.TextSearch(ctx, &req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("text search failed: %w", err)
	}

	c.logger.Debug("text search response",
		zap.String("query", query),
		zap.Int("results", len(resp.Results)),
	)

	if len(resp.Results) == 0 {
		return SearchResult{Status: StatusZeroResults}, nil
	}

	ans := SearchResult{Status: StatusOK}

	for i := range resp.Results {
		ans.Places = append(ans.Places, searchResultToPlace(&resp.Results[i]))
	}

	return ans, nil
}

func (c *Client) DetailsByPlaceID(ctx context.Context, placeID string) (SearchResult, error) {
	if !c.configured() {
		return SearchResult{Status: StatusNotConfigured}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := maps.PlaceDetailsRequest{
		PlaceID:  placeID,
		Language: c.language,
	}

	resp, err := c.mc.PlaceDetails(ctx, &req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("place details failed: %w", err)
	}

	lat := resp.Geometry.Location.Lat
	lng := resp.Geometry.Location.Lng

	place := Place{
		Name:    resp.Name,
		Address: resp.FormattedAddress,
		PlaceID: resp.PlaceID,
	}

	if lat != 0 || lng != 0 {
		place.Latitude = &lat
		place.Longitude = &lng
	}

	place.Raw, _ = json.Marshal(resp)

	return SearchResult{Status: StatusOK, Places: []Place{place}}, nil
}

func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (SearchResult, error) {
	if !c.configured() {
		return SearchResult{Status: StatusNotConfigured}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lng},
		Language: c.language,
	}

	results, err := c.mc.ReverseGeocode(ctx, &req)
	if err != nil {
		return SearchResult{}, fmt.Errorf("reverse geocode failed: %w", err)
	}

	if len(results) == 0 {
		return SearchResult{Status: StatusZeroResults}, nil
	}

	ans := SearchResult{Status: StatusOK}

	for i := range results {
		r := &results[i]

		rlat := r.Geometry.Location.Lat
		rlng := r.Geometry.Location.Lng

		place := Place{
			Address:   r.FormattedAddress,
			PlaceID:   r.PlaceID,
			Latitude:  &rlat,
			Longitude: &rlng,
		}
		place.Raw, _ = json.Marshal(r)

		ans.Places = append(ans.Places, place)
	}

	return ans, nil
}

func searchResultToPlace(r *maps.PlacesSearchResult) Place {
	place := Place{
		Name:    r.Name,
		Address: r.FormattedAddress,
		PlaceID: r.PlaceID,
	}

	lat := r.Geometry.Location.Lat
	lng := r.Geometry.Location.Lng

	// The provider omits geometry for some sparse results; (0,0) is in the
	// Atlantic and never a real parish.
	if lat != 0 || lng != 0 {
		place.Latitude = &lat
		place.Longitude = &lng
	}

	place.Raw, _ = json.Marshal(r)

	return place
}
