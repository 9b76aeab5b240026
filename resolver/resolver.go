// Package resolver turns ambiguous, human-supplied location descriptors
// into canonical geocoded locations, deduplicating per descriptor group and
// deferring ambiguous matches to an operator.
package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/gmaps"
)

// mainSiteSynonyms are location names that denote the parish's own primary
// church rather than a separately addressed chapel.
var mainSiteSynonyms = []string{"matriz", "igreja matriz", "paróquia", "paroquia"}

// URLResolver resolves shortened links; gmaps.Unshortener in production.
type URLResolver interface {
	Unshorten(ctx context.Context, rawURL string) string
}

// Resolver runs the extraction strategies in fallback order over one
// descriptor group.
type Resolver struct {
	places      gmaps.API
	unshortener URLResolver
	logger      *zap.Logger
}

func New(places gmaps.API, unshortener URLResolver, logger *zap.Logger) *Resolver {
	return &Resolver{
		places:      places,
		unshortener: unshortener,
		logger:      logger,
	}
}

// Resolve tries the URL strategies first (precise), then free-text search.
// It returns zero, one or many candidates; transport failures degrade to
// the next strategy.
func (r *Resolver) Resolve(ctx context.Context, group entities.Group) ([]entities.Candidate, error) {
	if group.MapsURL != "" {
		candidates, err := r.ByURL(ctx, group.MapsURL)
		if err != nil {
			return nil, err
		}

		if len(candidates) > 0 {
			return candidates, nil
		}
	}

	return r.ByText(ctx, group)
}

// ByURL resolves a maps-sharing URL: unshorten, parse, then either place
// details or reverse geocoding. An unparseable URL yields no candidates so
// the caller can fall back to text search.
func (r *Resolver) ByURL(ctx context.Context, rawURL string) ([]entities.Candidate, error) {
	finalURL := r.unshortener.Unshorten(ctx, rawURL)

	parsed := gmaps.ParseURL(finalURL)

	switch parsed.Kind {
	case gmaps.URLPlaceID:
		return r.byPlaceID(ctx, parsed.PlaceID)
	case gmaps.URLCoordinates:
		return r.byCoordinates(ctx, parsed.Latitude, parsed.Longitude)
	default:
		return nil, nil
	}
}

func (r *Resolver) byPlaceID(ctx context.Context, placeID string) ([]entities.Candidate, error) {
	result, err := r.places.DetailsByPlaceID(ctx, placeID)
	if err != nil {
		r.logger.Warn("place details lookup failed", zap.String("place_id", placeID), zap.Error(err))

		return nil, nil
	}

	if result.Status == gmaps.StatusNotConfigured {
		return nil, entities.ErrNotConfigured
	}

	if result.Status != gmaps.StatusOK || len(result.Places) == 0 {
		return nil, nil
	}

	return []entities.Candidate{placeToCandidate(result.Places[0], entities.SourcePlaceDetails)}, nil
}

func (r *Resolver) byCoordinates(ctx context.Context, lat, lng float64) ([]entities.Candidate, error) {
	result, err := r.places.ReverseGeocode(ctx, lat, lng)
	if err != nil {
		r.logger.Warn("reverse geocode failed",
			zap.Float64("lat", lat),
			zap.Float64("lng", lng),
			zap.Error(err),
		)

		return nil, nil
	}

	if result.Status == gmaps.StatusNotConfigured {
		return nil, entities.ErrNotConfigured
	}

	if result.Status != gmaps.StatusOK || len(result.Places) == 0 {
		return nil, nil
	}

	// A single point reverse-geocodes to one street address; extra results
	// are coarser administrative areas, so the first match wins.
	candidate := placeToCandidate(result.Places[0], entities.SourceReverseGeocode)
	candidate.Latitude = &lat
	candidate.Longitude = &lng

	return []entities.Candidate{candidate}, nil
}

// ByText searches the provider with a query assembled from the location
// name and the parish context. All matches come back as candidates; ranking
// them is the operator's job, not ours.
func (r *Resolver) ByText(ctx context.Context, group entities.Group) ([]entities.Candidate, error) {
	query := buildQuery(group)

	result, err := r.places.SearchByText(ctx, query)
	if err != nil {
		r.logger.Warn("text search failed", zap.String("query", query), zap.Error(err))

		return nil, nil
	}

	if result.Status == gmaps.StatusNotConfigured {
		return nil, entities.ErrNotConfigured
	}

	if result.Status != gmaps.StatusOK {
		r.logger.Info("no address found",
			zap.String("query", query),
			zap.String("status", string(result.Status)),
		)

		return nil, nil
	}

	ans := make([]entities.Candidate, 0, len(result.Places))

	for _, place := range result.Places {
		ans = append(ans, placeToCandidate(place, entities.SourceTextSearch))
	}

	return ans, nil
}

// buildQuery composes the provider search text. A name denoting the main
// church has no address of its own, so the parish identity is used instead.
func buildQuery(group entities.Group) string {
	parish := group.Parish

	var parts []string

	if group.LocationName != "" && !isMainSite(group.LocationName) {
		parts = append(parts, group.LocationName)
	} else {
		if group.LocationName != "" {
			parts = append(parts, group.LocationName)
		}

		parts = append(parts, parish.Name)
	}

	parts = append(parts, parish.City.Name, parish.City.State.ShortName)

	return strings.Join(parts, " ")
}

func isMainSite(name string) bool {
	lowered := strings.ToLower(name)

	for _, synonym := range mainSiteSynonyms {
		if strings.Contains(lowered, synonym) {
			return true
		}
	}

	return false
}

func placeToCandidate(place gmaps.Place, source string) entities.Candidate {
	return entities.Candidate{
		Name:      place.Name,
		Address:   place.Address,
		PlaceID:   place.PlaceID,
		Latitude:  place.Latitude,
		Longitude: place.Longitude,
		Source:    source,
		Raw:       place.Raw,
	}
}
