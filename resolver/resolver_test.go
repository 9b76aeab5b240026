package resolver_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/gmaps"
	"github.com/lucasrcezimbra/missas/resolver"
)

type fakeAPI struct {
	mu sync.Mutex

	searchResult  gmaps.SearchResult
	detailsResult gmaps.SearchResult
	reverseResult gmaps.SearchResult

	searchCalls  int
	detailsCalls int
	reverseCalls int

	lastQuery     string
	lastPlaceID   string
	lastLat       float64
	lastLng       float64
	notConfigured bool
}

func (f *fakeAPI) SearchByText(_ context.Context, query string) (gmaps.SearchResult, error) {
	if f.notConfigured {
		return gmaps.SearchResult{Status: gmaps.StatusNotConfigured}, nil
	}

	f.mu.Lock()
	f.searchCalls++
	f.lastQuery = query
	f.mu.Unlock()

	return f.searchResult, nil
}

func (f *fakeAPI) DetailsByPlaceID(_ context.Context, placeID string) (gmaps.SearchResult, error) {
	if f.notConfigured {
		return gmaps.SearchResult{Status: gmaps.StatusNotConfigured}, nil
	}

	f.mu.Lock()
	f.detailsCalls++
	f.lastPlaceID = placeID
	f.mu.Unlock()

	return f.detailsResult, nil
}

func (f *fakeAPI) ReverseGeocode(_ context.Context, lat, lng float64) (gmaps.SearchResult, error) {
	if f.notConfigured {
		return gmaps.SearchResult{Status: gmaps.StatusNotConfigured}, nil
	}

	f.mu.Lock()
	f.reverseCalls++
	f.lastLat = lat
	f.lastLng = lng
	f.mu.Unlock()

	return f.reverseResult, nil
}

type fakeUnshortener struct {
	mapping map[string]string
}

func (f *fakeUnshortener) Unshorten(_ context.Context, rawURL string) string {
	if long, ok := f.mapping[rawURL]; ok {
		return long
	}

	return rawURL
}

func ptr(v float64) *float64 { return &v }

func onePlace(name string) gmaps.SearchResult {
	return gmaps.SearchResult{
		Status: gmaps.StatusOK,
		Places: []gmaps.Place{
			{
				Name:      name,
				Address:   "Rua Principal, 123 - Centro, Natal - RN",
				PlaceID:   "ChIJ123ABC",
				Latitude:  ptr(-5.79),
				Longitude: ptr(-35.21),
			},
		},
	}
}

func testGroup(name, mapsURL string) entities.Group {
	parish := entities.Parish{
		ID:   "parish-1",
		Name: "Paróquia São José",
		City: entities.City{
			Name:  "Natal",
			State: entities.State{ShortName: "RN"},
		},
	}

	return entities.Group{
		Key:          entities.NewGroupKey(parish.ID, name),
		Parish:       parish,
		LocationName: name,
		MapsURL:      mapsURL,
	}
}

func TestResolveShortenedURLUsesPlaceDetails(t *testing.T) {
	api := &fakeAPI{detailsResult: onePlace("Igreja Matriz")}
	un := &fakeUnshortener{mapping: map[string]string{
		"https://maps.app.goo.gl/abc123": "https://www.google.com/maps/place/Igreja/@-5.79,-35.21,17z/data=!3m1!4b1!4m6!3m5!1sChIJXYZ!8m2!3d-5.79!4d-35.21!16s",
	}}

	r := resolver.New(api, un, zap.NewNop())

	candidates, err := r.ByURL(context.Background(), "https://maps.app.goo.gl/abc123")
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, "ChIJXYZ", api.lastPlaceID)
	assert.Equal(t, 1, api.detailsCalls)
	assert.Zero(t, api.searchCalls, "text search must not run when the URL resolves")
	assert.Equal(t, entities.SourcePlaceDetails, candidates[0].Source)
}

func TestResolveCoordinateURLUsesReverseGeocode(t *testing.T) {
	api := &fakeAPI{
		reverseResult: gmaps.SearchResult{
			Status: gmaps.StatusOK,
			Places: []gmaps.Place{
				{Address: "Rua Principal, 123 - Centro, Natal - RN", PlaceID: "ChIJ123ABC"},
				{Address: "Natal - RN", PlaceID: "ChIJcity"},
			},
		},
	}

	r := resolver.New(api, &fakeUnshortener{}, zap.NewNop())

	candidates, err := r.ByURL(context.Background(), "https://www.google.com/maps/@-5.7945,-35.2110,17z")
	require.NoError(t, err)
	require.Len(t, candidates, 1, "reverse geocoding one point is unambiguous, first match wins")

	assert.Equal(t, -5.7945, api.lastLat)
	assert.Equal(t, -35.2110, api.lastLng)
	assert.Zero(t, api.detailsCalls)
	assert.Equal(t, "ChIJ123ABC", candidates[0].PlaceID)
	assert.Equal(t, entities.SourceReverseGeocode, candidates[0].Source)

	require.NotNil(t, candidates[0].Latitude)
	assert.Equal(t, -5.7945, *candidates[0].Latitude)
}

func TestResolveUnparseableURLFallsBackToText(t *testing.T) {
	api := &fakeAPI{searchResult: onePlace("Igreja Matriz")}
	r := resolver.New(api, &fakeUnshortener{}, zap.NewNop())

	group := testGroup("Capela Nossa Senhora", "https://www.google.com/maps")

	candidates, err := r.Resolve(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, 1, api.searchCalls)
	assert.Zero(t, api.detailsCalls)
	assert.Zero(t, api.reverseCalls)
}

func TestByTextQueryIncludesCityAndState(t *testing.T) {
	api := &fakeAPI{searchResult: onePlace("Capela Nossa Senhora")}
	r := resolver.New(api, &fakeUnshortener{}, zap.NewNop())

	_, err := r.ByText(context.Background(), testGroup("Capela Nossa Senhora", ""))
	require.NoError(t, err)

	assert.Equal(t, "Capela Nossa Senhora Natal RN", api.lastQuery)
}

func TestByTextMainSiteUsesParishName(t *testing.T) {
	api := &fakeAPI{searchResult: onePlace("Igreja Matriz")}
	r := resolver.New(api, &fakeUnshortener{}, zap.NewNop())

	_, err := r.ByText(context.Background(), testGroup("Matriz", ""))
	require.NoError(t, err)

	assert.Equal(t, "Matriz Paróquia São José Natal RN", api.lastQuery)
}

func TestByTextEmptyNameUsesParishName(t *testing.T) {
	api := &fakeAPI{searchResult: onePlace("Paróquia São José")}
	r := resolver.New(api, &fakeUnshortener{}, zap.NewNop())

	_, err := r.ByText(context.Background(), testGroup("", ""))
	require.NoError(t, err)

	assert.Equal(t, "Paróquia São José Natal RN", api.lastQuery)
}

func TestByTextZeroResultsIsNotAnError(t *testing.T) {
	api := &fakeAPI{searchResult: gmaps.SearchResult{Status: gmaps.StatusZeroResults}}
	r := resolver.New(api, &fakeUnshortener{}, zap.NewNop())

	candidates, err := r.ByText(context.Background(), testGroup("Igreja Inexistente", ""))
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestByTextNotConfigured(t *testing.T) {
	api := &fakeAPI{notConfigured: true}
	r := resolver.New(api, &fakeUnshortener{}, zap.NewNop())

	_, err := r.ByText(context.Background(), testGroup("Capela", ""))
	assert.ErrorIs(t, err, entities.ErrNotConfigured)
}
