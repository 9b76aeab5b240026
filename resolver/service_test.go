package resolver_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/gmaps"
	"github.com/lucasrcezimbra/missas/memory"
	"github.com/lucasrcezimbra/missas/resolver"
)

func newService(t *testing.T, api gmaps.API, store entities.Store) *resolver.Service {
	t.Helper()

	logger := zap.NewNop()
	r := resolver.New(api, &fakeUnshortener{}, logger)
	pending := resolver.NewPendingStore(resolver.DefaultPendingTTL)

	return resolver.NewService(store, r, pending, logger)
}

func seedSchedules(t *testing.T, store *memory.Store, group entities.Group, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)

	for i := 0; i < n; i++ {
		schedule := entities.Schedule{
			Parish:       group.Parish,
			Day:          i % 7,
			StartTime:    time.Date(2024, 1, 1, 8+i, 0, 0, 0, time.UTC),
			Type:         entities.TypeMass,
			LocationName: group.LocationName,
			MapsURL:      group.MapsURL,
		}

		require.NoError(t, store.CreateSchedule(context.Background(), &schedule))

		ids = append(ids, schedule.ID)
	}

	return ids
}

func TestResolveGroupAttachesAllMembers(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: onePlace("Capela Santa Rita")}
	svc := newService(t, api, store)

	group := testGroup("Capela Santa Rita", "")
	ids := seedSchedules(t, store, group, 3)

	result := svc.ResolveGroup(context.Background(), group)

	require.Equal(t, resolver.OutcomeResolved, result.Outcome)
	assert.Equal(t, 3, result.Attached)
	assert.Equal(t, 1, api.searchCalls, "one group means one provider call")
	assert.Equal(t, 1, store.LocationCount())

	for _, id := range ids {
		schedule, ok := store.Schedule(id)
		require.True(t, ok)
		require.NotNil(t, schedule.LocationID)
		assert.Equal(t, result.Location.ID, *schedule.LocationID)
	}
}

func TestResolveGroupIsIdempotent(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: onePlace("Capela Santa Rita")}
	svc := newService(t, api, store)

	group := testGroup("Capela Santa Rita", "")
	seedSchedules(t, store, group, 2)

	first := svc.ResolveGroup(context.Background(), group)
	second := svc.ResolveGroup(context.Background(), group)

	require.Equal(t, resolver.OutcomeResolved, first.Outcome)
	require.Equal(t, resolver.OutcomeResolved, second.Outcome)
	assert.Equal(t, first.Location.ID, second.Location.ID)
	assert.Equal(t, 1, api.searchCalls, "a resolved group must never hit the provider again")
	assert.Equal(t, 1, store.LocationCount())
}

func TestResolveGroupNormalizedNamesShareOneLookup(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: onePlace("Capela Santa Rita")}
	svc := newService(t, api, store)

	group := testGroup("Capela Santa Rita", "")
	seedSchedules(t, store, group, 1)

	variant := testGroup("  capela  SANTA rita ", "")
	seedSchedules(t, store, variant, 1)

	require.Equal(t, group.Key, variant.Key)

	first := svc.ResolveGroup(context.Background(), group)
	second := svc.ResolveGroup(context.Background(), variant)

	require.Equal(t, resolver.OutcomeResolved, first.Outcome)
	require.Equal(t, resolver.OutcomeResolved, second.Outcome)
	assert.Equal(t, 1, api.searchCalls)
	assert.Equal(t, 1, store.LocationCount())
}

func TestResolveGroupAmbiguousGoesPending(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: gmaps.SearchResult{
		Status: gmaps.StatusOK,
		Places: []gmaps.Place{
			{Name: "Igreja de São José", Address: "Rua A", PlaceID: "ChIJaaa"},
			{Name: "Igreja São José Operário", Address: "Rua B", PlaceID: "ChIJbbb"},
		},
	}}
	svc := newService(t, api, store)

	group := testGroup("Igreja São José", "")
	ids := seedSchedules(t, store, group, 2)

	result := svc.ResolveGroup(context.Background(), group)

	require.Equal(t, resolver.OutcomePending, result.Outcome)
	assert.Len(t, result.Candidates, 2)
	assert.Zero(t, store.LocationCount(), "ambiguity must not create a location")

	for _, id := range ids {
		schedule, ok := store.Schedule(id)
		require.True(t, ok)
		assert.Nil(t, schedule.LocationID)
	}

	stored, ok := svc.Pending().Get(group.Key)
	require.True(t, ok)
	assert.Len(t, stored, 2)
}

func TestResolveGroupZeroCandidatesIsReported(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: gmaps.SearchResult{Status: gmaps.StatusZeroResults}}
	svc := newService(t, api, store)

	group := testGroup("Igreja Inexistente", "")
	seedSchedules(t, store, group, 1)

	result := svc.ResolveGroup(context.Background(), group)

	assert.Equal(t, resolver.OutcomeReported, result.Outcome)
	assert.Zero(t, store.LocationCount())
}

func TestResolveGroupNotConfiguredIsSkipped(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{notConfigured: true}
	svc := newService(t, api, store)

	group := testGroup("Capela", "")
	seedSchedules(t, store, group, 1)

	result := svc.ResolveGroup(context.Background(), group)

	assert.Equal(t, resolver.OutcomeSkipped, result.Outcome)
	assert.Zero(t, store.LocationCount())
}

func TestResolveGroupURLBeatsTextSearch(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{detailsResult: onePlace("Igreja Matriz")}
	svc := newService(t, api, store)

	group := testGroup("Matriz", "https://www.google.com/maps/place/?q=place_id:ChIJ123ABC")
	seedSchedules(t, store, group, 1)

	result := svc.ResolveGroup(context.Background(), group)

	require.Equal(t, resolver.OutcomeResolved, result.Outcome)
	assert.Equal(t, 1, api.detailsCalls)
	assert.Zero(t, api.searchCalls, "a usable URL must preempt text search")
}

func TestApplySelection(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: gmaps.SearchResult{
		Status: gmaps.StatusOK,
		Places: []gmaps.Place{
			{Name: "Igreja de São José", Address: "Rua A", PlaceID: "ChIJaaa", Latitude: ptr(-5.79), Longitude: ptr(-35.21)},
			{Name: "Igreja São José Operário", Address: "Rua B", PlaceID: "ChIJbbb"},
		},
	}}
	svc := newService(t, api, store)

	group := testGroup("Igreja São José", "")
	ids := seedSchedules(t, store, group, 2)

	pending := svc.ResolveGroup(context.Background(), group)
	require.Equal(t, resolver.OutcomePending, pending.Outcome)

	result, err := svc.ApplySelection(context.Background(), group, 1)
	require.NoError(t, err)
	require.Equal(t, resolver.OutcomeResolved, result.Outcome)
	assert.Equal(t, "ChIJbbb", result.Location.PlaceID)
	assert.Equal(t, 2, result.Attached)
	assert.Equal(t, 1, store.LocationCount())

	for _, id := range ids {
		schedule, ok := store.Schedule(id)
		require.True(t, ok)
		require.NotNil(t, schedule.LocationID)
	}

	_, ok := svc.Pending().Get(group.Key)
	assert.False(t, ok, "a consumed selection must be gone")
}

func TestApplySelectionExpiredMutatesNothing(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{}
	svc := newService(t, api, store)

	group := testGroup("Igreja São José", "")
	ids := seedSchedules(t, store, group, 1)

	_, err := svc.ApplySelection(context.Background(), group, 0)
	require.ErrorIs(t, err, entities.ErrSelectionExpired)

	assert.Zero(t, store.LocationCount())

	schedule, ok := store.Schedule(ids[0])
	require.True(t, ok)
	assert.Nil(t, schedule.LocationID, "an expired selection must never apply candidate zero")
}

func TestApplySelectionIndexOutOfRange(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: gmaps.SearchResult{
		Status: gmaps.StatusOK,
		Places: []gmaps.Place{
			{Name: "a", PlaceID: "ChIJaaa"},
			{Name: "b", PlaceID: "ChIJbbb"},
		},
	}}
	svc := newService(t, api, store)

	group := testGroup("Igreja São José", "")
	seedSchedules(t, store, group, 1)

	pending := svc.ResolveGroup(context.Background(), group)
	require.Equal(t, resolver.OutcomePending, pending.Outcome)

	_, err := svc.ApplySelection(context.Background(), group, 5)
	require.Error(t, err)
	assert.NotErrorIs(t, err, entities.ErrSelectionExpired)

	_, ok := svc.Pending().Get(group.Key)
	assert.True(t, ok, "a bad index must not consume the selection")
}

func TestResolveAll(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: onePlace("Capela")}
	svc := newService(t, api, store)

	first := testGroup("Capela Santa Rita", "")
	second := testGroup("Capela São Pedro", "")
	seedSchedules(t, store, first, 2)
	seedSchedules(t, store, second, 1)

	var observed atomic.Int32

	results, err := svc.ResolveAll(context.Background(), 4, func(resolver.Result) {
		observed.Add(1)
	})
	require.NoError(t, err)

	assert.Len(t, results, 2)
	assert.Equal(t, int32(2), observed.Load())
	assert.Equal(t, 2, api.searchCalls)

	groups, err := store.UnresolvedGroups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestResolveAllStopsAfterCancellation(t *testing.T) {
	store := memory.New()
	api := &fakeAPI{searchResult: onePlace("Capela")}
	svc := newService(t, api, store)

	for _, name := range []string{"Capela A", "Capela B", "Capela C"} {
		seedSchedules(t, store, testGroup(name, ""), 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Sequential run; the first outcome cancels the rest.
	results, err := svc.ResolveAll(ctx, 1, func(resolver.Result) {
		cancel()
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
	assert.Equal(t, 1, api.searchCalls)
}
