package tasks_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/entities"
	"github.com/lucasrcezimbra/missas/gmaps"
	"github.com/lucasrcezimbra/missas/memory"
	"github.com/lucasrcezimbra/missas/redis/tasks"
	"github.com/lucasrcezimbra/missas/resolver"
)

type stubAPI struct {
	result gmaps.SearchResult
}

func (s *stubAPI) SearchByText(context.Context, string) (gmaps.SearchResult, error) {
	return s.result, nil
}

func (s *stubAPI) DetailsByPlaceID(context.Context, string) (gmaps.SearchResult, error) {
	return s.result, nil
}

func (s *stubAPI) ReverseGeocode(context.Context, float64, float64) (gmaps.SearchResult, error) {
	return s.result, nil
}

type noopUnshortener struct{}

func (noopUnshortener) Unshorten(_ context.Context, rawURL string) string { return rawURL }

func ptr(v float64) *float64 { return &v }

func fixture(t *testing.T, result gmaps.SearchResult) (*tasks.Handler, *resolver.Service, *memory.Store) {
	t.Helper()

	logger := zap.NewNop()
	store := memory.New()
	r := resolver.New(&stubAPI{result: result}, noopUnshortener{}, logger)
	service := resolver.NewService(store, r, resolver.NewPendingStore(time.Minute), logger)

	return tasks.NewHandler(service, store, logger), service, store
}

func seed(t *testing.T, store *memory.Store, locationName string) {
	t.Helper()

	schedule := entities.Schedule{
		Parish: entities.Parish{
			ID:   "parish-1",
			Name: "Paróquia São José",
			City: entities.City{Name: "Natal", State: entities.State{ShortName: "RN"}},
		},
		Day:          entities.Sunday,
		StartTime:    time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Type:         entities.TypeMass,
		LocationName: locationName,
	}

	require.NoError(t, store.CreateSchedule(context.Background(), &schedule))
}

func TestProcessResolveTask(t *testing.T) {
	handler, _, store := fixture(t, gmaps.SearchResult{
		Status: gmaps.StatusOK,
		Places: []gmaps.Place{{
			Name:      "Capela Santa Rita",
			Address:   "Rua Principal, 123",
			PlaceID:   "ChIJ123",
			Latitude:  ptr(-5.79),
			Longitude: ptr(-35.21),
		}},
	})

	seed(t, store, "Capela Santa Rita")

	task := asynq.NewTask(tasks.TypeResolveLocations, nil)
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	groups, err := store.UnresolvedGroups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
	assert.Equal(t, 1, store.LocationCount())
}

func TestProcessSelectionTask(t *testing.T) {
	handler, service, store := fixture(t, gmaps.SearchResult{
		Status: gmaps.StatusOK,
		Places: []gmaps.Place{
			{Name: "Igreja de São José", Address: "Rua A", PlaceID: "ChIJaaa"},
			{Name: "Igreja São José Operário", Address: "Rua B", PlaceID: "ChIJbbb"},
		},
	})

	seed(t, store, "Igreja São José")

	resolveTask := asynq.NewTask(tasks.TypeResolveLocations, nil)
	require.NoError(t, handler.ProcessTask(context.Background(), resolveTask))

	assert.Zero(t, store.LocationCount())
	assert.Len(t, service.Pending().Keys(), 1)

	payload, err := json.Marshal(tasks.SelectionPayload{
		ParishID:     "parish-1",
		LocationName: "Igreja São José",
		Index:        1,
	})
	require.NoError(t, err)

	selectionTask := asynq.NewTask(tasks.TypeApplySelection, payload)
	require.NoError(t, handler.ProcessTask(context.Background(), selectionTask))

	assert.Equal(t, 1, store.LocationCount())
	assert.Empty(t, service.Pending().Keys())
}

func TestProcessSelectionExpiredSkipsRetry(t *testing.T) {
	handler, _, store := fixture(t, gmaps.SearchResult{
		Status: gmaps.StatusOK,
		Places: []gmaps.Place{
			{Name: "a", Address: "Rua A", PlaceID: "ChIJaaa"},
			{Name: "b", Address: "Rua B", PlaceID: "ChIJbbb"},
		},
	})

	seed(t, store, "Igreja São José")

	// No resolve run happened, so no pending selection exists.
	payload, err := json.Marshal(tasks.SelectionPayload{
		ParishID:     "parish-1",
		LocationName: "Igreja São José",
		Index:        0,
	})
	require.NoError(t, err)

	task := asynq.NewTask(tasks.TypeApplySelection, payload)

	err = handler.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, store.LocationCount())
}

func TestProcessUnknownTaskType(t *testing.T) {
	handler, _, _ := fixture(t, gmaps.SearchResult{Status: gmaps.StatusZeroResults})

	task := asynq.NewTask("bogus:type", nil)
	assert.Error(t, handler.ProcessTask(context.Background(), task))
}

func TestProcessHealthCheck(t *testing.T) {
	handler, _, _ := fixture(t, gmaps.SearchResult{Status: gmaps.StatusZeroResults})

	task := asynq.NewTask(tasks.TypeHealthCheck, nil)
	assert.NoError(t, handler.ProcessTask(context.Background(), task))
}
