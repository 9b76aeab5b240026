// Package memory provides an in-memory Store used by tests and the demo
// run mode.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lucasrcezimbra/missas/entities"
)

type Store struct {
	mu        *sync.RWMutex
	schedules map[string]entities.Schedule
	locations map[string]entities.Location
}

var _ entities.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		mu:        &sync.RWMutex{},
		schedules: make(map[string]entities.Schedule),
		locations: make(map[string]entities.Location),
	}
}

func (s *Store) CreateSchedule(_ context.Context, schedule *entities.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}

	if _, ok := s.schedules[schedule.ID]; ok {
		return entities.ErrAlreadyExists
	}

	s.schedules[schedule.ID] = *schedule

	return nil
}

func (s *Store) UnresolvedGroups(_ context.Context) ([]entities.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[entities.GroupKey]entities.Group)

	for _, schedule := range s.schedules {
		if schedule.LocationID != nil {
			continue
		}

		key := entities.NewGroupKey(schedule.Parish.ID, schedule.LocationName)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = entities.Group{
			Key:          key,
			Parish:       schedule.Parish,
			LocationName: schedule.LocationName,
			MapsURL:      schedule.MapsURL,
		}
	}

	ans := make([]entities.Group, 0, len(seen))
	for _, group := range seen {
		ans = append(ans, group)
	}

	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Key.String() < ans[j].Key.String()
	})

	return ans, nil
}

func (s *Store) LocatedSchedules(_ context.Context) ([]entities.PlacedSchedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ans []entities.PlacedSchedule

	for _, schedule := range s.schedules {
		if schedule.LocationID == nil {
			continue
		}

		location, ok := s.locations[*schedule.LocationID]
		if !ok || !location.HasCoordinates() {
			continue
		}

		ans = append(ans, entities.PlacedSchedule{Schedule: schedule, Location: location})
	}

	sort.Slice(ans, func(i, j int) bool {
		return ans[i].Schedule.ID < ans[j].Schedule.ID
	})

	return ans, nil
}

func (s *Store) FindExisting(_ context.Context, key entities.GroupKey) (entities.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, schedule := range s.schedules {
		if schedule.LocationID == nil {
			continue
		}

		if entities.NewGroupKey(schedule.Parish.ID, schedule.LocationName) != key {
			continue
		}

		if location, ok := s.locations[*schedule.LocationID]; ok {
			return location, nil
		}
	}

	return entities.Location{}, entities.ErrNotFound
}

func (s *Store) GetOrCreateLocation(_ context.Context, loc *entities.Location) (entities.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.locations {
		if existing.Name == loc.Name && existing.Address == loc.Address {
			return existing, nil
		}
	}

	created := *loc
	created.ID = uuid.New().String()
	created.CreatedAt = time.Now().UTC()
	created.UpdatedAt = created.CreatedAt

	s.locations[created.ID] = created

	return created, nil
}

func (s *Store) AttachGroup(_ context.Context, key entities.GroupKey, locationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.locations[locationID]; !ok {
		return 0, entities.ErrNotFound
	}

	count := 0

	for id, schedule := range s.schedules {
		if entities.NewGroupKey(schedule.Parish.ID, schedule.LocationName) != key {
			continue
		}

		schedule.LocationID = &locationID
		s.schedules[id] = schedule
		count++
	}

	return count, nil
}

// LocationCount reports how many canonical locations exist; tests use it to
// assert the dedup invariant.
func (s *Store) LocationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.locations)
}

// Schedule returns a stored schedule by id.
func (s *Store) Schedule(id string) (entities.Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[id]

	return schedule, ok
}
