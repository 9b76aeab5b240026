// Package geo answers "what schedules happen near this point" over the
// resolved locations.
package geo

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/lucasrcezimbra/missas/entities"
)

const (
	// DefaultRadiusKM bounds a nearby query when the caller gives no radius.
	DefaultRadiusKM = 10.0

	earthRadiusKM = 6371.0
)

// Filters narrows a nearby query. Zero values mean "no constraint" except
// Day, which uses a nil pointer because Sunday is 0.
type Filters struct {
	Day      *int
	Hour     *int
	Type     string
	Verified bool
	RadiusKM float64
}

// Match is a schedule within range, annotated with its distance from the
// query point.
type Match struct {
	entities.PlacedSchedule
	DistanceKM float64
}

// Service runs nearby queries against the schedule store.
type Service struct {
	store         entities.ScheduleStore
	defaultRadius float64
}

type Option func(*Service)

// WithDefaultRadius overrides the radius applied when a query carries none.
// Non-positive values are ignored.
func WithDefaultRadius(km float64) Option {
	return func(s *Service) {
		if km > 0 {
			s.defaultRadius = km
		}
	}
}

func New(store entities.ScheduleStore, opts ...Option) *Service {
	ans := Service{
		store:         store,
		defaultRadius: DefaultRadiusKM,
	}

	for _, opt := range opts {
		opt(&ans)
	}

	return &ans
}

// Nearby returns the schedules whose resolved location lies within the
// radius, ordered by ascending distance. Ties keep a stable order.
func (s *Service) Nearby(ctx context.Context, lat, lng float64, filters Filters) ([]Match, error) {
	if err := validateCoordinates(lat, lng); err != nil {
		return nil, err
	}

	radius := filters.RadiusKM
	if radius <= 0 {
		radius = s.defaultRadius
	}

	placed, err := s.store.LocatedSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to select located schedules: %w", err)
	}

	ans := make([]Match, 0, len(placed))

	for _, item := range placed {
		if !matches(item.Schedule, filters) {
			continue
		}

		distance := Distance(lat, lng, *item.Location.Latitude, *item.Location.Longitude)
		if distance > radius {
			continue
		}

		ans = append(ans, Match{PlacedSchedule: item, DistanceKM: distance})
	}

	sort.SliceStable(ans, func(i, j int) bool {
		return ans[i].DistanceKM < ans[j].DistanceKM
	})

	return ans, nil
}

func matches(schedule entities.Schedule, filters Filters) bool {
	if filters.Day != nil && schedule.Day != *filters.Day {
		return false
	}

	if filters.Type != "" && schedule.Type != filters.Type {
		return false
	}

	if filters.Verified && schedule.VerifiedAt == nil {
		return false
	}

	if filters.Hour != nil {
		hour := *filters.Hour

		// A schedule counts when it starts at or after the hour, or is
		// still running at it.
		startsLater := schedule.StartTime.Hour() >= hour
		endsLater := schedule.EndTime != nil && schedule.EndTime.Hour() >= hour

		if !startsLater && !endsLater {
			return false
		}
	}

	return true
}

func validateCoordinates(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90,90]", lat)
	}

	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180,180]", lng)
	}

	return nil
}

// Distance returns the great-circle distance between two points in
// kilometers, using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	deltaPhi := radians(lat2 - lat1)
	deltaLambda := radians(lng2 - lng1)

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
