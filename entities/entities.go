package entities

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	olc "github.com/google/open-location-code/go"
	"go.uber.org/multierr"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNotConfigured    = errors.New("provider not configured")
	ErrSelectionExpired = errors.New("selection expired")
)

// Days are integers to make ordering easy. Sunday is 0.
const (
	Sunday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
)

const (
	TypeMass       = "mass"
	TypeConfession = "confession"
)

// Candidate sources, in fallback order.
const (
	SourcePlaceDetails   = "place_details"
	SourceReverseGeocode = "reverse_geocode"
	SourceTextSearch     = "text_search"
)

type State struct {
	ID        string
	Name      string
	ShortName string
	Slug      string
}

type City struct {
	ID    string
	Name  string
	Slug  string
	State State
}

type Parish struct {
	ID   string
	Name string
	Slug string
	City City
}

// Location is the canonical, geocoded record for one physical place.
// RawResponse keeps the provider payload that produced it, for audit.
type Location struct {
	ID          string
	Name        string
	Address     string
	Latitude    *float64
	Longitude   *float64
	PlaceID     string
	PlusCode    string
	RawResponse json.RawMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (l Location) HasCoordinates() bool {
	return l.Latitude != nil && l.Longitude != nil
}

type Schedule struct {
	ID           string
	Parish       Parish
	Day          int
	StartTime    time.Time
	EndTime      *time.Time
	Type         string
	Observation  string
	VerifiedAt   *time.Time
	LocationName string
	MapsURL      string
	LocationID   *string
}

func (s *Schedule) Validate() error {
	if s.Parish.ID == "" {
		return multierr.Append(ErrInvalidInput, errors.New("parish id is required"))
	}

	if s.Day < Sunday || s.Day > Saturday {
		return multierr.Append(ErrInvalidInput, errors.New("day must be between 0 and 6"))
	}

	if s.Type != TypeMass && s.Type != TypeConfession {
		return multierr.Append(ErrInvalidInput, errors.New("type must be mass or confession"))
	}

	if s.StartTime.IsZero() {
		return multierr.Append(ErrInvalidInput, errors.New("start time is required"))
	}

	return nil
}

// Candidate is one possible match returned by a resolution strategy,
// not yet committed to the store.
type Candidate struct {
	Name      string
	Address   string
	PlaceID   string
	Latitude  *float64
	Longitude *float64
	Source    string
	Raw       json.RawMessage
}

// ToLocation builds an unsaved canonical Location from a candidate.
func (c Candidate) ToLocation() Location {
	loc := Location{
		Name:        c.Name,
		Address:     c.Address,
		Latitude:    c.Latitude,
		Longitude:   c.Longitude,
		PlaceID:     c.PlaceID,
		RawResponse: c.Raw,
	}

	if loc.HasCoordinates() {
		loc.PlusCode = olc.Encode(*c.Latitude, *c.Longitude, 11)
	}

	return loc
}

// GroupKey identifies a descriptor group: all schedule entries of one parish
// sharing the same free-text location name. It is the unit of deduplication.
type GroupKey struct {
	ParishID     string
	LocationName string
}

func NewGroupKey(parishID, locationName string) GroupKey {
	return GroupKey{
		ParishID:     parishID,
		LocationName: normalizeName(locationName),
	}
}

func (k GroupKey) String() string {
	return k.ParishID + "/" + k.LocationName
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Group is one descriptor group pending resolution, with the parish context
// needed to build provider queries.
type Group struct {
	Key          GroupKey
	Parish       Parish
	LocationName string
	MapsURL      string
}

// PlacedSchedule pairs a schedule with its resolved location for the
// nearby query.
type PlacedSchedule struct {
	Schedule Schedule
	Location Location
}

type LocationStore interface {
	// FindExisting returns a Location already attached to any schedule of
	// the group, so sibling entries never trigger a second provider lookup.
	FindExisting(ctx context.Context, key GroupKey) (Location, error)
	// GetOrCreateLocation returns the stored Location matching (name,
	// address), creating it when absent.
	GetOrCreateLocation(ctx context.Context, loc *Location) (Location, error)
	// AttachGroup sets the location on every schedule of the group in one
	// bulk operation and reports how many rows it touched.
	AttachGroup(ctx context.Context, key GroupKey, locationID string) (int, error)
}

type ScheduleStore interface {
	CreateSchedule(ctx context.Context, schedule *Schedule) error
	// UnresolvedGroups returns one Group per distinct (parish, location
	// name) pair that has schedules without a location.
	UnresolvedGroups(ctx context.Context) ([]Group, error)
	// LocatedSchedules returns every schedule whose location has both
	// coordinates populated.
	LocatedSchedules(ctx context.Context) ([]PlacedSchedule, error)
}

type Store interface {
	LocationStore
	ScheduleStore
}
