// Package postgres implements entities.Store on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/lucasrcezimbra/missas/entities"
)

var _ entities.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) (*Store, error) {
	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(10 * time.Minute)

	return db, nil
}

// CreateSchedule inserts a schedule, upserting its parish context first so a
// feed row can land without pre-seeded reference data.
func (s *Store) CreateSchedule(ctx context.Context, schedule *entities.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsertParish(ctx, tx, schedule.Parish); err != nil {
		return err
	}

	const q = `INSERT INTO schedules
		(id, parish_id, day, start_time, end_time, type, observation, verified_at,
		 location_name, location_key, maps_url, location_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())`

	key := entities.NewGroupKey(schedule.Parish.ID, schedule.LocationName)

	_, err = tx.ExecContext(ctx, q,
		schedule.ID, schedule.Parish.ID, schedule.Day,
		schedule.StartTime, schedule.EndTime,
		schedule.Type, schedule.Observation, schedule.VerifiedAt,
		schedule.LocationName, key.LocationName, schedule.MapsURL, schedule.LocationID,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	return tx.Commit()
}

func upsertParish(ctx context.Context, tx *sql.Tx, parish entities.Parish) error {
	const stateQ = `INSERT INTO states (id, name, short_name, slug)
		VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`

	state := parish.City.State
	if _, err := tx.ExecContext(ctx, stateQ, state.ID, state.Name, state.ShortName, state.Slug); err != nil {
		return fmt.Errorf("failed to upsert state: %w", err)
	}

	const cityQ = `INSERT INTO cities (id, name, slug, state_id)
		VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`

	city := parish.City
	if _, err := tx.ExecContext(ctx, cityQ, city.ID, city.Name, city.Slug, state.ID); err != nil {
		return fmt.Errorf("failed to upsert city: %w", err)
	}

	const parishQ = `INSERT INTO parishes (id, name, slug, city_id)
		VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`

	if _, err := tx.ExecContext(ctx, parishQ, parish.ID, parish.Name, parish.Slug, city.ID); err != nil {
		return fmt.Errorf("failed to upsert parish: %w", err)
	}

	return nil
}

// UnresolvedGroups returns one row per (parish, normalized location name)
// pair still lacking a location. A member with a maps URL wins the tie so
// the group resolves by the precise strategy when possible.
func (s *Store) UnresolvedGroups(ctx context.Context) ([]entities.Group, error) {
	const q = `SELECT DISTINCT ON (s.parish_id, s.location_key)
			s.location_name, s.location_key, COALESCE(s.maps_url, ''),
			p.id, p.name, p.slug,
			c.id, c.name, c.slug,
			st.id, st.name, st.short_name, st.slug
		FROM schedules s
		JOIN parishes p ON p.id = s.parish_id
		JOIN cities c ON c.id = p.city_id
		JOIN states st ON st.id = c.state_id
		WHERE s.location_id IS NULL
		ORDER BY s.parish_id, s.location_key, s.maps_url DESC NULLS LAST`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to select unresolved groups: %w", err)
	}

	defer rows.Close()

	var ans []entities.Group

	for rows.Next() {
		var (
			group entities.Group
			key   string
		)

		err := rows.Scan(
			&group.LocationName, &key, &group.MapsURL,
			&group.Parish.ID, &group.Parish.Name, &group.Parish.Slug,
			&group.Parish.City.ID, &group.Parish.City.Name, &group.Parish.City.Slug,
			&group.Parish.City.State.ID, &group.Parish.City.State.Name,
			&group.Parish.City.State.ShortName, &group.Parish.City.State.Slug,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}

		group.Key = entities.GroupKey{ParishID: group.Parish.ID, LocationName: key}

		ans = append(ans, group)
	}

	return ans, rows.Err()
}

// FindExisting returns a location already attached to any schedule of the
// group.
func (s *Store) FindExisting(ctx context.Context, key entities.GroupKey) (entities.Location, error) {
	const q = `SELECT l.id, l.name, l.address, l.latitude, l.longitude,
			l.place_id, l.plus_code, l.raw_response, l.created_at, l.updated_at
		FROM schedules s
		JOIN locations l ON l.id = s.location_id
		WHERE s.parish_id = $1 AND s.location_key = $2
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, q, key.ParishID, key.LocationName)

	return scanLocation(row)
}

// GetOrCreateLocation returns the location matching (name, address),
// inserting it when absent. The conflict target makes the two racing
// creators converge on one row.
func (s *Store) GetOrCreateLocation(ctx context.Context, loc *entities.Location) (entities.Location, error) {
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}

	const q = `INSERT INTO locations
		(id, name, address, latitude, longitude, place_id, plus_code, raw_response, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (name, address) DO UPDATE SET updated_at = NOW()
		RETURNING id, name, address, latitude, longitude, place_id, plus_code, raw_response, created_at, updated_at`

	raw := loc.RawResponse
	if raw == nil {
		raw = json.RawMessage("{}")
	}

	row := s.db.QueryRowContext(ctx, q,
		loc.ID, loc.Name, loc.Address, loc.Latitude, loc.Longitude,
		loc.PlaceID, loc.PlusCode, []byte(raw),
	)

	return scanLocation(row)
}

// AttachGroup points every schedule of the group at the location in one
// statement and reports how many rows it touched.
func (s *Store) AttachGroup(ctx context.Context, key entities.GroupKey, locationID string) (int, error) {
	const q = `UPDATE schedules SET location_id = $1
		WHERE parish_id = $2 AND location_key = $3`

	result, err := s.db.ExecContext(ctx, q, locationID, key.ParishID, key.LocationName)
	if err != nil {
		return 0, fmt.Errorf("failed to attach group: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count attached schedules: %w", err)
	}

	return int(affected), nil
}

// LocatedSchedules returns every schedule whose location carries both
// coordinates, with the parish context needed by the nearby query.
func (s *Store) LocatedSchedules(ctx context.Context) ([]entities.PlacedSchedule, error) {
	const q = `SELECT
			s.id, s.day, s.start_time, s.end_time, s.type, s.observation,
			s.verified_at, s.location_name, COALESCE(s.maps_url, ''),
			p.id, p.name, p.slug,
			c.id, c.name, c.slug,
			st.id, st.name, st.short_name, st.slug,
			l.id, l.name, l.address, l.latitude, l.longitude,
			l.place_id, l.plus_code, l.raw_response, l.created_at, l.updated_at
		FROM schedules s
		JOIN locations l ON l.id = s.location_id
		JOIN parishes p ON p.id = s.parish_id
		JOIN cities c ON c.id = p.city_id
		JOIN states st ON st.id = c.state_id
		WHERE l.latitude IS NOT NULL AND l.longitude IS NOT NULL
		ORDER BY s.day ASC, s.start_time ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to select located schedules: %w", err)
	}

	defer rows.Close()

	var ans []entities.PlacedSchedule

	for rows.Next() {
		var (
			item entities.PlacedSchedule
			raw  []byte
		)

		schedule := &item.Schedule
		location := &item.Location

		err := rows.Scan(
			&schedule.ID, &schedule.Day, &schedule.StartTime, &schedule.EndTime,
			&schedule.Type, &schedule.Observation, &schedule.VerifiedAt,
			&schedule.LocationName, &schedule.MapsURL,
			&schedule.Parish.ID, &schedule.Parish.Name, &schedule.Parish.Slug,
			&schedule.Parish.City.ID, &schedule.Parish.City.Name, &schedule.Parish.City.Slug,
			&schedule.Parish.City.State.ID, &schedule.Parish.City.State.Name,
			&schedule.Parish.City.State.ShortName, &schedule.Parish.City.State.Slug,
			&location.ID, &location.Name, &location.Address,
			&location.Latitude, &location.Longitude,
			&location.PlaceID, &location.PlusCode, &raw,
			&location.CreatedAt, &location.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		location.RawResponse = json.RawMessage(raw)
		schedule.LocationID = &location.ID

		ans = append(ans, item)
	}

	return ans, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanLocation(row scannable) (entities.Location, error) {
	var (
		loc entities.Location
		raw []byte
	)

	err := row.Scan(
		&loc.ID, &loc.Name, &loc.Address, &loc.Latitude, &loc.Longitude,
		&loc.PlaceID, &loc.PlusCode, &raw, &loc.CreatedAt, &loc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Location{}, entities.ErrNotFound
		}

		return entities.Location{}, fmt.Errorf("failed to scan location: %w", err)
	}

	loc.RawResponse = json.RawMessage(raw)

	return loc, nil
}
