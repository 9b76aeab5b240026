// Package sqlite implements entities.Store on a local SQLite file, for
// single-machine deployments and the CLI run mode.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/lucasrcezimbra/missas/entities"
)

var _ entities.Store = (*Store)(nil)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AutoMigrate creates the schema when absent.
func (s *Store) AutoMigrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS states (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			short_name TEXT NOT NULL,
			slug TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			state_id TEXT NOT NULL REFERENCES states(id)
		)`,
		`CREATE TABLE IF NOT EXISTS parishes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			city_id TEXT NOT NULL REFERENCES cities(id)
		)`,
		`CREATE TABLE IF NOT EXISTS locations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			address TEXT NOT NULL,
			latitude REAL,
			longitude REAL,
			place_id TEXT NOT NULL DEFAULT '',
			plus_code TEXT NOT NULL DEFAULT '',
			raw_response TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE (name, address)
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			parish_id TEXT NOT NULL REFERENCES parishes(id),
			day INTEGER NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			type TEXT NOT NULL,
			observation TEXT NOT NULL DEFAULT '',
			verified_at TIMESTAMP,
			location_name TEXT NOT NULL DEFAULT '',
			location_key TEXT NOT NULL DEFAULT '',
			maps_url TEXT NOT NULL DEFAULT '',
			location_id TEXT REFERENCES locations(id),
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_group ON schedules(parish_id, location_key)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_location ON schedules(location_id)`,
	}

	for _, statement := range statements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return nil
}

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	key := entities.NewGroupKey(schedule.Parish.ID, schedule.LocationName)

	_, err = tx.ExecContext(ctx, q,
		schedule.ID, schedule.Parish.ID, schedule.Day,
		schedule.StartTime, schedule.EndTime,
		schedule.Type, schedule.Observation, schedule.VerifiedAt,
		schedule.LocationName, key.LocationName, schedule.MapsURL, schedule.LocationID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	return tx.Commit()
}

func upsertParish(ctx context.Context, tx *sql.Tx, parish entities.Parish) error {
	state := parish.City.State
	city := parish.City

	const stateQ = `INSERT OR IGNORE INTO states (id, name, short_name, slug) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, stateQ, state.ID, state.Name, state.ShortName, state.Slug); err != nil {
		return fmt.Errorf("failed to upsert state: %w", err)
	}

	const cityQ = `INSERT OR IGNORE INTO cities (id, name, slug, state_id) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, cityQ, city.ID, city.Name, city.Slug, state.ID); err != nil {
		return fmt.Errorf("failed to upsert city: %w", err)
	}

	const parishQ = `INSERT OR IGNORE INTO parishes (id, name, slug, city_id) VALUES (?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, parishQ, parish.ID, parish.Name, parish.Slug, city.ID); err != nil {
		return fmt.Errorf("failed to upsert parish: %w", err)
	}

	return nil
}

// UnresolvedGroups keeps one row per group; MAX(maps_url) prefers a member
// that carries a URL.
func (s *Store) UnresolvedGroups(ctx context.Context) ([]entities.Group, error) {
	const q = `SELECT
			MIN(s.location_name), s.location_key, MAX(s.maps_url),
			p.id, p.name, p.slug,
			c.id, c.name, c.slug,
			st.id, st.name, st.short_name, st.slug
		FROM schedules s
		JOIN parishes p ON p.id = s.parish_id
		JOIN cities c ON c.id = p.city_id
		JOIN states st ON st.id = c.state_id
		WHERE s.location_id IS NULL
		GROUP BY s.parish_id, s.location_key
		ORDER BY s.parish_id, s.location_key`

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

func (s *Store) FindExisting(ctx context.Context, key entities.GroupKey) (entities.Location, error) {
	const q = `SELECT l.id, l.name, l.address, l.latitude, l.longitude,
			l.place_id, l.plus_code, l.raw_response, l.created_at, l.updated_at
		FROM schedules s
		JOIN locations l ON l.id = s.location_id
		WHERE s.parish_id = ? AND s.location_key = ?
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, q, key.ParishID, key.LocationName)

	return scanLocation(row)
}

func (s *Store) GetOrCreateLocation(ctx context.Context, loc *entities.Location) (entities.Location, error) {
	if loc.ID == "" {
		loc.ID = uuid.New().String()
	}

	const q = `INSERT INTO locations
		(id, name, address, latitude, longitude, place_id, plus_code, raw_response, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name, address) DO UPDATE SET updated_at = excluded.updated_at
		RETURNING id, name, address, latitude, longitude, place_id, plus_code, raw_response, created_at, updated_at`

	raw := loc.RawResponse
	if raw == nil {
		raw = json.RawMessage("{}")
	}

	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx, q,
		loc.ID, loc.Name, loc.Address, loc.Latitude, loc.Longitude,
		loc.PlaceID, loc.PlusCode, string(raw), now, now,
	)

	return scanLocation(row)
}

func (s *Store) AttachGroup(ctx context.Context, key entities.GroupKey, locationID string) (int, error) {
	const q = `UPDATE schedules SET location_id = ?
		WHERE parish_id = ? AND location_key = ?`

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

func (s *Store) LocatedSchedules(ctx context.Context) ([]entities.PlacedSchedule, error) {
	const q = `SELECT
			s.id, s.day, s.start_time, s.end_time, s.type, s.observation,
			s.verified_at, s.location_name, s.maps_url,
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
			raw  string
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
		raw string
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
