// Package config provides access to dynamic configuration values stored in
// the system_config table. Environment variables override stored values; the
// env var name derives from the key by uppercasing and replacing dots with
// underscores, so "google.maps.api_key" reads GOOGLE_MAPS_API_KEY.
package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Well-known keys.
const (
	KeyMapsAPIKey      = "google.maps.api_key"
	KeyPendingTTL      = "resolver.pending_ttl"
	KeyConcurrency     = "resolver.concurrency"
	KeyDefaultRadiusKM = "geo.default_radius_km"
)

const defaultTTL = time.Minute

type Service struct {
	db    *sql.DB
	mu    sync.RWMutex
	cache map[string]cachedEntry
}

type cachedEntry struct {
	value     string
	expiresAt time.Time
}

// New builds a Service. A nil db is valid; values then come from the
// environment or the defaults, which is how the sqlite and CLI modes run.
func New(db *sql.DB) *Service {
	return &Service{db: db, cache: make(map[string]cachedEntry)}
}

func (s *Service) GetString(ctx context.Context, key, defaultValue string) (string, error) {
	if v, ok := envOverride(key); ok {
		return v, nil
	}

	v, ok, err := s.lookup(ctx, key)
	if err != nil {
		return "", err
	}

	if !ok {
		return defaultValue, nil
	}

	return v, nil
}

// GetRequiredString returns the value or an error when it is missing
// everywhere.
func (s *Service) GetRequiredString(ctx context.Context, key string) (string, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return "", err
	}

	if v == "" {
		return "", fmt.Errorf("missing required config: %s", key)
	}

	return v, nil
}

func (s *Service) GetInt(ctx context.Context, key string, defaultValue int) (int, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return 0, err
	}

	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue, nil
	}

	return parsed, nil
}

func (s *Service) GetFloat(ctx context.Context, key string, defaultValue float64) (float64, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return 0, err
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return defaultValue, nil
	}

	return parsed, nil
}

func (s *Service) GetBool(ctx context.Context, key string, defaultValue bool) (bool, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return false, err
	}

	if v == "" {
		return defaultValue, nil
	}

	return strings.EqualFold(v, "true") || v == "1", nil
}

// GetDuration parses values like "30m" or "1h30m".
func (s *Service) GetDuration(ctx context.Context, key string, defaultValue time.Duration) (time.Duration, error) {
	v, err := s.GetString(ctx, key, "")
	if err != nil {
		return 0, err
	}

	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return defaultValue, nil
	}

	return parsed, nil
}

// Upsert writes a configuration value and invalidates its cache entry.
func (s *Service) Upsert(ctx context.Context, key, value, description string) error {
	if s.db == nil {
		return errors.New("config store is not backed by a database")
	}

	const q = `INSERT INTO system_config (key, value, description, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, description = EXCLUDED.description, updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, q, key, value, description); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	return nil
}

func (s *Service) lookup(ctx context.Context, key string) (string, bool, error) {
	if v, ok := s.getFromCache(key); ok {
		return v, true, nil
	}

	if s.db == nil {
		return "", false, nil
	}

	const q = `SELECT value FROM system_config WHERE key = $1 LIMIT 1`

	var v string

	err := s.db.QueryRowContext(ctx, q, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, err
	}

	s.putInCache(key, v)

	return v, true, nil
}

func (s *Service) getFromCache(key string) (string, bool) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()

	if !ok {
		return "", false
	}

	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.cache, key)
		s.mu.Unlock()

		return "", false
	}

	return entry.value, true
}

func (s *Service) putInCache(key, value string) {
	s.mu.Lock()
	s.cache[key] = cachedEntry{value: value, expiresAt: time.Now().Add(defaultTTL)}
	s.mu.Unlock()
}

func envOverride(key string) (string, bool) {
	envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if v := os.Getenv(envKey); v != "" {
		return v, true
	}

	return "", false
}
