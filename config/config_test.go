package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasrcezimbra/missas/config"
)

func TestEnvOverride(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "test-key")

	svc := config.New(nil)

	v, err := svc.GetString(context.Background(), config.KeyMapsAPIKey, "")
	require.NoError(t, err)
	assert.Equal(t, "test-key", v)
}

func TestDefaults(t *testing.T) {
	svc := config.New(nil)
	ctx := context.Background()

	v, err := svc.GetString(ctx, "missing.key", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	n, err := svc.GetInt(ctx, "missing.key", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	f, err := svc.GetFloat(ctx, config.KeyDefaultRadiusKM, 10)
	require.NoError(t, err)
	assert.Equal(t, 10.0, f)

	d, err := svc.GetDuration(ctx, config.KeyPendingTTL, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, d)
}

func TestTypedEnvValues(t *testing.T) {
	t.Setenv("RESOLVER_CONCURRENCY", "8")
	t.Setenv("RESOLVER_PENDING_TTL", "15m")
	t.Setenv("GEO_DEFAULT_RADIUS_KM", "2.5")

	svc := config.New(nil)
	ctx := context.Background()

	n, err := svc.GetInt(ctx, config.KeyConcurrency, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	d, err := svc.GetDuration(ctx, config.KeyPendingTTL, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	f, err := svc.GetFloat(ctx, config.KeyDefaultRadiusKM, 10)
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)
}

func TestRequiredString(t *testing.T) {
	svc := config.New(nil)

	_, err := svc.GetRequiredString(context.Background(), "missing.required")
	assert.Error(t, err)
}

func TestBadValueFallsBackToDefault(t *testing.T) {
	t.Setenv("RESOLVER_CONCURRENCY", "not-a-number")

	svc := config.New(nil)

	n, err := svc.GetInt(context.Background(), config.KeyConcurrency, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
