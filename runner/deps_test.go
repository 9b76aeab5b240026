package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/geo"
	"github.com/lucasrcezimbra/missas/runner"
)

func newDeps(t *testing.T) *runner.Deps {
	t.Helper()

	cfg := runner.Config{
		DBPath:      ":memory:",
		Concurrency: 4,
		PendingTTL:  time.Minute,
	}

	deps, err := runner.NewDeps(context.Background(), &cfg, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = deps.Close() })

	return deps
}

func TestNewDepsDefaults(t *testing.T) {
	deps := newDeps(t)

	assert.NotNil(t, deps.Store)
	assert.NotNil(t, deps.Resolver)
	assert.Equal(t, 4, deps.Concurrency)
	assert.InDelta(t, geo.DefaultRadiusKM, deps.RadiusKM, 0.001)
}

func TestNewDepsReadsDynamicConfig(t *testing.T) {
	t.Setenv("RESOLVER_CONCURRENCY", "8")
	t.Setenv("GEO_DEFAULT_RADIUS_KM", "2.5")

	deps := newDeps(t)

	assert.Equal(t, 8, deps.Concurrency)
	assert.InDelta(t, 2.5, deps.RadiusKM, 0.001)
}
