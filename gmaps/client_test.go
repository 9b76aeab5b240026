package gmaps_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lucasrcezimbra/missas/gmaps"
)

func TestClientWithoutKeyShortCircuits(t *testing.T) {
	c, err := gmaps.NewClient("", zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()

	search, err := c.SearchByText(ctx, "igreja matriz natal rn")
	require.NoError(t, err)
	assert.Equal(t, gmaps.StatusNotConfigured, search.Status)
	assert.Empty(t, search.Places)

	details, err := c.DetailsByPlaceID(ctx, "ChIJ123ABC")
	require.NoError(t, err)
	assert.Equal(t, gmaps.StatusNotConfigured, details.Status)

	reverse, err := c.ReverseGeocode(ctx, -5.79, -35.21)
	require.NoError(t, err)
	assert.Equal(t, gmaps.StatusNotConfigured, reverse.Status)
}
