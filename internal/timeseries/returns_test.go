package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReturnsFromPrices(t *testing.T) {
	dates := []time.Time{day(1), day(2), day(3), day(4)}
	prices, err := New(dates, []string{"AAA", "BBB"}, [][]float64{
		{100, 50},
		{110, Missing()},
		{99, 52},
		{99, 52},
	})
	require.NoError(t, err)

	r := ReturnsFromPrices(prices)
	require.Equal(t, 4, r.Rows())

	assert.True(t, IsMissing(r.Value(0, 0)), "first row has no prior price")
	assert.InDelta(t, 0.10, r.Value(1, 0), 1e-12)
	assert.InDelta(t, -0.10, r.Value(2, 0), 1e-12)
	assert.InDelta(t, 0.0, r.Value(3, 0), 1e-12)

	// BBB's gap poisons both adjacent returns
	assert.True(t, IsMissing(r.Value(1, 1)))
	assert.True(t, IsMissing(r.Value(2, 1)))
	assert.InDelta(t, 0.0, r.Value(3, 1), 1e-12)
}
