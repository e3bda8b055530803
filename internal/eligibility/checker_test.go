package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

// newReturns builds a 10-day matrix where OLD has full history, LATE
// lists on day 6, and GAPPY has history but missing cells.
func newReturns(t *testing.T) *timeseries.Matrix {
	t.Helper()

	dates := make([]time.Time, 10)
	rows := make([][]float64, 10)
	for i := 0; i < 10; i++ {
		dates[i] = day(i + 1)
		old := 0.01
		late := timeseries.Missing()
		if i >= 5 {
			late = 0.02
		}
		gappy := 0.005
		if i%2 == 1 {
			gappy = timeseries.Missing()
		}
		rows[i] = []float64{old, late, gappy}
	}

	m, err := timeseries.New(dates, []string{"OLD", "LATE", "GAPPY"}, rows)
	require.NoError(t, err)
	return m
}

func newChecker(t *testing.T, cfg Config) *Checker {
	t.Helper()
	c, err := NewChecker(cfg, logger.Nop())
	require.NoError(t, err)
	return c
}

func TestEligible_MinHistoryDays(t *testing.T) {
	m := newReturns(t)
	c := newChecker(t, Config{MinHistoryDays: 5, MinPriceRows: 1})

	// As of day 8: OLD listed day 1 (7 days of age), LATE listed day 6
	// (2 days of age), GAPPY listed day 1.
	result, err := c.Eligible(m, day(8))
	require.NoError(t, err)

	assert.Equal(t, []string{"GAPPY", "OLD"}, result.Symbols)
	assert.Contains(t, result.Excluded["LATE"], "history")
}

func TestEligible_MinPriceRows(t *testing.T) {
	m := newReturns(t)
	c := newChecker(t, Config{MinHistoryDays: 0, MinPriceRows: 5})

	// As of day 7: GAPPY has 4 valid rows (days 1,3,5,7), below 5.
	result, err := c.Eligible(m, day(7))
	require.NoError(t, err)

	assert.True(t, result.Contains("OLD"))
	assert.False(t, result.Contains("GAPPY"))
	assert.Contains(t, result.Excluded["GAPPY"], "rows")
}

func TestEligible_BeforeDatasetStart(t *testing.T) {
	m := newReturns(t)
	c := newChecker(t, Config{MinHistoryDays: 1, MinPriceRows: 1})

	result, err := c.Eligible(m, day(1).Add(-48*time.Hour))
	require.NoError(t, err, "early-period emptiness must not be an error")
	assert.Empty(t, result.Symbols)
}

func TestEligible_NoLookahead(t *testing.T) {
	m := newReturns(t)
	c := newChecker(t, Config{MinHistoryDays: 2, MinPriceRows: 2})

	asOf := day(5)
	before, err := c.Eligible(m, asOf)
	require.NoError(t, err)

	// Truncating everything after asOf must not change the answer.
	truncated := m.Through(asOf)
	after, err := c.Eligible(truncated, asOf)
	require.NoError(t, err)

	assert.Equal(t, before.Symbols, after.Symbols)
	assert.Equal(t, before.Excluded, after.Excluded)
}

func TestEligible_Deterministic(t *testing.T) {
	m := newReturns(t)
	c := newChecker(t, Config{MinHistoryDays: 3, MinPriceRows: 2})

	first, err := c.Eligible(m, day(9))
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := c.Eligible(m, day(9))
		require.NoError(t, err)
		assert.Equal(t, first.Symbols, again.Symbols)
	}
}

func TestNewChecker_Validation(t *testing.T) {
	_, err := NewChecker(Config{MinHistoryDays: -1}, logger.Nop())
	require.Error(t, err)

	_, err = NewChecker(Config{MinPriceRows: -1}, logger.Nop())
	require.Error(t, err)
}
