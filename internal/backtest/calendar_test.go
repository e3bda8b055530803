package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/helios/internal/backtestconfig"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestAtBoundary(t *testing.T) {
	tests := []struct {
		name string
		freq backtestconfig.Frequency
		prev time.Time
		day  time.Time
		want bool
	}{
		{"daily always", backtestconfig.FreqDaily, d(2024, 1, 2), d(2024, 1, 3), true},
		{"weekly same week", backtestconfig.FreqWeekly, d(2024, 1, 2), d(2024, 1, 4), false},
		{"weekly monday", backtestconfig.FreqWeekly, d(2024, 1, 5), d(2024, 1, 8), true},
		{"monthly same month", backtestconfig.FreqMonthly, d(2024, 1, 15), d(2024, 1, 16), false},
		{"monthly first trading day", backtestconfig.FreqMonthly, d(2024, 1, 31), d(2024, 2, 1), true},
		{"monthly across gap", backtestconfig.FreqMonthly, d(2024, 1, 30), d(2024, 2, 5), true},
		{"quarterly inside quarter", backtestconfig.FreqQuarterly, d(2024, 2, 1), d(2024, 3, 1), false},
		{"quarterly boundary", backtestconfig.FreqQuarterly, d(2024, 3, 29), d(2024, 4, 1), true},
		{"annual inside year", backtestconfig.FreqAnnual, d(2024, 3, 1), d(2024, 11, 1), false},
		{"annual boundary", backtestconfig.FreqAnnual, d(2023, 12, 29), d(2024, 1, 2), true},
		{"quarterly year wrap", backtestconfig.FreqQuarterly, d(2023, 12, 29), d(2024, 1, 2), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, atBoundary(tt.freq, tt.prev, tt.day))
		})
	}
}
