package backtest

import (
	"time"

	"github.com/wonny/helios/internal/backtestconfig"
)

// atBoundary reports whether today crosses a calendar boundary for the
// configured frequency relative to the previous trading day. The first
// trading day never counts: the bootstrap rebalance is the forced
// trigger's job.
func atBoundary(freq backtestconfig.Frequency, prev, today time.Time) bool {
	switch freq {
	case backtestconfig.FreqDaily:
		return true
	case backtestconfig.FreqWeekly:
		py, pw := prev.ISOWeek()
		ty, tw := today.ISOWeek()
		return py != ty || pw != tw
	case backtestconfig.FreqMonthly:
		return prev.Month() != today.Month() || prev.Year() != today.Year()
	case backtestconfig.FreqQuarterly:
		return quarter(prev) != quarter(today) || prev.Year() != today.Year()
	case backtestconfig.FreqAnnual:
		return prev.Year() != today.Year()
	}
	return false
}

func quarter(t time.Time) int {
	return (int(t.Month()) - 1) / 3
}
