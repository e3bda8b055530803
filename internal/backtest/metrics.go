package backtest

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/helios/internal/contracts"
)

const tradingDaysPerYear = 252

// computeMetrics derives performance statistics purely from the equity
// curve and the rebalance event log. No side effects, no engine state.
func computeMetrics(curve []contracts.EquityPoint, events []contracts.RebalanceEvent) contracts.PerformanceMetrics {
	m := contracts.PerformanceMetrics{
		RebalanceCount: len(events),
		TradingDays:    len(curve),
	}
	if len(curve) > 0 {
		m.StartDate = curve[0].Date
		m.EndDate = curve[len(curve)-1].Date
	}
	if len(curve) < 2 {
		return m
	}

	initial := curve[0].Value
	final := curve[len(curve)-1].Value
	m.TotalReturn = final/initial - 1.0

	years := float64(len(curve)) / tradingDaysPerYear
	if years > 0 && final > 0 && initial > 0 {
		m.AnnualizedReturn = math.Pow(final/initial, 1.0/years) - 1.0
	}

	daily := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		daily = append(daily, curve[i].Value/curve[i-1].Value-1.0)
	}

	m.Volatility = stat.StdDev(daily, nil) * math.Sqrt(tradingDaysPerYear)
	if m.Volatility > 0 {
		m.Sharpe = m.AnnualizedReturn / m.Volatility
	}

	var downside []float64
	var wins, losses []float64
	for _, r := range daily {
		if r < 0 {
			downside = append(downside, r)
			losses = append(losses, r)
		} else if r > 0 {
			wins = append(wins, r)
		}
	}
	if len(downside) > 1 {
		dd := stat.StdDev(downside, nil) * math.Sqrt(tradingDaysPerYear)
		if dd > 0 {
			m.Sortino = m.AnnualizedReturn / dd
		}
	}

	m.MaxDrawdown = maxDrawdown(curve)
	if m.MaxDrawdown > 0 {
		m.Calmar = m.AnnualizedReturn / m.MaxDrawdown
	}

	m.ValueAtRisk = valueAtRisk(daily, 0.95)
	m.ExpectedShortfall = expectedShortfall(daily, 0.95)

	if len(daily) > 0 {
		m.WinRate = float64(len(wins)) / float64(len(daily))
	}
	if len(wins) > 0 {
		m.AvgWin = stat.Mean(wins, nil)
	}
	if len(losses) > 0 {
		m.AvgLoss = stat.Mean(losses, nil)
	}

	for _, ev := range events {
		m.TotalCosts += ev.Cost
		m.MeanTurnover += ev.Turnover
	}
	if len(events) > 0 {
		m.MeanTurnover /= float64(len(events))
	}

	return m
}

// maxDrawdown is the largest peak-to-trough decline in the curve
func maxDrawdown(curve []contracts.EquityPoint) float64 {
	worst := 0.0
	peak := curve[0].Value
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (peak - p.Value) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// valueAtRisk is the boundary return of the worst (1-level) fraction
// of daily returns. Negative when the tail loses money.
func valueAtRisk(daily []float64, level float64) float64 {
	if len(daily) == 0 {
		return 0
	}
	sorted := make([]float64, len(daily))
	copy(sorted, daily)
	sort.Float64s(sorted)

	n := int(math.Ceil(float64(len(sorted)) * (1.0 - level)))
	if n < 1 {
		n = 1
	}
	return sorted[n-1]
}

// expectedShortfall is the mean of the worst (1-level) fraction of
// daily returns. Negative when the tail loses money.
func expectedShortfall(daily []float64, level float64) float64 {
	if len(daily) == 0 {
		return 0
	}
	sorted := make([]float64, len(daily))
	copy(sorted, daily)
	sort.Float64s(sorted)

	n := int(math.Ceil(float64(len(sorted)) * (1.0 - level)))
	if n < 1 {
		n = 1
	}
	return stat.Mean(sorted[:n], nil)
}
