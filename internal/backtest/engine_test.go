package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/helios/internal/backtestconfig"
	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/eligibility"
	"github.com/wonny/helios/internal/factors"
	"github.com/wonny/helios/internal/membership"
	"github.com/wonny/helios/internal/preselect"
	"github.com/wonny/helios/internal/strategy"
	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

// market builds consistent price/return matrices over consecutive
// calendar days starting 2024-01-01. growth maps symbol to its constant
// daily return.
func market(t *testing.T, days int, growth map[string]float64) (prices, returns *timeseries.Matrix) {
	t.Helper()

	symbols := make([]string, 0, len(growth))
	for sym := range growth {
		symbols = append(symbols, sym)
	}
	// map order is random; fix it for reproducible fixtures
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			if symbols[j] < symbols[i] {
				symbols[i], symbols[j] = symbols[j], symbols[i]
			}
		}
	}

	dates := make([]time.Time, days)
	priceRows := make([][]float64, days)
	returnRows := make([][]float64, days)
	level := make([]float64, len(symbols))
	for j := range symbols {
		level[j] = 100.0
	}

	for i := 0; i < days; i++ {
		dates[i] = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		priceRows[i] = make([]float64, len(symbols))
		returnRows[i] = make([]float64, len(symbols))
		for j, sym := range symbols {
			g := growth[sym]
			if i > 0 {
				level[j] *= 1.0 + g
			}
			priceRows[i][j] = level[j]
			returnRows[i][j] = g
		}
	}

	var err error
	prices, err = timeseries.New(dates, symbols, priceRows)
	require.NoError(t, err)
	returns, err = timeseries.New(dates, symbols, returnRows)
	require.NoError(t, err)
	return prices, returns
}

func baseConfig(start, end string) *backtestconfig.Config {
	return &backtestconfig.Config{
		Meta: backtestconfig.Meta{RunID: "test-run"},
		Simulation: backtestconfig.Simulation{
			StartDate:      start,
			EndDate:        end,
			InitialCapital: 1_000_000,
		},
		Rebalance: backtestconfig.Rebalance{Frequency: backtestconfig.FreqMonthly},
		Strategy:  backtestconfig.StrategySection{Name: "equal_weight", LookbackDays: 5},
	}
}

func run(t *testing.T, cfg *backtestconfig.Config, prices, returns *timeseries.Matrix, opts ...Option) *Result {
	t.Helper()
	eng, err := NewEngine(cfg, &strategy.EqualWeight{}, logger.Nop(), opts...)
	require.NoError(t, err)
	res, err := eng.Run(context.Background(), prices, returns)
	require.NoError(t, err)
	return res
}

func TestRun_EquityCurveCoversEveryTradingDay(t *testing.T) {
	prices, returns := market(t, 46, map[string]float64{"AAA": 0.01, "BBB": 0.0})
	res := run(t, baseConfig("2024-01-01", "2024-02-15"), prices, returns)

	require.Len(t, res.EquityCurve, 46)
	for i := 1; i < len(res.EquityCurve); i++ {
		assert.True(t, res.EquityCurve[i].Date.After(res.EquityCurve[i-1].Date),
			"equity curve must be strictly increasing in date")
	}
	assert.InDelta(t, 1_000_000, res.EquityCurve[0].Value, 1e-6)
}

func TestRun_ForcedThenScheduled(t *testing.T) {
	prices, returns := market(t, 46, map[string]float64{"AAA": 0.01, "BBB": 0.0})
	res := run(t, baseConfig("2024-01-01", "2024-02-15"), prices, returns)

	// Bootstrap fires on the first day with 5 rows of history, the
	// monthly boundary fires on Feb 1
	require.Len(t, res.Events, 2)
	assert.Equal(t, contracts.TriggerForced, res.Events[0].Trigger)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), res.Events[0].Date)
	assert.Equal(t, contracts.TriggerScheduled, res.Events[1].Trigger)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), res.Events[1].Date)
}

func TestRun_WindowBuildsEqualsEventCount(t *testing.T) {
	prices, returns := market(t, 90, map[string]float64{"AAA": 0.01, "BBB": 0.0, "CCC": -0.002})

	cfg := baseConfig("2024-01-01", "2024-03-30")
	cfg.Rebalance.Frequency = backtestconfig.FreqWeekly
	res := run(t, cfg, prices, returns)

	assert.Greater(t, len(res.Events), 5)
	assert.Equal(t, len(res.Events), res.WindowBuilds,
		"lookback windows must be built exactly once per rebalance, never per day")
}

func TestRun_OpportunisticDrift(t *testing.T) {
	// Diverging prices with an annual calendar: only drift can trigger
	// after the bootstrap
	prices, returns := market(t, 60, map[string]float64{"AAA": 0.02, "BBB": -0.01})

	cfg := baseConfig("2024-01-01", "2024-02-29")
	cfg.Rebalance.Frequency = backtestconfig.FreqAnnual
	cfg.Rebalance.Threshold = 0.05
	res := run(t, cfg, prices, returns)

	require.Greater(t, len(res.Events), 1)
	assert.Equal(t, contracts.TriggerForced, res.Events[0].Trigger)
	for _, ev := range res.Events[1:] {
		assert.Equal(t, contracts.TriggerOpportunistic, ev.Trigger)
	}
}

func TestRun_PrecedenceWhenBothTriggersFire(t *testing.T) {
	prices, returns := market(t, 30, map[string]float64{"AAA": 0.03, "BBB": -0.02})

	// Daily calendar plus a tiny drift threshold: both conditions hold
	// on most days after the bootstrap
	cfg := baseConfig("2024-01-01", "2024-01-30")
	cfg.Rebalance.Frequency = backtestconfig.FreqDaily
	cfg.Rebalance.Threshold = 0.001

	cfg.Rebalance.Precedence = backtestconfig.PrecedenceScheduled
	res := run(t, cfg, prices, returns)
	require.Greater(t, len(res.Events), 2)
	assert.Equal(t, contracts.TriggerScheduled, res.Events[1].Trigger)

	cfg.Rebalance.Precedence = backtestconfig.PrecedenceOpportunistic
	res = run(t, cfg, prices, returns)
	require.Greater(t, len(res.Events), 2)
	assert.Equal(t, contracts.TriggerOpportunistic, res.Events[1].Trigger)
}

func TestRun_DeferredBootstrapOnEmptyEligibility(t *testing.T) {
	prices, returns := market(t, 59, map[string]float64{"AAA": 0.01, "BBB": 0.005, "CCC": 0.0})

	checker, err := eligibility.NewChecker(eligibility.Config{
		MinHistoryDays: 30,
		MinPriceRows:   5,
	}, logger.Nop())
	require.NoError(t, err)

	scorer, err := factors.NewScorer(factors.Config{
		Method:       factors.MethodMomentum,
		LookbackDays: 3,
		MinPeriods:   3,
	}, logger.Nop())
	require.NoError(t, err)

	sel, err := preselect.NewSelector(scorer, 2, logger.Nop(), preselect.WithEligibility(checker))
	require.NoError(t, err)

	res := run(t, baseConfig("2024-01-05", "2024-02-28"), prices, returns, WithPreselection(sel))

	// No asset satisfies min_history_days until late January: the
	// bootstrap stays armed instead of failing the run
	require.NotEmpty(t, res.Events)
	assert.Equal(t, contracts.TriggerForced, res.Events[0].Trigger)
	assert.False(t, res.Events[0].Date.Before(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)),
		"first rebalance must wait for a non-empty eligible set")
	assert.Equal(t, len(res.Events), res.WindowBuilds)
}

func TestRun_BufferRetainsHoldingOutsideSelectionCut(t *testing.T) {
	// Two growth regimes: AAA and BBB lead through mid-January, then CCC
	// and DDD take over from Jan 20. On the Feb 1 rebalance AAA's true
	// rank is 3, inside the buffer band but outside the selection cut,
	// while BBB falls to rank 5, past the buffer.
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	early := map[string]float64{"AAA": 0.03, "BBB": 0.02, "CCC": 0.0, "DDD": 0.0, "EEE": -0.01}
	late := map[string]float64{"AAA": 0.01, "BBB": -0.02, "CCC": 0.03, "DDD": 0.02, "EEE": -0.01}

	days := 61
	dates := make([]time.Time, days)
	priceRows := make([][]float64, days)
	returnRows := make([][]float64, days)
	level := map[string]float64{}
	for _, sym := range symbols {
		level[sym] = 100.0
	}
	for i := 0; i < days; i++ {
		dates[i] = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
		growth := early
		if i >= 19 {
			growth = late
		}
		priceRows[i] = make([]float64, len(symbols))
		returnRows[i] = make([]float64, len(symbols))
		for j, sym := range symbols {
			g := growth[sym]
			if i > 0 {
				level[sym] *= 1.0 + g
			}
			priceRows[i][j] = level[sym]
			returnRows[i][j] = g
		}
	}
	prices, err := timeseries.New(dates, symbols, priceRows)
	require.NoError(t, err)
	returns, err := timeseries.New(dates, symbols, returnRows)
	require.NoError(t, err)

	scorer, err := factors.NewScorer(factors.Config{
		Method:       factors.MethodMomentum,
		LookbackDays: 3,
		MinPeriods:   3,
	}, logger.Nop())
	require.NoError(t, err)
	sel, err := preselect.NewSelector(scorer, 2, logger.Nop())
	require.NoError(t, err)
	policy, err := membership.NewPolicy(membership.Config{TopK: 2, BufferRank: 4}, logger.Nop())
	require.NoError(t, err)

	res := run(t, baseConfig("2024-01-01", "2024-03-01"), prices, returns,
		WithPreselection(sel), WithMembership(policy))
	require.GreaterOrEqual(t, len(res.Events), 2)

	// Net positions after the bootstrap and the Feb 1 rebalance
	held := make(map[string]float64)
	for _, ev := range res.Events[:2] {
		for sym, qty := range ev.Trades {
			held[sym] += qty
		}
	}
	assert.Greater(t, held["AAA"], 0.0, "holding ranked inside the buffer must be retained")
	assert.InDelta(t, 0.0, held["BBB"], 1e-9, "holding ranked past the buffer must be removed")
	assert.Greater(t, held["CCC"], 0.0)
	assert.Greater(t, held["DDD"], 0.0)
	assert.NotContains(t, held, "EEE", "unheld symbols outside the cut are never admitted")
}

func TestRun_CashConservation(t *testing.T) {
	prices, returns := market(t, 46, map[string]float64{"AAA": 0.01, "BBB": 0.0})

	cfg := baseConfig("2024-01-01", "2024-02-15")
	cfg.Simulation.CashReservePct = 0.05
	cfg.Costs = backtestconfig.Costs{CommissionPct: 0.001, SlippageBps: 10}
	res := run(t, cfg, prices, returns)

	for _, ev := range res.Events {
		assert.GreaterOrEqual(t, ev.CashAfter, -1e-6, "cash must never go negative")
		assert.Greater(t, ev.Cost, 0.0)
		assert.InDelta(t, ev.PreValue-ev.Cost, ev.PostValue, 1e-6,
			"rebalancing at the close only moves value through costs")
	}
	assert.Greater(t, res.Metrics.TotalCosts, 0.0)
}

func TestRun_NegativeCashIsFatal(t *testing.T) {
	prices, returns := market(t, 46, map[string]float64{"AAA": 0.01, "BBB": 0.0})

	cfg := baseConfig("2024-01-01", "2024-02-15")
	cfg.Costs.MinCommission = 600_000 // absurd per-trade floor

	eng, err := NewEngine(cfg, &strategy.EqualWeight{}, logger.Nop())
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), prices, returns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cash would go negative")
}

func TestRun_InsufficientHistoryNamesRange(t *testing.T) {
	prices, returns := market(t, 30, map[string]float64{"AAA": 0.01})

	cfg := baseConfig("2023-06-01", "2024-01-30")
	eng, err := NewEngine(cfg, &strategy.EqualWeight{}, logger.Nop())
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), prices, returns)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient price history")
	assert.Contains(t, err.Error(), "2023-06-01")
}

type failingStrategy struct{}

func (failingStrategy) Name() string     { return "failing" }
func (failingStrategy) MinLookback() int { return 1 }
func (failingStrategy) Construct(*timeseries.Matrix, strategy.Constraints) (contracts.Weights, error) {
	return nil, strategy.ErrOptimizationFailure
}

func TestRun_StrategyFailureTaggedWithDate(t *testing.T) {
	prices, returns := market(t, 46, map[string]float64{"AAA": 0.01, "BBB": 0.0})

	eng, err := NewEngine(baseConfig("2024-01-01", "2024-02-15"), failingStrategy{}, logger.Nop())
	require.NoError(t, err)

	_, err = eng.Run(context.Background(), prices, returns)
	require.Error(t, err)
	assert.ErrorIs(t, err, strategy.ErrOptimizationFailure)
	assert.Contains(t, err.Error(), "2024-01-05", "strategy failures must carry the rebalance date")
}

func TestRun_ContextCancellation(t *testing.T) {
	prices, returns := market(t, 46, map[string]float64{"AAA": 0.01, "BBB": 0.0})

	eng, err := NewEngine(baseConfig("2024-01-01", "2024-02-15"), &strategy.EqualWeight{}, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = eng.Run(ctx, prices, returns)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_MetricsDerived(t *testing.T) {
	prices, returns := market(t, 46, map[string]float64{"AAA": 0.01, "BBB": 0.0})
	res := run(t, baseConfig("2024-01-01", "2024-02-15"), prices, returns)

	m := res.Metrics
	assert.Greater(t, m.TotalReturn, 0.0)
	assert.Greater(t, m.AnnualizedReturn, 0.0)
	assert.Equal(t, len(res.Events), m.RebalanceCount)
	assert.Equal(t, 46, m.TradingDays)
	assert.GreaterOrEqual(t, m.WinRate, 0.0)
	assert.LessOrEqual(t, m.WinRate, 1.0)
}
