// Package backtest runs the day-by-day portfolio simulation. The loop
// is single-threaded and synchronous: holdings and cash mutate in
// place, so one engine instance serves exactly one run.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wonny/helios/internal/backtestconfig"
	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/membership"
	"github.com/wonny/helios/internal/preselect"
	"github.com/wonny/helios/internal/strategy"
	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

// Engine runs backtesting simulations
// ⭐ SSOT: 백테스팅 실행은 여기서만
type Engine struct {
	config   *backtestconfig.Config
	strategy strategy.Strategy
	selector *preselect.Selector // optional, nil disables preselection
	policy   *membership.Policy  // optional, nil disables turnover rules
	regime   strategy.RegimeProvider
	costs    *CostModel
	logger   *logger.Logger

	// mutable per-run state
	cash           float64
	holdings       map[string]float64 // symbol -> quantity
	holdingPeriods map[string]int
	lastPrice      map[string]float64
	targetWeights  contracts.Weights
}

// Result holds one completed simulation
type Result struct {
	RunID       string
	StartDate   time.Time
	EndDate     time.Time
	Duration    time.Duration
	EquityCurve []contracts.EquityPoint
	Events      []contracts.RebalanceEvent
	Metrics     contracts.PerformanceMetrics

	// WindowBuilds counts lookback view constructions; it must always
	// equal len(Events)
	WindowBuilds int
}

// Option configures optional engine collaborators
type Option func(*Engine)

// WithPreselection narrows the universe before weight construction
func WithPreselection(sel *preselect.Selector) Option {
	return func(e *Engine) { e.selector = sel }
}

// WithMembership applies turnover rules between consecutive holdings
func WithMembership(policy *membership.Policy) Option {
	return func(e *Engine) { e.policy = policy }
}

// WithRegime installs a regime tilt provider (default is neutral)
func WithRegime(provider strategy.RegimeProvider) Option {
	return func(e *Engine) { e.regime = provider }
}

// NewEngine creates a backtest engine. The config is validated here so
// a hand-built Config cannot reach the run loop unchecked.
func NewEngine(cfg *backtestconfig.Config, strat strategy.Strategy, log *logger.Logger, opts ...Option) (*Engine, error) {
	if err := backtestconfig.Validate(cfg); err != nil {
		return nil, err
	}
	if strat == nil {
		return nil, fmt.Errorf("backtest: strategy is required")
	}

	costs, err := NewCostModel(cfg.Costs.CommissionPct, cfg.Costs.MinCommission, cfg.Costs.SlippageBps)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		strategy: strat,
		regime:   strategy.NeutralRegime{},
		costs:    costs,
		logger:   log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the simulation over [start_date, end_date]. Prices mark
// the portfolio to market and price trades; returns feed scoring and
// weight construction. Both must cover the simulation range.
func (e *Engine) Run(ctx context.Context, prices, returns *timeseries.Matrix) (*Result, error) {
	start, end := e.config.Simulation.Start(), e.config.Simulation.End()

	if !prices.Covers(start, end) {
		return nil, fmt.Errorf("backtest: insufficient price history: need [%s, %s], have %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"), boundsOf(prices))
	}
	if !returns.Covers(start, end) {
		return nil, fmt.Errorf("backtest: insufficient return history: need [%s, %s], have %s",
			start.Format("2006-01-02"), end.Format("2006-01-02"), boundsOf(returns))
	}

	e.logger.WithFields(map[string]interface{}{
		"run_id":          e.config.Meta.RunID,
		"start_date":      start.Format("2006-01-02"),
		"end_date":        end.Format("2006-01-02"),
		"initial_capital": e.config.Simulation.InitialCapital,
		"strategy":        e.strategy.Name(),
		"frequency":       string(e.config.Rebalance.Frequency),
	}).Info("Starting backtest")

	wallStart := time.Now()

	e.cash = e.config.Simulation.InitialCapital
	e.holdings = make(map[string]float64)
	e.holdingPeriods = make(map[string]int)
	e.lastPrice = make(map[string]float64)
	e.targetWeights = nil

	result := &Result{
		RunID:     e.config.Meta.RunID,
		StartDate: start,
		EndDate:   end,
	}

	first := prices.FirstIndexAtOrAfter(start)
	last := prices.LastIndexAtOrBefore(end)
	if first < 0 || last < 0 || first > last {
		return nil, fmt.Errorf("backtest: no trading days in [%s, %s]",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var prevDay time.Time

	for i := first; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest: aborted at %s: %w",
				prices.Date(i).Format("2006-01-02"), err)
		}

		today := prices.Date(i)
		e.refreshPrices(prices, i)

		// Step 1: mark to market, unconditionally
		value := e.portfolioValue()
		result.EquityCurve = append(result.EquityCurve, contracts.EquityPoint{Date: today, Value: value})

		// Step 2: rebalance eligibility
		avail := returns.LastIndexAtOrBefore(today) + 1
		hasMinHistory := avail >= e.config.Strategy.LookbackDays && avail >= e.strategy.MinLookback()

		// Step 3: trigger evaluation in priority order
		trigger, fire := e.evaluateTrigger(result.Events, hasMinHistory, prevDay, today, value)
		prevDay = today

		if !fire {
			continue
		}

		// Steps 4-5: window construction and the rebalance pipeline run
		// only when a trigger actually fired
		fired, err := e.rebalance(returns, today, value, trigger, result)
		if err != nil {
			return nil, err
		}
		if !fired && trigger == contracts.TriggerForced {
			// Empty universe on the bootstrap day: the forced trigger
			// stays armed, the run continues
			e.logger.WithField("date", today.Format("2006-01-02")).
				Warn("Bootstrap rebalance deferred, no eligible candidates")
		}
	}

	result.Duration = time.Since(wallStart)
	result.Metrics = computeMetrics(result.EquityCurve, result.Events)

	e.logger.WithFields(map[string]interface{}{
		"run_id":        result.RunID,
		"duration_ms":   result.Duration.Milliseconds(),
		"trading_days":  len(result.EquityCurve),
		"rebalances":    len(result.Events),
		"window_builds": result.WindowBuilds,
		"total_return":  fmt.Sprintf("%.2f%%", result.Metrics.TotalReturn*100),
		"max_drawdown":  fmt.Sprintf("%.2f%%", result.Metrics.MaxDrawdown*100),
	}).Info("Backtest completed")

	return result, nil
}

// evaluateTrigger applies the priority order forced > scheduled >
// opportunistic. When a scheduled boundary and a drift breach land on
// the same day, the configured precedence picks the recorded kind.
func (e *Engine) evaluateTrigger(events []contracts.RebalanceEvent, hasMinHistory bool, prevDay, today time.Time, value float64) (contracts.TriggerKind, bool) {
	if len(events) == 0 {
		if hasMinHistory {
			return contracts.TriggerForced, true
		}
		return "", false
	}

	scheduled := hasMinHistory && !prevDay.IsZero() &&
		atBoundary(e.config.Rebalance.Frequency, prevDay, today)

	opportunistic := false
	if e.config.Rebalance.Threshold > 0 && e.targetWeights != nil {
		opportunistic = e.drift(value) > e.config.Rebalance.Threshold
	}

	switch {
	case scheduled && opportunistic:
		if e.config.Rebalance.Precedence == backtestconfig.PrecedenceOpportunistic {
			return contracts.TriggerOpportunistic, true
		}
		return contracts.TriggerScheduled, true
	case scheduled:
		return contracts.TriggerScheduled, true
	case opportunistic:
		return contracts.TriggerOpportunistic, true
	}
	return "", false
}

// rebalance runs preselection, membership, and weight construction,
// then trades into the target. Returns false when the pipeline yields
// no investable universe (not an error).
func (e *Engine) rebalance(returns *timeseries.Matrix, today time.Time, preValue float64, trigger contracts.TriggerKind, result *Result) (bool, error) {
	history := returns.Through(today)

	symbols, ranked, err := e.candidates(history, today)
	if err != nil {
		return false, fmt.Errorf("backtest: rebalance %s: %w", today.Format("2006-01-02"), err)
	}
	if len(symbols) == 0 {
		return false, nil
	}

	if e.policy != nil {
		symbols, err = e.applyMembership(ranked, symbols)
		if err != nil {
			return false, fmt.Errorf("backtest: rebalance %s: %w", today.Format("2006-01-02"), err)
		}
		if len(symbols) == 0 {
			return false, nil
		}
	}

	result.WindowBuilds++
	window, err := e.lookbackWindow(history, symbols)
	if err != nil {
		return false, fmt.Errorf("backtest: rebalance %s: %w", today.Format("2006-01-02"), err)
	}

	weights, err := e.strategy.Construct(window, e.config.Strategy.Constraints)
	if err != nil {
		// Strategy failures carry the rebalance date; callers own
		// retry/skip policy
		return false, fmt.Errorf("backtest: rebalance %s: strategy %s: %w",
			today.Format("2006-01-02"), e.strategy.Name(), err)
	}
	weights = e.regime.Adjust(today, weights)

	if err := e.trade(today, preValue, weights, trigger, result); err != nil {
		return false, err
	}

	e.advanceHoldingPeriods(weights)
	e.targetWeights = weights
	return true, nil
}

// candidates resolves the investable symbol list for this rebalance.
// The second return is the full ranked universe: the membership buffer
// must see the true rank of holdings that fell outside the top-K cut.
func (e *Engine) candidates(history *timeseries.Matrix, today time.Time) ([]string, []contracts.RankedSymbol, error) {
	if e.selector == nil {
		syms := make([]string, len(history.Symbols()))
		copy(syms, history.Symbols())
		return syms, nil, nil
	}

	sel, err := e.selector.Select(history, today)
	if err != nil {
		return nil, nil, err
	}
	return sel.Symbols(), sel.Ranked, nil
}

// applyMembership filters the candidate set through turnover rules
func (e *Engine) applyMembership(ranked []contracts.RankedSymbol, candidates []string) ([]string, error) {
	current := make([]string, 0, len(e.holdings))
	for sym := range e.holdings {
		current = append(current, sym)
	}

	// Policy turnover accounting works on weights; entrants are
	// approximated at equal weight over the candidate set
	target := make(contracts.Weights, len(candidates))
	if len(candidates) > 0 {
		w := 1.0 / float64(len(candidates))
		for _, sym := range candidates {
			target[sym] = w
		}
	}

	decision, err := e.policy.Apply(membership.Request{
		Current:        current,
		HoldingPeriods: e.holdingPeriods,
		Candidates:     ranked,
		CurrentWeights: e.currentWeights(e.portfolioValue()),
		TargetWeights:  target,
	})
	if err != nil {
		return nil, err
	}
	return decision.Next, nil
}

// lookbackWindow restricts history to the held symbols and trims it to
// the configured lookback length
func (e *Engine) lookbackWindow(history *timeseries.Matrix, symbols []string) (*timeseries.Matrix, error) {
	sub, err := history.Select(symbols)
	if err != nil {
		return nil, err
	}
	if n := sub.Rows() - e.config.Strategy.LookbackDays; n > 0 {
		sub = sub.Slice(n, sub.Rows())
	}
	return sub, nil
}

// trade moves the portfolio to the target weights at today's prices
// and records the event
func (e *Engine) trade(today time.Time, preValue float64, weights contracts.Weights, trigger contracts.TriggerKind, result *Result) error {
	investable := preValue * (1.0 - e.config.Simulation.CashReservePct)
	cashBefore := e.cash

	var trades []contracts.Trade
	tradeMap := make(map[string]float64)

	// Sells and buys for symbols entering, staying, or leaving
	targets := make(map[string]float64, len(weights))
	for sym, w := range weights {
		targets[sym] = investable * w
	}
	for sym := range e.holdings {
		if _, ok := targets[sym]; !ok {
			targets[sym] = 0
		}
	}

	for sym, targetValue := range targets {
		price, ok := e.lastPrice[sym]
		if !ok || price <= 0 {
			return fmt.Errorf("backtest: rebalance %s: no usable price for %s",
				today.Format("2006-01-02"), sym)
		}
		deltaQty := targetValue/price - e.holdings[sym]
		if math.Abs(deltaQty)*price < 1e-9 {
			continue
		}
		trades = append(trades, contracts.Trade{
			Symbol:   sym,
			Quantity: deltaQty,
			Price:    price,
			Value:    deltaQty * price,
		})
		tradeMap[sym] = deltaQty
	}

	cost := e.costs.Cost(trades)

	for _, tr := range trades {
		e.cash -= tr.Value
		next := e.holdings[tr.Symbol] + tr.Quantity
		if math.Abs(next) < 1e-12 {
			delete(e.holdings, tr.Symbol)
		} else {
			e.holdings[tr.Symbol] = next
		}
	}
	e.cash -= cost

	if e.cash < -1e-6 {
		return fmt.Errorf("backtest: rebalance %s: cash would go negative (%.2f) after costs %.2f; "+
			"lower cash_reserve_pct or cost assumptions", today.Format("2006-01-02"), e.cash, cost)
	}

	turnover := 0.0
	if preValue > 0 {
		for _, tr := range trades {
			turnover += math.Abs(tr.Value)
		}
		turnover /= preValue
	}

	result.Events = append(result.Events, contracts.RebalanceEvent{
		Date:       today,
		Trigger:    trigger,
		Trades:     tradeMap,
		Cost:       cost,
		PreValue:   preValue,
		PostValue:  e.portfolioValue(),
		CashBefore: cashBefore,
		CashAfter:  e.cash,
		Turnover:   turnover,
	})

	e.logger.WithFields(map[string]interface{}{
		"date":     today.Format("2006-01-02"),
		"trigger":  string(trigger),
		"holdings": len(e.holdings),
		"trades":   len(trades),
		"cost":     cost,
	}).Debug("Rebalance executed")

	return nil
}

// advanceHoldingPeriods increments retained symbols, starts new ones
// at 1, and forgets dropped ones
func (e *Engine) advanceHoldingPeriods(weights contracts.Weights) {
	next := make(map[string]int, len(weights))
	for sym := range weights {
		next[sym] = e.holdingPeriods[sym] + 1
	}
	e.holdingPeriods = next
}

// refreshPrices records today's valid closes for mark-to-market; a
// missing cell keeps the previous known price
func (e *Engine) refreshPrices(prices *timeseries.Matrix, i int) {
	for j := 0; j < prices.Cols(); j++ {
		v := prices.Value(i, j)
		if !math.IsNaN(v) && v > 0 {
			e.lastPrice[prices.Symbol(j)] = v
		}
	}
}

func (e *Engine) portfolioValue() float64 {
	value := e.cash
	for sym, qty := range e.holdings {
		value += qty * e.lastPrice[sym]
	}
	return value
}

// currentWeights marks holdings against the latest prices
func (e *Engine) currentWeights(value float64) contracts.Weights {
	w := make(contracts.Weights, len(e.holdings))
	if value <= 0 {
		return w
	}
	for sym, qty := range e.holdings {
		w[sym] = qty * e.lastPrice[sym] / value
	}
	return w
}

// drift is the aggregate absolute deviation of current weights from
// the last target
func (e *Engine) drift(value float64) float64 {
	current := e.currentWeights(value)
	total := 0.0
	seen := make(map[string]bool, len(current))
	for sym, w := range current {
		total += math.Abs(w - e.targetWeights[sym])
		seen[sym] = true
	}
	for sym, w := range e.targetWeights {
		if !seen[sym] {
			total += math.Abs(w)
		}
	}
	return total
}

func boundsOf(m *timeseries.Matrix) string {
	if m.Rows() == 0 {
		return "[empty]"
	}
	return fmt.Sprintf("[%s, %s]",
		m.Date(0).Format("2006-01-02"), m.Date(m.Rows()-1).Format("2006-01-02"))
}
