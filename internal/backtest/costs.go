package backtest

import (
	"fmt"
	"math"

	"github.com/wonny/helios/internal/contracts"
)

// CostModel prices a trade list: percentage commission with a
// per-trade floor, plus slippage in basis points of traded value.
// Pure: no state, no side effects.
type CostModel struct {
	CommissionPct float64
	MinCommission float64
	SlippageBps   float64
}

// NewCostModel validates and builds the model
func NewCostModel(commissionPct, minCommission, slippageBps float64) (*CostModel, error) {
	if commissionPct < 0 {
		return nil, fmt.Errorf("backtest: commission_pct must be >= 0, got %f", commissionPct)
	}
	if minCommission < 0 {
		return nil, fmt.Errorf("backtest: min_commission must be >= 0, got %f", minCommission)
	}
	if slippageBps < 0 {
		return nil, fmt.Errorf("backtest: slippage_bps must be >= 0, got %f", slippageBps)
	}
	return &CostModel{
		CommissionPct: commissionPct,
		MinCommission: minCommission,
		SlippageBps:   slippageBps,
	}, nil
}

// Cost returns the total monetary cost of executing the trades
func (m *CostModel) Cost(trades []contracts.Trade) float64 {
	total := 0.0
	for _, tr := range trades {
		value := math.Abs(tr.Value)
		if value == 0 {
			continue
		}
		commission := value * m.CommissionPct
		if commission < m.MinCommission {
			commission = m.MinCommission
		}
		slippage := value * m.SlippageBps / 10_000
		total += commission + slippage
	}
	return total
}
