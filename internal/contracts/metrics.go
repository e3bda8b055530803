package contracts

import "time"

// PerformanceMetrics is a flat, serializable summary derived purely from
// the equity curve and the rebalance event log. No behavior attached:
// downstream reporting consumes it as-is.
type PerformanceMetrics struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// 수익률
	TotalReturn      float64 `json:"total_return"`
	AnnualizedReturn float64 `json:"annualized_return"`

	// 리스크 지표
	Volatility        float64 `json:"volatility"` // annualized
	Sharpe            float64 `json:"sharpe"`
	Sortino           float64 `json:"sortino"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	Calmar            float64 `json:"calmar"`
	ValueAtRisk       float64 `json:"value_at_risk_95"`      // daily, 95% confidence
	ExpectedShortfall float64 `json:"expected_shortfall_95"` // daily, 95% confidence

	// 트레이딩 지표
	WinRate        float64 `json:"win_rate"` // fraction of positive daily returns
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	MeanTurnover   float64 `json:"mean_turnover"` // mean |weight delta| per rebalance
	TotalCosts     float64 `json:"total_costs"`
	RebalanceCount int     `json:"rebalance_count"`
	TradingDays    int     `json:"trading_days"`
}
