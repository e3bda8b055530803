// Package backtestconfig defines the YAML run configuration and its
// validation. One file describes one backtest: simulation range,
// rebalance policy, factor preselection, membership rules, strategy
// constraints, and cost assumptions.
package backtestconfig

import (
	"time"

	"github.com/wonny/helios/internal/eligibility"
	"github.com/wonny/helios/internal/factors"
	"github.com/wonny/helios/internal/membership"
	"github.com/wonny/helios/internal/strategy"
)

// Config는 백테스트 실행의 전체 설정
type Config struct {
	Meta        Meta               `yaml:"meta" json:"meta"`
	Simulation  Simulation         `yaml:"simulation" json:"simulation"`
	Rebalance   Rebalance          `yaml:"rebalance" json:"rebalance"`
	Strategy    StrategySection    `yaml:"strategy" json:"strategy"`
	Eligibility EligibilitySection `yaml:"eligibility" json:"eligibility"`
	Preselect   PreselectSection   `yaml:"preselect" json:"preselect"`
	Membership  MembershipSection  `yaml:"membership" json:"membership"`
	Costs       Costs              `yaml:"costs" json:"costs"`
	Cache       CacheSection       `yaml:"cache" json:"cache"`
}

// Meta 메타 정보
type Meta struct {
	RunID       string `yaml:"run_id" json:"run_id"`
	Description string `yaml:"description" json:"description"`
}

// Simulation bounds and capital
type Simulation struct {
	StartDate      string  `yaml:"start_date" json:"start_date"` // YYYY-MM-DD
	EndDate        string  `yaml:"end_date" json:"end_date"`     // YYYY-MM-DD
	InitialCapital float64 `yaml:"initial_capital" json:"initial_capital"`
	CashReservePct float64 `yaml:"cash_reserve_pct" json:"cash_reserve_pct"` // [0, 1]
}

// Start returns the parsed start date; call only after Validate
func (s Simulation) Start() time.Time {
	t, _ := time.Parse("2006-01-02", s.StartDate)
	return t
}

// End returns the parsed end date; call only after Validate
func (s Simulation) End() time.Time {
	t, _ := time.Parse("2006-01-02", s.EndDate)
	return t
}

// Frequency of scheduled rebalances
type Frequency string

const (
	FreqDaily     Frequency = "daily"
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqAnnual    Frequency = "annual"
)

// Precedence says which trigger wins when a scheduled boundary and a
// drift breach land on the same day
type Precedence string

const (
	PrecedenceScheduled     Precedence = "scheduled"
	PrecedenceOpportunistic Precedence = "opportunistic"
)

// Rebalance policy: calendar, drift trigger, precedence
type Rebalance struct {
	Frequency Frequency `yaml:"frequency" json:"frequency"`
	// Threshold > 0 enables opportunistic drift rebalances; aggregate
	// absolute deviation from target weights
	Threshold  float64    `yaml:"threshold" json:"threshold"` // [0, 1]
	Precedence Precedence `yaml:"precedence" json:"precedence"`
}

// StrategySection selects and constrains the weighting strategy
type StrategySection struct {
	Name         string               `yaml:"name" json:"name"`
	LookbackDays int                  `yaml:"lookback_days" json:"lookback_days"`
	Constraints  strategy.Constraints `yaml:"constraints" json:"constraints"`
}

// EligibilitySection gates the point-in-time universe filter
type EligibilitySection struct {
	Enable bool `yaml:"enable" json:"enable"`
	eligibility.Config `yaml:",inline"`
}

// PreselectSection configures factor-based candidate narrowing.
// TopK of 0 disables preselection.
type PreselectSection struct {
	TopK    int            `yaml:"top_k" json:"top_k"`
	Factors factors.Config `yaml:",inline"`
}

// MembershipSection gates turnover policy between rebalances
type MembershipSection struct {
	Enable bool `yaml:"enable" json:"enable"`
	membership.Config `yaml:",inline"`
}

// Costs of trading
type Costs struct {
	CommissionPct float64 `yaml:"commission_pct" json:"commission_pct"` // per trade value
	MinCommission float64 `yaml:"min_commission" json:"min_commission"` // per trade floor
	SlippageBps   float64 `yaml:"slippage_bps" json:"slippage_bps"`     // basis points of trade value
}

// CacheSection gates the on-disk factor cache for this run
type CacheSection struct {
	Enable bool `yaml:"enable" json:"enable"`
}
