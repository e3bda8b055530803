package backtestconfig

import (
	"fmt"
	"time"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Simulation ===
	start, err := time.Parse("2006-01-02", cfg.Simulation.StartDate)
	if err != nil {
		return ValidationError{"simulation.start_date", "must be YYYY-MM-DD"}
	}
	end, err := time.Parse("2006-01-02", cfg.Simulation.EndDate)
	if err != nil {
		return ValidationError{"simulation.end_date", "must be YYYY-MM-DD"}
	}
	if !start.Before(end) {
		return ValidationError{"simulation", fmt.Sprintf("start_date %s must be before end_date %s",
			cfg.Simulation.StartDate, cfg.Simulation.EndDate)}
	}
	if cfg.Simulation.InitialCapital <= 0 {
		return ValidationError{"simulation.initial_capital",
			fmt.Sprintf("must be > 0, got %.2f", cfg.Simulation.InitialCapital)}
	}
	if cfg.Simulation.CashReservePct < 0 || cfg.Simulation.CashReservePct > 1 {
		return ValidationError{"simulation.cash_reserve_pct",
			fmt.Sprintf("must be in [0, 1], got %.4f", cfg.Simulation.CashReservePct)}
	}

	// === Rebalance ===
	switch cfg.Rebalance.Frequency {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqQuarterly, FreqAnnual:
	default:
		return ValidationError{"rebalance.frequency",
			fmt.Sprintf("must be one of daily/weekly/monthly/quarterly/annual, got %q", cfg.Rebalance.Frequency)}
	}
	if cfg.Rebalance.Threshold < 0 || cfg.Rebalance.Threshold > 1 {
		return ValidationError{"rebalance.threshold",
			fmt.Sprintf("must be in [0, 1], got %.4f", cfg.Rebalance.Threshold)}
	}
	switch cfg.Rebalance.Precedence {
	case "", PrecedenceScheduled, PrecedenceOpportunistic:
	default:
		return ValidationError{"rebalance.precedence",
			fmt.Sprintf("must be scheduled or opportunistic, got %q", cfg.Rebalance.Precedence)}
	}

	// === Strategy ===
	if cfg.Strategy.Name == "" {
		return ValidationError{"strategy.name", "required"}
	}
	if cfg.Strategy.LookbackDays <= 0 {
		return ValidationError{"strategy.lookback_days",
			fmt.Sprintf("must be > 0, got %d", cfg.Strategy.LookbackDays)}
	}
	if err := cfg.Strategy.Constraints.Validate(); err != nil {
		return ValidationError{"strategy.constraints", err.Error()}
	}

	// === Eligibility ===
	if cfg.Eligibility.Enable {
		if err := cfg.Eligibility.Config.Validate(); err != nil {
			return ValidationError{"eligibility", err.Error()}
		}
	}

	// === Preselect ===
	if cfg.Preselect.TopK < 0 {
		return ValidationError{"preselect.top_k", fmt.Sprintf("must be >= 0, got %d", cfg.Preselect.TopK)}
	}
	if cfg.Preselect.TopK > 0 {
		if err := cfg.Preselect.Factors.Validate(); err != nil {
			return ValidationError{"preselect", err.Error()}
		}
	}

	// === Membership ===
	if cfg.Membership.Enable {
		if cfg.Preselect.TopK == 0 {
			return ValidationError{"membership", "requires preselect.top_k > 0 for candidate ranks"}
		}
		if cfg.Membership.Config.TopK != cfg.Preselect.TopK {
			return ValidationError{"membership.top_k",
				fmt.Sprintf("must match preselect.top_k (%d), got %d", cfg.Preselect.TopK, cfg.Membership.Config.TopK)}
		}
		if err := cfg.Membership.Config.Validate(); err != nil {
			return ValidationError{"membership", err.Error()}
		}
	}

	// === Costs ===
	if cfg.Costs.CommissionPct < 0 {
		return ValidationError{"costs.commission_pct", fmt.Sprintf("must be >= 0, got %.6f", cfg.Costs.CommissionPct)}
	}
	if cfg.Costs.MinCommission < 0 {
		return ValidationError{"costs.min_commission", fmt.Sprintf("must be >= 0, got %.2f", cfg.Costs.MinCommission)}
	}
	if cfg.Costs.SlippageBps < 0 {
		return ValidationError{"costs.slippage_bps", fmt.Sprintf("must be >= 0, got %.2f", cfg.Costs.SlippageBps)}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// 짧은 룩백 경고
	if cfg.Strategy.LookbackDays < 21 {
		warnings = append(warnings, Warning{
			Code:    "SHORT_LOOKBACK",
			Message: fmt.Sprintf("lookback_days=%d: 표본이 적어 추정 불안정", cfg.Strategy.LookbackDays),
		})
	}

	// 일별 리밸런스 + 드리프트 트리거 동시 사용 경고
	if cfg.Rebalance.Frequency == FreqDaily && cfg.Rebalance.Threshold > 0 {
		warnings = append(warnings, Warning{
			Code:    "REDUNDANT_TRIGGER",
			Message: "daily frequency makes the drift threshold redundant",
		})
	}

	// 민감한 드리프트 임계값 경고
	if cfg.Rebalance.Threshold > 0 && cfg.Rebalance.Threshold < 0.01 {
		warnings = append(warnings, Warning{
			Code:    "SENSITIVE_THRESHOLD",
			Message: fmt.Sprintf("threshold=%.4f: 거의 매일 기회 리밸런스 발생 가능", cfg.Rebalance.Threshold),
		})
	}

	// 과도한 회전율 허용 경고
	if cfg.Membership.Enable && cfg.Membership.MaxTurnover > 0.5 {
		warnings = append(warnings, Warning{
			Code:    "HIGH_TURNOVER",
			Message: fmt.Sprintf("max_turnover=%.2f: 거래비용 증가 우려", cfg.Membership.MaxTurnover),
		})
	}

	// 수수료 0 경고
	if cfg.Costs.CommissionPct == 0 && cfg.Costs.SlippageBps == 0 {
		warnings = append(warnings, Warning{
			Code:    "FRICTIONLESS",
			Message: "zero commission and slippage: results will overstate live performance",
		})
	}

	return warnings
}
