package backtestconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/helios/internal/factors"
	"github.com/wonny/helios/internal/membership"
	"github.com/wonny/helios/internal/strategy"
)

func validConfig() *Config {
	return &Config{
		Meta: Meta{RunID: "momentum_monthly"},
		Simulation: Simulation{
			StartDate:      "2020-01-01",
			EndDate:        "2023-12-31",
			InitialCapital: 1_000_000,
			CashReservePct: 0.02,
		},
		Rebalance: Rebalance{
			Frequency:  FreqMonthly,
			Threshold:  0.05,
			Precedence: PrecedenceScheduled,
		},
		Strategy: StrategySection{
			Name:         "equal_weight",
			LookbackDays: 63,
			Constraints:  strategy.Constraints{MinWeight: 0.01, MaxWeight: 0.2},
		},
		Preselect: PreselectSection{
			TopK: 30,
			Factors: factors.Config{
				Method:       factors.MethodMomentum,
				LookbackDays: 252,
				SkipDays:     21,
				MinPeriods:   200,
			},
		},
		Membership: MembershipSection{
			Enable: true,
			Config: membership.Config{
				TopK:       30,
				BufferRank: 40,
			},
		},
		Costs: Costs{CommissionPct: 0.0005, MinCommission: 1.0, SlippageBps: 5},
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"start after end", func(c *Config) { c.Simulation.StartDate = "2024-01-01" }, "simulation"},
		{"bad date format", func(c *Config) { c.Simulation.EndDate = "31-12-2023" }, "simulation.end_date"},
		{"zero capital", func(c *Config) { c.Simulation.InitialCapital = 0 }, "simulation.initial_capital"},
		{"reserve above one", func(c *Config) { c.Simulation.CashReservePct = 1.5 }, "simulation.cash_reserve_pct"},
		{"unknown frequency", func(c *Config) { c.Rebalance.Frequency = "fortnightly" }, "rebalance.frequency"},
		{"threshold above one", func(c *Config) { c.Rebalance.Threshold = 1.2 }, "rebalance.threshold"},
		{"bad precedence", func(c *Config) { c.Rebalance.Precedence = "whichever" }, "rebalance.precedence"},
		{"missing strategy", func(c *Config) { c.Strategy.Name = "" }, "strategy.name"},
		{"zero lookback", func(c *Config) { c.Strategy.LookbackDays = 0 }, "strategy.lookback_days"},
		{"inverted weights", func(c *Config) { c.Strategy.Constraints = strategy.Constraints{MinWeight: 0.5, MaxWeight: 0.2} }, "strategy.constraints"},
		{"skip >= lookback", func(c *Config) { c.Preselect.Factors.SkipDays = 252 }, "preselect"},
		{"buffer not wider", func(c *Config) { c.Membership.Config.BufferRank = 30 }, "membership"},
		{"membership without preselect", func(c *Config) { c.Preselect.TopK = 0 }, "membership"},
		{"membership top_k mismatch", func(c *Config) { c.Membership.Config.TopK = 25 }, "membership.top_k"},
		{"negative commission", func(c *Config) { c.Costs.CommissionPct = -0.01 }, "costs.commission_pct"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Field, tt.field)
		})
	}
}

func TestWarn(t *testing.T) {
	cfg := validConfig()
	assert.Empty(t, Warn(cfg))

	cfg.Strategy.LookbackDays = 10
	cfg.Rebalance.Frequency = FreqDaily
	cfg.Costs = Costs{}

	codes := map[string]bool{}
	for _, w := range Warn(cfg) {
		codes[w.Code] = true
	}
	assert.True(t, codes["SHORT_LOOKBACK"])
	assert.True(t, codes["REDUNDANT_TRIGGER"])
	assert.True(t, codes["FRICTIONLESS"])
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := `
meta:
  run_id: test
simulation:
  start_date: "2020-01-01"
  end_date: "2020-12-31"
  initial_capital: 100000
  typo_field: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, _, err := Load(path)
	require.Error(t, err, "unknown fields must fail loudly")
}

func TestLoad_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := `
meta:
  run_id: smoke
simulation:
  start_date: "2020-01-01"
  end_date: "2020-12-31"
  initial_capital: 100000
rebalance:
  frequency: monthly
strategy:
  name: equal_weight
  lookback_days: 63
preselect:
  top_k: 10
  method: momentum
  lookback_days: 126
  skip_days: 5
  min_periods: 100
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, raw, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", cfg.Meta.RunID)
	assert.Equal(t, 10, cfg.Preselect.TopK)
	assert.Equal(t, factors.MethodMomentum, cfg.Preselect.Factors.Method)
	assert.NotEmpty(t, raw)
}

func TestHash_Deterministic(t *testing.T) {
	cfg := validConfig()
	a, err := Hash(cfg)
	require.NoError(t, err)
	b, err := Hash(cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	cfg.Preselect.TopK = 31
	c, err := Hash(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
