package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/pkg/logger"
)

func newPolicy(t *testing.T, config Config) *Policy {
	t.Helper()
	p, err := NewPolicy(config, logger.Nop())
	require.NoError(t, err)
	return p
}

func ranked(pairs ...interface{}) []contracts.RankedSymbol {
	out := make([]contracts.RankedSymbol, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, contracts.RankedSymbol{
			Symbol: pairs[i].(string),
			Rank:   pairs[i+1].(int),
		})
	}
	return out
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"valid", Config{TopK: 30, BufferRank: 40}, ""},
		{"zero top_k", Config{TopK: 0, BufferRank: 40}, "top_k"},
		{"buffer equals top_k", Config{TopK: 30, BufferRank: 30}, "buffer_rank"},
		{"buffer below top_k", Config{TopK: 30, BufferRank: 20}, "buffer_rank"},
		{"negative turnover", Config{TopK: 30, BufferRank: 40, MaxTurnover: -0.1}, "max_turnover"},
		{"negative new cap", Config{TopK: 30, BufferRank: 40, MaxNewAssets: -1}, "max_new_assets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestApply_BufferRetainsInsideBand(t *testing.T) {
	// buffer 40 / top 30: a holding ranked 35 stays, a non-holding
	// ranked 32 is not admitted
	p := newPolicy(t, Config{TopK: 30, BufferRank: 40})

	d, err := p.Apply(Request{
		Current:    []string{"HELD"},
		Candidates: ranked("HELD", 35, "FRESH", 32),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"HELD"}, d.Next)
	assert.Contains(t, d.Retained["HELD"], "buffer")
	assert.Empty(t, d.Admitted)
}

func TestApply_RemovesBeyondBuffer(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 4})

	d, err := p.Apply(Request{
		Current:    []string{"STALE", "OK"},
		Candidates: ranked("NEW", 1, "OK", 3, "STALE", 7),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"NEW", "OK"}, d.Next)
	assert.Equal(t, []string{"STALE"}, d.Removed)
	assert.Equal(t, []string{"NEW"}, d.Admitted)
}

func TestApply_UnrankedHoldingIsRemovalCandidate(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 4})

	d, err := p.Apply(Request{
		Current:    []string{"GONE"},
		Candidates: ranked("NEW", 1),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"NEW"}, d.Next)
	assert.Equal(t, []string{"GONE"}, d.Removed)
}

func TestApply_MinHoldingProtectionTrumpsRank(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 3, MinHoldingPeriods: 4})

	d, err := p.Apply(Request{
		Current:        []string{"BABY"},
		HoldingPeriods: map[string]int{"BABY": 1},
		// BABY is absent from candidates entirely; protection still holds
		Candidates: ranked("NEW", 1),
	})
	require.NoError(t, err)

	assert.True(t, d.Contains("BABY"), "holding under the minimum period must never be removed")
	assert.Contains(t, d.Retained["BABY"], "minimum periods")
}

func TestApply_MinHoldingRequiresPeriodsMap(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 3, MinHoldingPeriods: 4})

	_, err := p.Apply(Request{Current: []string{"AAA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holding-periods map")
}

func TestApply_AdmissionCapBestRankedFirst(t *testing.T) {
	p := newPolicy(t, Config{TopK: 5, BufferRank: 8, MaxNewAssets: 2})

	d, err := p.Apply(Request{
		Candidates: ranked("C3", 3, "C1", 1, "C5", 5, "C2", 2),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"C1", "C2"}, d.Admitted)
	assert.Contains(t, d.Deferred, "C3")
	assert.Contains(t, d.Deferred, "C5")
}

func TestApply_AdmissionRequiresTopK(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 5})

	d, err := p.Apply(Request{
		Candidates: ranked("IN", 2, "OUT", 3),
	})
	require.NoError(t, err)

	// Rank 3 sits inside the buffer but outside the selection cutoff:
	// good enough to keep, not good enough to enter
	assert.Equal(t, []string{"IN"}, d.Next)
}

func TestApply_RemovalCapWorstRankedFirst(t *testing.T) {
	p := newPolicy(t, Config{TopK: 1, BufferRank: 2, MaxRemovedAssets: 1})

	d, err := p.Apply(Request{
		Current:    []string{"BAD", "WORSE"},
		Candidates: ranked("BAD", 5, "WORSE", 9),
	})
	require.NoError(t, err)

	// Only one exit allowed; the worst-ranked holding goes first
	assert.Equal(t, []string{"WORSE"}, d.Removed)
	assert.True(t, d.Contains("BAD"))
	assert.Contains(t, d.Retained["BAD"], "capped")
}

func TestApply_TurnoverCapRequiresWeightMaps(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 3, MaxTurnover: 0.2})

	_, err := p.Apply(Request{Current: []string{"AAA"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight maps")
}

func TestApply_TurnoverCapBound(t *testing.T) {
	p := newPolicy(t, Config{TopK: 3, BufferRank: 4, MaxTurnover: 0.30})

	req := Request{
		Current:        []string{"OLD1", "OLD2"},
		Candidates:     ranked("NEW1", 1, "NEW2", 2, "NEW3", 3, "OLD1", 9, "OLD2", 10),
		CurrentWeights: contracts.Weights{"OLD1": 0.5, "OLD2": 0.5},
		TargetWeights:  contracts.Weights{"NEW1": 0.4, "NEW2": 0.3, "NEW3": 0.3},
	}

	d, err := p.Apply(req)
	require.NoError(t, err)

	implied := 0.0
	for _, sym := range d.Admitted {
		implied += req.TargetWeights[sym]
	}
	for _, sym := range d.Removed {
		implied += req.CurrentWeights[sym]
	}
	assert.LessOrEqual(t, implied, 0.30, "post-policy turnover must respect the cap")

	// Unconstrained this trade is 0.4+0.3+0.3+0.5+0.5 = 2.0 turnover,
	// so the cap must have blocked every membership change
	assert.Empty(t, d.Admitted)
	assert.Empty(t, d.Removed)
	assert.Equal(t, []string{"OLD1", "OLD2"}, d.Next)
}

func TestApply_TurnoverCapUndoesAdmissionsBeforeRemovals(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 3, MaxTurnover: 0.25})

	d, err := p.Apply(Request{
		Current:        []string{"OLD"},
		Candidates:     ranked("NEW1", 1, "NEW2", 2, "OLD", 9),
		CurrentWeights: contracts.Weights{"OLD": 0.2},
		TargetWeights:  contracts.Weights{"NEW1": 0.05, "NEW2": 0.4},
	}, // full change implies 0.05+0.4+0.2 = 0.65
	)
	require.NoError(t, err)

	// Dropping NEW2 (worst-ranked entrant) leaves 0.05+0.2 = 0.25
	assert.Equal(t, []string{"NEW1"}, d.Admitted)
	assert.Equal(t, []string{"OLD"}, d.Removed)
	assert.Contains(t, d.Deferred, "NEW2")
}

func TestApply_Deterministic(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 4, MaxNewAssets: 1, MaxRemovedAssets: 1})

	req := Request{
		Current:        []string{"H2", "H1", "H3"},
		HoldingPeriods: map[string]int{"H1": 5, "H2": 5, "H3": 5},
		Candidates:     ranked("N1", 1, "N2", 2, "H1", 6, "H2", 7, "H3", 8),
	}

	first, err := p.Apply(req)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := p.Apply(req)
		require.NoError(t, err)
		assert.Equal(t, first.Next, again.Next)
		assert.Equal(t, first.Admitted, again.Admitted)
		assert.Equal(t, first.Removed, again.Removed)
	}
}

func TestApply_EmptyCurrentAdmitsTopK(t *testing.T) {
	p := newPolicy(t, Config{TopK: 2, BufferRank: 3})

	d, err := p.Apply(Request{
		Candidates: ranked("A", 1, "B", 2, "C", 3),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, d.Next)
}
