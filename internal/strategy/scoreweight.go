package strategy

import (
	"fmt"
	"math"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/statscache"
	"github.com/wonny/helios/internal/timeseries"
)

func init() {
	Register("score_proportional", func(stats *statscache.Cache) Strategy {
		return NewScoreProportional()
	})
}

// ScoreProportional weights each symbol proportionally to its
// compounded return over the window, floored at zero. Symbols that
// lost money over the window get no allocation; if every symbol did,
// there is nothing to hold and construction fails.
type ScoreProportional struct{}

// NewScoreProportional creates the strategy
func NewScoreProportional() *ScoreProportional {
	return &ScoreProportional{}
}

func (s *ScoreProportional) Name() string     { return "score_proportional" }
func (s *ScoreProportional) MinLookback() int { return 2 }

func (s *ScoreProportional) Construct(window *timeseries.Matrix, constraints Constraints) (contracts.Weights, error) {
	if window.Cols() == 0 {
		return nil, fmt.Errorf("%w: empty symbol set", ErrInsufficientData)
	}
	if window.Rows() < s.MinLookback() {
		return nil, fmt.Errorf("%w: %d rows in window, need at least %d",
			ErrInsufficientData, window.Rows(), s.MinLookback())
	}

	raw := make(contracts.Weights, window.Cols())
	positive := false
	for j := 0; j < window.Cols(); j++ {
		sym := window.Symbol(j)

		growth := 1.0
		valid := 0
		for i := 0; i < window.Rows(); i++ {
			r := window.Value(i, j)
			if math.IsNaN(r) {
				continue
			}
			growth *= 1.0 + r
			valid++
		}
		if valid < s.MinLookback() {
			return nil, fmt.Errorf("%w: %s has %d valid returns in window, need at least %d",
				ErrInsufficientData, sym, valid, s.MinLookback())
		}

		// losers are dropped entirely rather than floored to the
		// minimum weight
		score := growth - 1.0
		if score <= 0 {
			continue
		}
		raw[sym] = score
		positive = true
	}

	if !positive {
		return nil, fmt.Errorf("%w: no symbol with positive return over the window",
			ErrOptimizationFailure)
	}
	return clampAndNormalize(raw, constraints)
}
