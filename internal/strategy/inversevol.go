package strategy

import (
	"fmt"
	"math"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/statscache"
	"github.com/wonny/helios/internal/timeseries"
)

func init() {
	Register("inverse_volatility", func(stats *statscache.Cache) Strategy {
		return NewInverseVolatility(stats)
	})
}

// InverseVolatility weights each symbol proportionally to the inverse
// of its sample volatility over the window. Statistics come from the
// run's statistics cache so repeated windows are computed once.
type InverseVolatility struct {
	stats *statscache.Cache
}

// NewInverseVolatility creates the strategy backed by the given
// statistics cache
func NewInverseVolatility(stats *statscache.Cache) *InverseVolatility {
	return &InverseVolatility{stats: stats}
}

func (s *InverseVolatility) Name() string     { return "inverse_volatility" }
func (s *InverseVolatility) MinLookback() int { return 2 }

func (s *InverseVolatility) Construct(window *timeseries.Matrix, constraints Constraints) (contracts.Weights, error) {
	if window.Cols() == 0 {
		return nil, fmt.Errorf("%w: empty symbol set", ErrInsufficientData)
	}
	if window.Rows() < s.MinLookback() {
		return nil, fmt.Errorf("%w: %d rows in window, need at least %d",
			ErrInsufficientData, window.Rows(), s.MinLookback())
	}

	st, err := s.stats.Get(window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}

	raw := make(contracts.Weights, len(st.Symbols))
	for j, sym := range st.Symbols {
		variance := st.Covariance.At(j, j)
		if variance <= 0 || math.IsNaN(variance) {
			return nil, fmt.Errorf("%w: %s has non-positive variance %.6g over the window",
				ErrOptimizationFailure, sym, variance)
		}
		raw[sym] = 1.0 / math.Sqrt(variance)
	}
	return clampAndNormalize(raw, constraints)
}
