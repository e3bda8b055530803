package strategy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/statscache"
	"github.com/wonny/helios/internal/timeseries"
)

func init() {
	Register("min_variance", func(stats *statscache.Cache) Strategy {
		return NewMinVariance(stats)
	})
}

// MinVariance solves the unconstrained global minimum-variance
// portfolio (w = Σ⁻¹1 / 1ᵀΣ⁻¹1) and projects the solution onto the
// long-only constraint box. A covariance that is not positive definite
// is an optimization failure: the engine attaches the rebalance date.
type MinVariance struct {
	stats *statscache.Cache
}

// NewMinVariance creates the strategy backed by the given statistics cache
func NewMinVariance(stats *statscache.Cache) *MinVariance {
	return &MinVariance{stats: stats}
}

func (s *MinVariance) Name() string     { return "min_variance" }
func (s *MinVariance) MinLookback() int { return 2 }

func (s *MinVariance) Construct(window *timeseries.Matrix, constraints Constraints) (contracts.Weights, error) {
	n := window.Cols()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty symbol set", ErrInsufficientData)
	}
	if window.Rows() < n+1 {
		// Fewer observations than assets guarantees a singular sample
		// covariance
		return nil, fmt.Errorf("%w: %d rows for %d symbols, need at least %d",
			ErrInsufficientData, window.Rows(), n, n+1)
	}

	st, err := s.stats.Get(window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInsufficientData, err)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(st.Covariance); !ok {
		return nil, fmt.Errorf("%w: covariance matrix is not positive definite for %d symbols",
			ErrOptimizationFailure, n)
	}

	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1.0)
	}

	solved := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(solved, ones); err != nil {
		return nil, fmt.Errorf("%w: solve failed: %v", ErrOptimizationFailure, err)
	}

	raw := make(contracts.Weights, n)
	for j, sym := range st.Symbols {
		w := solved.AtVec(j)
		if w < 0 {
			// Long-only: negative unconstrained weights floor at zero
			// before projection
			w = 0
		}
		raw[sym] = w
	}
	if raw.Total() <= 0 {
		return nil, fmt.Errorf("%w: minimum-variance solution is fully short", ErrOptimizationFailure)
	}
	return clampAndNormalize(raw, constraints)
}
