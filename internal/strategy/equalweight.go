package strategy

import (
	"fmt"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/statscache"
	"github.com/wonny/helios/internal/timeseries"
)

func init() {
	Register("equal_weight", func(*statscache.Cache) Strategy { return &EqualWeight{} })
}

// EqualWeight assigns 1/n to every symbol in the window
type EqualWeight struct{}

func (s *EqualWeight) Name() string     { return "equal_weight" }
func (s *EqualWeight) MinLookback() int { return 1 }

func (s *EqualWeight) Construct(window *timeseries.Matrix, constraints Constraints) (contracts.Weights, error) {
	n := window.Cols()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty symbol set", ErrInsufficientData)
	}
	if err := constraints.Feasible(n); err != nil {
		return nil, err
	}

	raw := make(contracts.Weights, n)
	for _, sym := range window.Symbols() {
		raw[sym] = 1.0
	}
	return clampAndNormalize(raw, constraints)
}
