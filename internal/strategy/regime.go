package strategy

import (
	"time"

	"github.com/wonny/helios/internal/contracts"
)

// RegimeProvider supplies a market-regime tilt applied to constructed
// weights. Real implementations (macro signals, volatility targeting)
// are drop-in substitutions for the neutral default.
type RegimeProvider interface {
	Name() string
	// Adjust may rescale or tilt weights for the regime at asOf. The
	// returned weights must still sum to 1.
	Adjust(asOf time.Time, weights contracts.Weights) contracts.Weights
}

// NeutralRegime is the identity provider: no tilt, weights pass
// through untouched.
type NeutralRegime struct{}

func (NeutralRegime) Name() string { return "neutral" }

func (NeutralRegime) Adjust(_ time.Time, weights contracts.Weights) contracts.Weights {
	return weights
}
