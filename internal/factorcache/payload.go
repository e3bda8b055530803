package factorcache

import (
	"time"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/eligibility"
)

// ScorePayload is the msgpack-serialized form of a factor score set
type ScorePayload struct {
	AsOf         time.Time          `msgpack:"as_of"`
	Scores       map[string]float64 `msgpack:"scores"`
	Insufficient map[string]string  `msgpack:"insufficient"`
}

// NewScorePayload converts a score set into its cacheable form
func NewScorePayload(set *contracts.ScoreSet) *ScorePayload {
	return &ScorePayload{
		AsOf:         set.AsOf,
		Scores:       set.Scores,
		Insufficient: set.Insufficient,
	}
}

// ScoreSet converts the payload back to the in-process representation
func (p *ScorePayload) ScoreSet() *contracts.ScoreSet {
	return &contracts.ScoreSet{
		AsOf:         p.AsOf,
		Scores:       p.Scores,
		Insufficient: p.Insufficient,
	}
}

// EligibilityPayload is the msgpack-serialized form of an eligibility result
type EligibilityPayload struct {
	AsOf     time.Time         `msgpack:"as_of"`
	Symbols  []string          `msgpack:"symbols"`
	Excluded map[string]string `msgpack:"excluded"`
}

// NewEligibilityPayload converts an eligibility result into its cacheable form
func NewEligibilityPayload(res *eligibility.Result) *EligibilityPayload {
	return &EligibilityPayload{
		AsOf:     res.AsOf,
		Symbols:  res.Symbols,
		Excluded: res.Excluded,
	}
}

// Result converts the payload back to the in-process representation
func (p *EligibilityPayload) Result() *eligibility.Result {
	return &eligibility.Result{
		AsOf:     p.AsOf,
		Symbols:  p.Symbols,
		Excluded: p.Excluded,
	}
}
