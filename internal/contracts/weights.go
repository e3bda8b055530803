package contracts

import "math"

// Weights maps asset symbols to portfolio weight fractions.
// ⭐ 계약: 전략은 비중만 산출, 수량 계산은 엔진이 수행
type Weights map[string]float64

// Total returns the sum of all weights
func (w Weights) Total() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Turnover returns the sum of absolute weight deltas against another
// weight map. Symbols absent from either side count with weight 0.
func (w Weights) Turnover(other Weights) float64 {
	turnover := 0.0
	for sym, v := range w {
		turnover += math.Abs(v - other[sym])
	}
	for sym, v := range other {
		if _, seen := w[sym]; !seen {
			turnover += math.Abs(v)
		}
	}
	return turnover
}

// Scale returns a copy with every weight multiplied by factor
func (w Weights) Scale(factor float64) Weights {
	scaled := make(Weights, len(w))
	for sym, v := range w {
		scaled[sym] = v * factor
	}
	return scaled
}

// Clone returns a shallow copy
func (w Weights) Clone() Weights {
	out := make(Weights, len(w))
	for sym, v := range w {
		out[sym] = v
	}
	return out
}
