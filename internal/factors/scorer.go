// Package factors computes momentum, low-volatility, and combined factor
// scores for a universe as of a historical date. Scoring uses only data
// strictly before the as-of date, minus a configurable skip window that
// excludes the most recent observations: the dual exclusion keeps
// momentum free of lookahead and short-horizon reversal noise.
package factors

import (
	"fmt"
	"math"
	"time"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

// Method identifies a scoring method
type Method string

const (
	MethodMomentum Method = "momentum"
	MethodLowVol   Method = "low_volatility"
	MethodCombined Method = "combined"
)

// Config holds factor scoring parameters
type Config struct {
	Method       Method  `yaml:"method"`
	LookbackDays int     `yaml:"lookback_days"` // scoring window length (trading days)
	SkipDays     int     `yaml:"skip_days"`     // most recent days excluded
	MinPeriods   int     `yaml:"min_periods"`   // min valid observations per asset

	// Combined method only; must sum to 1.0
	MomentumWeight float64 `yaml:"momentum_weight"`
	LowVolWeight   float64 `yaml:"low_vol_weight"`
}

// Validate checks the configuration. Called at construction, fail fast.
func (c Config) Validate() error {
	switch c.Method {
	case MethodMomentum, MethodLowVol, MethodCombined:
	default:
		return fmt.Errorf("factors: unknown method %q", c.Method)
	}
	if c.LookbackDays <= 0 {
		return fmt.Errorf("factors: lookback_days must be > 0, got %d", c.LookbackDays)
	}
	if c.SkipDays < 0 {
		return fmt.Errorf("factors: skip_days must be >= 0, got %d", c.SkipDays)
	}
	if c.SkipDays >= c.LookbackDays {
		return fmt.Errorf("factors: skip_days (%d) must be < lookback_days (%d)", c.SkipDays, c.LookbackDays)
	}
	if c.MinPeriods <= 0 {
		return fmt.Errorf("factors: min_periods must be > 0, got %d", c.MinPeriods)
	}
	if c.Method == MethodCombined {
		sum := c.MomentumWeight + c.LowVolWeight
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("factors: momentum_weight + low_vol_weight must sum to 1.0, got %.6f", sum)
		}
	}
	return nil
}

// Scorer computes factor scores
// ⭐ SSOT: 팩터 점수 계산은 여기서만
type Scorer struct {
	config Config
	logger *logger.Logger
}

// NewScorer creates a new factor scorer; the config is validated eagerly
func NewScorer(config Config, log *logger.Logger) (*Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{config: config, logger: log}, nil
}

// Config returns the scorer configuration (used for cache fingerprints)
func (s *Scorer) Config() Config {
	return s.config
}

// Score computes a factor score for every symbol in the matrix as of the
// given date. Assets with fewer than MinPeriods valid observations in the
// scoring window carry an insufficient-data reason instead of a score.
func (s *Scorer) Score(returns *timeseries.Matrix, asOf time.Time) (*contracts.ScoreSet, error) {
	window := s.scoringWindow(returns, asOf)
	set := contracts.NewScoreSet(asOf)

	switch s.config.Method {
	case MethodMomentum:
		s.scoreMomentum(window, set)
	case MethodLowVol:
		s.scoreLowVol(window, set)
	case MethodCombined:
		s.scoreCombined(window, set)
	}

	s.logger.WithFields(map[string]interface{}{
		"method":       string(s.config.Method),
		"as_of":        asOf.Format("2006-01-02"),
		"scored":       len(set.Scores),
		"insufficient": len(set.Insufficient),
	}).Debug("Factor scores computed")

	return set, nil
}

// scoringWindow slices [asOf - lookback - skip, asOf - skip) as a view.
// Rows dated exactly asOf are excluded: scoring sees strictly-past data.
func (s *Scorer) scoringWindow(returns *timeseries.Matrix, asOf time.Time) *timeseries.Matrix {
	idx := returns.LastIndexAtOrBefore(asOf)
	if idx >= 0 && returns.Date(idx).Equal(asOf) {
		idx--
	}

	end := idx + 1 - s.config.SkipDays
	if end < 0 {
		end = 0
	}
	start := end - s.config.LookbackDays
	if start < 0 {
		start = 0
	}
	return returns.Slice(start, end)
}

func (s *Scorer) scoreMomentum(window *timeseries.Matrix, set *contracts.ScoreSet) {
	for _, sym := range window.Symbols() {
		score, n := cumulativeReturn(window, sym)
		if n < s.config.MinPeriods {
			set.Insufficient[sym] = fmt.Sprintf("only %d of %d required observations", n, s.config.MinPeriods)
			continue
		}
		set.Scores[sym] = score
	}
}

func (s *Scorer) scoreLowVol(window *timeseries.Matrix, set *contracts.ScoreSet) {
	for _, sym := range window.Symbols() {
		sd, n := stddev(window, sym)
		if n < s.config.MinPeriods {
			set.Insufficient[sym] = fmt.Sprintf("only %d of %d required observations", n, s.config.MinPeriods)
			continue
		}
		if sd == 0 {
			set.Insufficient[sym] = "zero volatility over window"
			continue
		}
		// Higher score = lower volatility
		set.Scores[sym] = 1.0 / sd
	}
}

// scoreCombined standardizes momentum and low-volatility scores to
// z-scores independently, then combines them linearly. An asset needs
// enough data for both legs to receive a combined score.
func (s *Scorer) scoreCombined(window *timeseries.Matrix, set *contracts.ScoreSet) {
	mom := contracts.NewScoreSet(set.AsOf)
	vol := contracts.NewScoreSet(set.AsOf)
	s.scoreMomentum(window, mom)
	s.scoreLowVol(window, vol)

	common := make([]string, 0, len(mom.Scores))
	for _, sym := range window.Symbols() {
		_, hasMom := mom.Scores[sym]
		_, hasVol := vol.Scores[sym]
		if hasMom && hasVol {
			common = append(common, sym)
			continue
		}
		if reason, ok := mom.Insufficient[sym]; ok {
			set.Insufficient[sym] = reason
		} else {
			set.Insufficient[sym] = vol.Insufficient[sym]
		}
	}

	momZ := zscores(mom.Scores, common)
	volZ := zscores(vol.Scores, common)
	for _, sym := range common {
		set.Scores[sym] = s.config.MomentumWeight*momZ[sym] + s.config.LowVolWeight*volZ[sym]
	}
}

// cumulativeReturn compounds the valid observations of one column
func cumulativeReturn(window *timeseries.Matrix, sym string) (float64, int) {
	col, ok := window.Column(sym)
	if !ok {
		return 0, 0
	}
	cum := 1.0
	n := 0
	for _, r := range col {
		if timeseries.IsMissing(r) {
			continue
		}
		cum *= 1.0 + r
		n++
	}
	return cum - 1.0, n
}

// stddev computes the sample standard deviation of valid observations
func stddev(window *timeseries.Matrix, sym string) (float64, int) {
	col, ok := window.Column(sym)
	if !ok {
		return 0, 0
	}

	sum := 0.0
	n := 0
	for _, r := range col {
		if timeseries.IsMissing(r) {
			continue
		}
		sum += r
		n++
	}
	if n < 2 {
		return 0, n
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, r := range col {
		if timeseries.IsMissing(r) {
			continue
		}
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(n - 1)

	return math.Sqrt(variance), n
}

// zscores standardizes scores across the universe to zero mean and unit
// variance. A degenerate universe (zero cross-sectional stddev) maps
// every z-score to 0 instead of dividing by zero.
func zscores(scores map[string]float64, symbols []string) map[string]float64 {
	out := make(map[string]float64, len(symbols))
	if len(symbols) == 0 {
		return out
	}

	sum := 0.0
	for _, sym := range symbols {
		sum += scores[sym]
	}
	mean := sum / float64(len(symbols))

	variance := 0.0
	for _, sym := range symbols {
		diff := scores[sym] - mean
		variance += diff * diff
	}
	variance /= float64(len(symbols))
	sd := math.Sqrt(variance)

	for _, sym := range symbols {
		if sd == 0 {
			out[sym] = 0
			continue
		}
		out[sym] = (scores[sym] - mean) / sd
	}
	return out
}
