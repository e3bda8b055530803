// Package eligibility computes point-in-time tradeability: which assets
// had enough trailing history to be known and investable at a given
// historical date, using only data at or before that date.
package eligibility

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

// Config holds PIT eligibility criteria
type Config struct {
	MinHistoryDays int `yaml:"min_history_days"` // 최소 상장 경과일수 (calendar days)
	MinPriceRows   int `yaml:"min_price_rows"`   // 최소 유효 관측치 수
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.MinHistoryDays < 0 {
		return fmt.Errorf("eligibility: min_history_days must be >= 0, got %d", c.MinHistoryDays)
	}
	if c.MinPriceRows < 0 {
		return fmt.Errorf("eligibility: min_price_rows must be >= 0, got %d", c.MinPriceRows)
	}
	return nil
}

// Result holds the eligible set for one as-of date, with per-symbol
// exclusion reasons for everything that was filtered out.
type Result struct {
	AsOf     time.Time         `json:"as_of"`
	Symbols  []string          `json:"symbols"` // sorted ascending
	Excluded map[string]string `json:"excluded"`
}

// Contains reports whether sym is in the eligible set
func (r *Result) Contains(sym string) bool {
	i := sort.SearchStrings(r.Symbols, sym)
	return i < len(r.Symbols) && r.Symbols[i] == sym
}

// Checker computes the PIT-eligible universe
// ⭐ SSOT: PIT 필터링 로직은 여기서만
type Checker struct {
	config Config
	logger *logger.Logger
}

// NewChecker creates a new eligibility checker
func NewChecker(config Config, log *logger.Logger) (*Checker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Checker{config: config, logger: log}, nil
}

// Eligible computes the eligible set as of asOf, using only observations
// dated at or before asOf. An asset passes when its first non-missing
// observation is at least MinHistoryDays calendar days before asOf and
// it has at least MinPriceRows non-missing observations up to asOf.
//
// An asOf before the start of the dataset is not an error: early-period
// emptiness is expected, so the checker logs a warning and returns an
// empty result.
func (c *Checker) Eligible(returns *timeseries.Matrix, asOf time.Time) (*Result, error) {
	result := &Result{
		AsOf:     asOf,
		Symbols:  make([]string, 0),
		Excluded: make(map[string]string),
	}

	window := returns.Through(asOf)
	if window.Rows() == 0 {
		c.logger.WithFields(map[string]interface{}{
			"as_of": asOf.Format("2006-01-02"),
		}).Warn("As-of date precedes dataset start, eligible set is empty")
		return result, nil
	}

	minAge := time.Duration(c.config.MinHistoryDays) * 24 * time.Hour

	for _, sym := range window.Symbols() {
		first := window.FirstValidRow(sym)
		if first < 0 {
			result.Excluded[sym] = "no observations"
			continue
		}

		age := asOf.Sub(window.Date(first))
		if age < minAge {
			result.Excluded[sym] = fmt.Sprintf("history %dd < min %dd",
				int(age.Hours()/24), c.config.MinHistoryDays)
			continue
		}

		if valid := window.ValidCount(sym); valid < c.config.MinPriceRows {
			result.Excluded[sym] = fmt.Sprintf("rows %d < min %d", valid, c.config.MinPriceRows)
			continue
		}

		result.Symbols = append(result.Symbols, sym)
	}

	sort.Strings(result.Symbols)

	c.logger.WithFields(map[string]interface{}{
		"as_of":    asOf.Format("2006-01-02"),
		"eligible": len(result.Symbols),
		"excluded": len(result.Excluded),
	}).Debug("PIT eligibility computed")

	return result, nil
}
