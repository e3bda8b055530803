// Package preselect narrows the configured universe to the top-ranked
// candidates ahead of portfolio construction. The pipeline is
// eligibility filter, factor scoring, deterministic ranking, top-K cut.
package preselect

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/eligibility"
	"github.com/wonny/helios/internal/factorcache"
	"github.com/wonny/helios/internal/factors"
	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

// Result is the outcome of one preselection pass. Candidates is the
// admission set, sorted by rank and cut at topK. Ranked carries the
// full scored universe in rank order: membership hysteresis needs the
// true rank of holdings that fell outside the cut. Dropped maps every
// symbol that fell out of the candidate set to the reason reported by
// the stage that removed it.
type Result struct {
	AsOf       time.Time
	Candidates []contracts.RankedSymbol
	Ranked     []contracts.RankedSymbol
	Dropped    map[string]string
}

// Symbols returns the candidate symbols in rank order
func (r *Result) Symbols() []string {
	out := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		out[i] = c.Symbol
	}
	return out
}

// Selector runs the preselection pipeline. The eligibility checker and
// the score cache are both optional: without a checker every listed
// symbol is a scoring candidate, without a cache every pass recomputes.
type Selector struct {
	scorer     *factors.Scorer
	checker    *eligibility.Checker
	cache      *factorcache.Cache
	configHash string
	topK       int
	logger     *logger.Logger
}

// Option configures optional selector collaborators
type Option func(*Selector)

// WithEligibility installs a point-in-time eligibility filter ahead of scoring
func WithEligibility(checker *eligibility.Checker) Option {
	return func(s *Selector) { s.checker = checker }
}

// WithCache installs an on-disk score cache consulted before scoring
func WithCache(cache *factorcache.Cache) Option {
	return func(s *Selector) { s.cache = cache }
}

// NewSelector creates a selector keeping the topK highest-scoring
// symbols per pass. topK of zero disables scoring entirely: the full
// eligible universe passes through in alphabetical order.
func NewSelector(scorer *factors.Scorer, topK int, log *logger.Logger, opts ...Option) (*Selector, error) {
	if topK < 0 {
		return nil, fmt.Errorf("preselect: top-k must be non-negative, got %d", topK)
	}
	if topK > 0 && scorer == nil {
		return nil, fmt.Errorf("preselect: top-k %d requires a scorer", topK)
	}

	s := &Selector{
		scorer: scorer,
		topK:   topK,
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache != nil && scorer != nil {
		s.configHash = factorcache.HashConfig(scorer.Config())
	}
	return s, nil
}

// Select runs the pipeline against returns as of asOf. An empty
// candidate set is a valid outcome, not an error.
func (s *Selector) Select(returns *timeseries.Matrix, asOf time.Time) (*Result, error) {
	res := &Result{
		AsOf:    asOf,
		Dropped: make(map[string]string),
	}

	universe := returns.Symbols()
	if s.checker != nil {
		elig, err := s.checker.Eligible(returns, asOf)
		if err != nil {
			return nil, fmt.Errorf("preselect: eligibility: %w", err)
		}
		for sym, reason := range elig.Excluded {
			res.Dropped[sym] = reason
		}
		universe = elig.Symbols
	}

	if len(universe) == 0 {
		s.logger.WithField("as_of", asOf.Format("2006-01-02")).Warn("Preselection produced empty universe")
		return res, nil
	}

	// Disabled preselection: pass the eligible universe through unranked
	if s.topK == 0 {
		sorted := make([]string, len(universe))
		copy(sorted, universe)
		sort.Strings(sorted)
		res.Candidates = make([]contracts.RankedSymbol, len(sorted))
		for i, sym := range sorted {
			res.Candidates[i] = contracts.RankedSymbol{Symbol: sym, Rank: i + 1}
		}
		res.Ranked = res.Candidates
		return res, nil
	}

	eligible, err := returns.Select(universe)
	if err != nil {
		return nil, fmt.Errorf("preselect: restrict universe: %w", err)
	}

	set, err := s.score(eligible, asOf)
	if err != nil {
		return nil, err
	}

	for sym, reason := range set.Insufficient {
		res.Dropped[sym] = reason
	}

	res.Ranked = rank(set)
	cut := s.topK
	if cut > len(res.Ranked) {
		cut = len(res.Ranked)
	}
	for _, rs := range res.Ranked[cut:] {
		res.Dropped[rs.Symbol] = fmt.Sprintf("ranked below top %d", s.topK)
	}
	res.Candidates = res.Ranked[:cut]

	s.logger.WithFields(map[string]interface{}{
		"as_of":      asOf.Format("2006-01-02"),
		"eligible":   len(universe),
		"candidates": len(res.Candidates),
	}).Debug("Preselection completed")

	return res, nil
}

func (s *Selector) score(eligible *timeseries.Matrix, asOf time.Time) (*contracts.ScoreSet, error) {
	var key string
	if s.cache != nil {
		key = factorcache.Fingerprint(eligible, s.configHash, asOf)
		var payload factorcache.ScorePayload
		if s.cache.Get(key, &payload) {
			return payload.ScoreSet(), nil
		}
	}

	set, err := s.scorer.Score(eligible, asOf)
	if err != nil {
		return nil, fmt.Errorf("preselect: scoring: %w", err)
	}

	if s.cache != nil {
		s.cache.Put(key, factorcache.NewScorePayload(set))
	}
	return set, nil
}

// rank orders the full scored universe by score descending with a
// symbol-ascending tie-break and assigns ranks 1..n. The tie-break is
// exact at any cutoff boundary: equal scores straddling a cut are
// resolved by symbol order alone.
func rank(set *contracts.ScoreSet) []contracts.RankedSymbol {
	scored := make([]contracts.RankedSymbol, 0, len(set.Scores))
	for sym, score := range set.Scores {
		scored = append(scored, contracts.RankedSymbol{Symbol: sym, Score: score})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Symbol < scored[j].Symbol
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}
