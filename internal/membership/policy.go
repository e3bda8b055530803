// Package membership decides which holdings survive a rebalance. The
// policy is a deterministic staged pipeline: minimum-holding protection,
// buffer-rank hysteresis, capped admission of new entries, capped
// removal, and an optional turnover cap applied last.
package membership

import (
	"fmt"
	"math"
	"sort"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/pkg/logger"
)

// Config holds membership policy parameters
type Config struct {
	TopK       int `yaml:"top_k"`       // selection cutoff rank
	BufferRank int `yaml:"buffer_rank"` // retention cutoff, must be > top_k

	MinHoldingPeriods int `yaml:"min_holding_periods"` // 0 disables holding protection
	MaxNewAssets      int `yaml:"max_new_assets"`      // 0 = admit all qualifying
	MaxRemovedAssets  int `yaml:"max_removed_assets"`  // 0 = remove all marked

	MaxTurnover float64 `yaml:"max_turnover"` // 0 disables the turnover cap
}

// Validate checks the configuration. A buffer that is not strictly
// wider than the selection cutoff provides no hysteresis and is
// rejected here rather than silently tolerated.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("membership: top_k must be > 0, got %d", c.TopK)
	}
	if c.BufferRank <= c.TopK {
		return fmt.Errorf("membership: buffer_rank (%d) must be > top_k (%d)", c.BufferRank, c.TopK)
	}
	if c.MinHoldingPeriods < 0 {
		return fmt.Errorf("membership: min_holding_periods must be >= 0, got %d", c.MinHoldingPeriods)
	}
	if c.MaxNewAssets < 0 {
		return fmt.Errorf("membership: max_new_assets must be >= 0, got %d", c.MaxNewAssets)
	}
	if c.MaxRemovedAssets < 0 {
		return fmt.Errorf("membership: max_removed_assets must be >= 0, got %d", c.MaxRemovedAssets)
	}
	if c.MaxTurnover < 0 {
		return fmt.Errorf("membership: max_turnover must be >= 0, got %f", c.MaxTurnover)
	}
	return nil
}

// Request carries the state the policy decides over. Candidates must
// be the full ranked universe, not just the symbols inside the
// selection cutoff: buffer retention reads ranks in (TopK, BufferRank]
// and a holding missing from the list counts as unranked.
// HoldingPeriods is required when holding protection is enabled; the
// weight maps are required when the turnover cap is enabled.
type Request struct {
	Current        []string
	HoldingPeriods map[string]int
	Candidates     []contracts.RankedSymbol
	CurrentWeights contracts.Weights
	TargetWeights  contracts.Weights
}

// Decision is the policy outcome. Next is sorted. The reason maps
// record why each symbol was kept, skipped, or spared.
type Decision struct {
	Next []string

	Admitted []string
	Removed  []string
	// Retained maps protected holdings to the stage that kept them
	Retained map[string]string
	// Deferred maps symbols whose admission or removal a cap blocked
	Deferred map[string]string
}

// Contains reports whether sym is in the next holding set
func (d *Decision) Contains(sym string) bool {
	i := sort.SearchStrings(d.Next, sym)
	return i < len(d.Next) && d.Next[i] == sym
}

// Policy applies membership rules between consecutive holding sets
// ⭐ SSOT: 보유 종목 교체 결정은 여기서만
type Policy struct {
	config Config
	logger *logger.Logger
}

// NewPolicy creates a membership policy; the config is validated eagerly
func NewPolicy(config Config, log *logger.Logger) (*Policy, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Policy{config: config, logger: log}, nil
}

// unranked sorts after every real rank
const unranked = math.MaxInt32

// Apply runs the staged pipeline and returns the next holding set.
// The result is deterministic: every stage orders by rank with a
// symbol-ascending tie-break.
func (p *Policy) Apply(req Request) (*Decision, error) {
	if p.config.MinHoldingPeriods > 0 && req.HoldingPeriods == nil {
		return nil, fmt.Errorf("membership: min_holding_periods %d requires a holding-periods map",
			p.config.MinHoldingPeriods)
	}
	if p.config.MaxTurnover > 0 && (req.CurrentWeights == nil || req.TargetWeights == nil) {
		return nil, fmt.Errorf("membership: max_turnover %.4f requires current and target weight maps",
			p.config.MaxTurnover)
	}

	rankOf := make(map[string]int, len(req.Candidates))
	for _, c := range req.Candidates {
		rankOf[c.Symbol] = c.Rank
	}
	held := make(map[string]bool, len(req.Current))
	for _, sym := range req.Current {
		held[sym] = true
	}

	d := &Decision{
		Retained: make(map[string]string),
		Deferred: make(map[string]string),
	}

	// Stage 1+2: partition current holdings into retained and marked
	// for removal. Holding protection trumps rank entirely; the buffer
	// then retains anything still ranked inside the hysteresis band.
	var marked []string
	for _, sym := range req.Current {
		if p.config.MinHoldingPeriods > 0 && req.HoldingPeriods[sym] < p.config.MinHoldingPeriods {
			d.Retained[sym] = fmt.Sprintf("held %d of %d minimum periods",
				req.HoldingPeriods[sym], p.config.MinHoldingPeriods)
			continue
		}
		rank, ok := rankOf[sym]
		if ok && rank <= p.config.BufferRank {
			d.Retained[sym] = fmt.Sprintf("rank %d within buffer %d", rank, p.config.BufferRank)
			continue
		}
		marked = append(marked, sym)
	}

	// Stage 3: admit new entries ranked inside the selection cutoff,
	// best-ranked first, up to the admission cap
	var entrants []string
	for _, c := range req.Candidates {
		if !held[c.Symbol] && c.Rank <= p.config.TopK {
			entrants = append(entrants, c.Symbol)
		}
	}
	sortByRank(entrants, rankOf, false)
	admitted := entrants
	if p.config.MaxNewAssets > 0 && len(admitted) > p.config.MaxNewAssets {
		for _, sym := range admitted[p.config.MaxNewAssets:] {
			d.Deferred[sym] = fmt.Sprintf("admission capped at %d new entries", p.config.MaxNewAssets)
		}
		admitted = admitted[:p.config.MaxNewAssets]
	}

	// Stage 4: enforce removals worst-ranked first, up to the removal
	// cap; holdings spared by the cap stay in the portfolio
	sortByRank(marked, rankOf, true)
	removed := marked
	if p.config.MaxRemovedAssets > 0 && len(removed) > p.config.MaxRemovedAssets {
		for _, sym := range removed[p.config.MaxRemovedAssets:] {
			d.Retained[sym] = fmt.Sprintf("removal capped at %d exits", p.config.MaxRemovedAssets)
		}
		removed = removed[:p.config.MaxRemovedAssets]
	}

	// Stage 5: turnover cap. Implied turnover counts only
	// membership-driven weight movement: entrants at their target
	// weight, exits at their current weight. Admissions are undone
	// worst-ranked first, then removals reinstated best-ranked first,
	// until the cap holds. With no changes left the turnover is zero,
	// so the loop always terminates under the cap.
	if p.config.MaxTurnover > 0 {
		for p.impliedTurnover(admitted, removed, req) > p.config.MaxTurnover {
			if len(admitted) > 0 {
				sym := admitted[len(admitted)-1]
				admitted = admitted[:len(admitted)-1]
				d.Deferred[sym] = fmt.Sprintf("turnover cap %.4f", p.config.MaxTurnover)
				continue
			}
			if len(removed) > 0 {
				sym := removed[len(removed)-1]
				removed = removed[:len(removed)-1]
				d.Retained[sym] = fmt.Sprintf("removal spared by turnover cap %.4f", p.config.MaxTurnover)
				continue
			}
			break
		}
	}

	removedSet := make(map[string]bool, len(removed))
	for _, sym := range removed {
		removedSet[sym] = true
	}

	next := make([]string, 0, len(req.Current)+len(admitted))
	for _, sym := range req.Current {
		if !removedSet[sym] {
			next = append(next, sym)
		}
	}
	next = append(next, admitted...)
	sort.Strings(next)

	d.Next = next
	d.Admitted = admitted
	d.Removed = removed

	p.logger.WithFields(map[string]interface{}{
		"current":  len(req.Current),
		"next":     len(next),
		"admitted": len(admitted),
		"removed":  len(removed),
	}).Debug("Membership decision applied")

	return d, nil
}

// impliedTurnover sums target weights of entrants and current weights
// of exits. Within-set reweighting is the strategy's concern, not the
// membership policy's.
func (p *Policy) impliedTurnover(admitted, removed []string, req Request) float64 {
	total := 0.0
	for _, sym := range admitted {
		total += math.Abs(req.TargetWeights[sym])
	}
	for _, sym := range removed {
		total += math.Abs(req.CurrentWeights[sym])
	}
	return total
}

// sortByRank orders symbols by rank (unranked last), symbol ascending
// on ties. worstFirst reverses the rank order for removal processing.
func sortByRank(symbols []string, rankOf map[string]int, worstFirst bool) {
	rank := func(sym string) int {
		if r, ok := rankOf[sym]; ok {
			return r
		}
		return unranked
	}
	sort.Slice(symbols, func(i, j int) bool {
		ri, rj := rank(symbols[i]), rank(symbols[j])
		if ri != rj {
			if worstFirst {
				return ri > rj
			}
			return ri < rj
		}
		return symbols[i] < symbols[j]
	})
}
