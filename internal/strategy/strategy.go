// Package strategy defines the weighting strategy capability and the
// built-in portfolio construction schemes. A strategy turns a lookback
// return window into target weights; the engine treats it as a black
// box and distinguishes failures only by error kind.
package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/wonny/helios/internal/contracts"
	"github.com/wonny/helios/internal/statscache"
	"github.com/wonny/helios/internal/timeseries"
)

// Distinct failure kinds a strategy signals. The engine tags them with
// the rebalance date and propagates; retry or skip is a caller policy.
var (
	ErrInsufficientData    = errors.New("insufficient data for weight construction")
	ErrConstraintViolation = errors.New("weight constraints cannot be satisfied")
	ErrOptimizationFailure = errors.New("optimization failed")
)

// Constraints bound each individual weight. Zero value means
// unconstrained long-only weights in [0, 1].
type Constraints struct {
	MinWeight float64 `yaml:"min_weight"`
	MaxWeight float64 `yaml:"max_weight"`
}

// Validate checks internal consistency; feasibility against a concrete
// asset count is checked per rebalance via Feasible.
func (c Constraints) Validate() error {
	min, max := c.bounds()
	if min < 0 {
		return fmt.Errorf("strategy: min_weight must be >= 0, got %f", min)
	}
	if max > 1 {
		return fmt.Errorf("strategy: max_weight must be <= 1, got %f", max)
	}
	if min > max {
		return fmt.Errorf("strategy: min_weight (%f) must be <= max_weight (%f)", min, max)
	}
	return nil
}

// Feasible reports whether n assets can carry weights summing to 1
// within the bounds
func (c Constraints) Feasible(n int) error {
	min, max := c.bounds()
	if float64(n)*max < 1.0-1e-9 {
		return fmt.Errorf("%w: %d assets at max_weight %.4f cannot reach full investment",
			ErrConstraintViolation, n, max)
	}
	if float64(n)*min > 1.0+1e-9 {
		return fmt.Errorf("%w: %d assets at min_weight %.4f exceed full investment",
			ErrConstraintViolation, n, min)
	}
	return nil
}

func (c Constraints) bounds() (min, max float64) {
	min, max = c.MinWeight, c.MaxWeight
	if max == 0 {
		max = 1.0
	}
	return min, max
}

// Strategy is the weighting capability the engine calls on each
// rebalance. Construct returns weights summing to 1, each inside the
// constraint bounds.
type Strategy interface {
	Name() string
	// MinLookback is the smallest usable window row count
	MinLookback() int
	Construct(window *timeseries.Matrix, constraints Constraints) (contracts.Weights, error)
}

// clampAndNormalize projects raw positive weights onto the constraint
// box, redistributing clipped mass proportionally. Returns an error
// when the bounds cannot be met.
func clampAndNormalize(raw contracts.Weights, c Constraints) (contracts.Weights, error) {
	if err := c.Feasible(len(raw)); err != nil {
		return nil, err
	}
	min, max := c.bounds()

	total := raw.Total()
	if total <= 0 {
		return nil, fmt.Errorf("%w: non-positive raw weight total %.6f", ErrOptimizationFailure, total)
	}
	w := raw.Scale(1.0 / total)

	// Iterative projection: pin violators to their bound, renormalize
	// the free mass. len(w) rounds is enough since every round pins at
	// least one symbol.
	pinned := make(map[string]float64)
	for iter := 0; iter <= len(w); iter++ {
		free := 0.0
		budget := 1.0
		for _, v := range pinned {
			budget -= v
		}
		for sym, v := range w {
			if _, ok := pinned[sym]; ok {
				continue
			}
			free += v
		}

		violated := false
		for sym, v := range w {
			if _, ok := pinned[sym]; ok {
				continue
			}
			scaled := v / free * budget
			if scaled > max+1e-12 {
				pinned[sym] = max
				violated = true
			} else if scaled < min-1e-12 {
				pinned[sym] = min
				violated = true
			}
		}
		if !violated {
			out := make(contracts.Weights, len(w))
			for sym, v := range pinned {
				out[sym] = v
			}
			for sym, v := range w {
				if _, ok := pinned[sym]; ok {
					continue
				}
				out[sym] = v / free * budget
			}
			return out, nil
		}
		if len(pinned) == len(w) {
			total := 0.0
			for _, v := range pinned {
				total += v
			}
			if math.Abs(total-1.0) <= 1e-9 {
				out := make(contracts.Weights, len(pinned))
				for sym, v := range pinned {
					out[sym] = v
				}
				return out, nil
			}
			break
		}
	}

	return nil, fmt.Errorf("%w: projection onto [%.4f, %.4f] did not converge", ErrConstraintViolation, min, max)
}

// registry of named strategy constructors. Constructors receive the
// run's statistics cache; strategies that need no statistics ignore it.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]func(*statscache.Cache) Strategy)
)

// Register makes a strategy constructor available by name. Duplicate
// names panic: registration happens at init time and a collision is a
// programming error.
func Register(name string, ctor func(*statscache.Cache) Strategy) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("strategy: duplicate registration for %q", name))
	}
	registry[name] = ctor
}

// New instantiates a registered strategy by name, backed by the given
// per-run statistics cache
func New(name string, stats *statscache.Cache) (Strategy, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: unknown strategy %q (registered: %v)", name, Names())
	}
	return ctor(stats), nil
}

// Names lists registered strategies, sorted
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
