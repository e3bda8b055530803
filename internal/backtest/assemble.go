package backtest

import (
	"time"

	appconfig "github.com/wonny/helios/pkg/config"
	"github.com/wonny/helios/pkg/logger"

	"github.com/wonny/helios/internal/backtestconfig"
	"github.com/wonny/helios/internal/eligibility"
	"github.com/wonny/helios/internal/factorcache"
	"github.com/wonny/helios/internal/factors"
	"github.com/wonny/helios/internal/membership"
	"github.com/wonny/helios/internal/preselect"
	"github.com/wonny/helios/internal/statscache"
	"github.com/wonny/helios/internal/strategy"
)

// Assemble wires an engine from a validated run configuration: the
// strategy from the registry, the preselection pipeline when top-k is
// set, and the membership policy when enabled. The on-disk score
// cache is attached only when both the run and the environment allow
// it.
// ⭐ SSOT: 엔진 조립은 이 함수에서만
func Assemble(cfg *backtestconfig.Config, env *appconfig.Config, log *logger.Logger) (*Engine, error) {
	stats := statscache.New(log)

	strat, err := strategy.New(cfg.Strategy.Name, stats)
	if err != nil {
		return nil, err
	}

	var opts []Option

	if cfg.Preselect.TopK > 0 {
		scorer, err := factors.NewScorer(cfg.Preselect.Factors, log)
		if err != nil {
			return nil, err
		}

		var selOpts []preselect.Option
		if cfg.Eligibility.Enable {
			checker, err := eligibility.NewChecker(cfg.Eligibility.Config, log)
			if err != nil {
				return nil, err
			}
			selOpts = append(selOpts, preselect.WithEligibility(checker))
		}
		if cfg.Cache.Enable && env != nil {
			maxAge := env.Cache.MaxAge
			if maxAge <= 0 {
				maxAge = 7 * 24 * time.Hour
			}
			cache, err := factorcache.New(env.Cache.Dir, maxAge, log)
			if err != nil {
				return nil, err
			}
			selOpts = append(selOpts, preselect.WithCache(cache))
		}

		selector, err := preselect.NewSelector(scorer, cfg.Preselect.TopK, log, selOpts...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPreselection(selector))
	}

	if cfg.Membership.Enable {
		policy, err := membership.NewPolicy(cfg.Membership.Config, log)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithMembership(policy))
	}

	return NewEngine(cfg, strat, log, opts...)
}
