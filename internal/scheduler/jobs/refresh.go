package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/helios/internal/backtest"
	"github.com/wonny/helios/internal/backtestconfig"
	"github.com/wonny/helios/internal/marketdata"
	"github.com/wonny/helios/internal/results"
	"github.com/wonny/helios/internal/timeseries"
	appconfig "github.com/wonny/helios/pkg/config"
	"github.com/wonny/helios/pkg/logger"
)

// BacktestRefreshJob reruns a configured backtest on fresh prices each
// night, so the persisted run always reflects the latest history
type BacktestRefreshJob struct {
	configPath string
	marketRepo *marketdata.Repository
	store      *results.Store
	env        *appconfig.Config
	logger     *logger.Logger
}

// NewBacktestRefreshJob creates a new backtest refresh job
func NewBacktestRefreshJob(
	configPath string,
	marketRepo *marketdata.Repository,
	store *results.Store,
	env *appconfig.Config,
	log *logger.Logger,
) *BacktestRefreshJob {
	return &BacktestRefreshJob{
		configPath: configPath,
		marketRepo: marketRepo,
		store:      store,
		env:        env,
		logger:     log,
	}
}

// Name returns the job name
func (j *BacktestRefreshJob) Name() string {
	return "backtest_refresh"
}

// Schedule returns the cron schedule (every day at 5 AM, after the
// cache sweep)
func (j *BacktestRefreshJob) Schedule() string {
	return "0 0 5 * * *"
}

// Run executes the refresh
func (j *BacktestRefreshJob) Run(ctx context.Context) error {
	cfg, _, err := backtestconfig.Load(j.configPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", j.configPath, err)
	}

	symbols, err := j.marketRepo.Symbols(ctx)
	if err != nil {
		return err
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols with price history")
	}

	from := cfg.Simulation.Start().AddDate(-1, 0, 0)
	prices, err := j.marketRepo.PriceMatrix(ctx, symbols, from, cfg.Simulation.End())
	if err != nil {
		return err
	}
	returns := timeseries.ReturnsFromPrices(prices)

	engine, err := backtest.Assemble(cfg, j.env, j.logger)
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx, prices, returns)
	if err != nil {
		return err
	}

	configHash, err := backtestconfig.Hash(cfg)
	if err != nil {
		return err
	}

	id, err := j.store.Save(ctx, result, cfg.Strategy.Name, configHash)
	if err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"id":     id,
		"run_id": result.RunID,
		"events": len(result.Events),
	}).Info("Nightly backtest refreshed")

	return nil
}
