package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/helios/internal/backtest"
	"github.com/wonny/helios/internal/backtestconfig"
	"github.com/wonny/helios/internal/marketdata"
	"github.com/wonny/helios/internal/results"
	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/config"
	"github.com/wonny/helios/pkg/database"
	"github.com/wonny/helios/pkg/logger"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "백테스팅 실행 및 관리",
	Long: `YAML 설정 파일로 정의된 백테스트를 실행합니다.

백테스트는 다음을 산출합니다:
- 전략 수익률 및 자산 곡선
- 리스크 지표 (Sharpe, Sortino, MDD, ES)
- 승률, 회전율, 거래 비용
- 리밸런스 이력 (트리거 종류 포함)

Example:
  go run ./cmd/helios backtest run --config configs/backtest.yaml
  go run ./cmd/helios backtest run --config configs/backtest.yaml --symbols 005930,000660`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `설정 파일 기준으로 백테스트를 실행하고 결과를 저장합니다.

Flags:
  --config    백테스트 YAML 설정 파일 (필수)
  --symbols   대상 종목 (쉼표 구분, 기본: 전체)
  --no-save   결과를 DB에 저장하지 않음

Example:
  go run ./cmd/helios backtest run --config configs/backtest.yaml
  go run ./cmd/helios backtest run --config configs/backtest.yaml --no-save`,
		RunE: runBacktest,
	}

	backtestSweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "전략 파라미터 스윕",
		Long: `동일한 설정으로 여러 전략을 순차 실행하고 비교합니다.

각 실행은 독립된 엔진(자체 통계 캐시 포함)으로 수행됩니다.

Flags:
  --config      백테스트 YAML 설정 파일 (필수)
  --strategies  비교할 전략 (쉼표 구분, 필수)

Example:
  go run ./cmd/helios backtest sweep --config configs/backtest.yaml \
    --strategies equal_weight,inverse_volatility,min_variance`,
		RunE: runSweep,
	}

	// Flags
	backtestConfigPath string
	backtestSymbols    string
	backtestNoSave     bool
	sweepStrategies    string
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	// Flags
	backtestRunCmd.Flags().StringVar(&backtestConfigPath, "config", "", "백테스트 YAML 설정 파일 (필수)")
	backtestRunCmd.Flags().StringVar(&backtestSymbols, "symbols", "", "대상 종목 (쉼표 구분)")
	backtestRunCmd.Flags().BoolVar(&backtestNoSave, "no-save", false, "결과를 DB에 저장하지 않음")

	backtestRunCmd.MarkFlagRequired("config")

	backtestCmd.AddCommand(backtestSweepCmd)
	backtestSweepCmd.Flags().StringVar(&backtestConfigPath, "config", "", "백테스트 YAML 설정 파일 (필수)")
	backtestSweepCmd.Flags().StringVar(&sweepStrategies, "strategies", "", "비교할 전략 (쉼표 구분, 필수)")
	backtestSweepCmd.MarkFlagRequired("config")
	backtestSweepCmd.MarkFlagRequired("strategies")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Helios Backtest Engine ===")

	// 1. Load run configuration
	runCfg, _, err := backtestconfig.Load(backtestConfigPath)
	if err != nil {
		return fmt.Errorf("load backtest config: %w", err)
	}

	for _, warning := range backtestconfig.Warn(runCfg) {
		fmt.Printf("⚠️  [%s] %s\n", warning.Code, warning.Message)
	}

	// 2. Load environment config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 3. Initialize logger
	log := logger.New(cfg)

	// 4. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	marketRepo := marketdata.NewRepository(db.Pool, log)

	// 5. Resolve universe
	var symbols []string
	if backtestSymbols != "" {
		for _, sym := range strings.Split(backtestSymbols, ",") {
			if sym = strings.TrimSpace(sym); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	} else {
		symbols, err = marketRepo.Symbols(cmd.Context())
		if err != nil {
			return fmt.Errorf("list symbols: %w", err)
		}
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols with price history")
	}

	fmt.Printf("\n📅 Period: %s ~ %s\n", runCfg.Simulation.StartDate, runCfg.Simulation.EndDate)
	fmt.Printf("💰 Initial Capital: %s원\n", formatNumber(runCfg.Simulation.InitialCapital))
	fmt.Printf("📈 Strategy: %s (lookback %d days)\n", runCfg.Strategy.Name, runCfg.Strategy.LookbackDays)
	fmt.Printf("🔄 Rebalance: %s", runCfg.Rebalance.Frequency)
	if runCfg.Rebalance.Threshold > 0 {
		fmt.Printf(" + drift %.1f%%", runCfg.Rebalance.Threshold*100)
	}
	fmt.Println()
	fmt.Printf("🌐 Universe: %d symbols\n\n", len(symbols))

	// 6. Load prices with extra history in front so the lookback is
	// warm on the first trading day
	from := runCfg.Simulation.Start().AddDate(-1, 0, 0)
	prices, err := marketRepo.PriceMatrix(cmd.Context(), symbols, from, runCfg.Simulation.End())
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	returns := timeseries.ReturnsFromPrices(prices)

	// 7. Assemble and run
	engine, err := backtest.Assemble(runCfg, cfg, log)
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}

	fmt.Println("🚀 Starting backtest...")
	fmt.Println()

	result, err := engine.Run(cmd.Context(), prices, returns)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	// 8. Persist
	if !backtestNoSave {
		configHash, err := backtestconfig.Hash(runCfg)
		if err != nil {
			return fmt.Errorf("hash config: %w", err)
		}
		store := results.NewStore(db.Pool, log)
		id, err := store.Save(cmd.Context(), result, runCfg.Strategy.Name, configHash)
		if err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		fmt.Printf("💾 Result saved (run #%d)\n", id)
	}

	// 9. Print results
	printBacktestResult(result, runCfg.Simulation.InitialCapital)

	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Helios Strategy Sweep ===")

	var names []string
	for _, name := range strings.Split(sweepStrategies, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("no strategies given")
	}

	// 1. Load configs
	runCfg, _, err := backtestconfig.Load(backtestConfigPath)
	if err != nil {
		return fmt.Errorf("load backtest config: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	// 2. Connect and load prices once; every run shares the matrices
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	marketRepo := marketdata.NewRepository(db.Pool, log)
	symbols, err := marketRepo.Symbols(cmd.Context())
	if err != nil {
		return fmt.Errorf("list symbols: %w", err)
	}
	if len(symbols) == 0 {
		return fmt.Errorf("no symbols with price history")
	}

	from := runCfg.Simulation.Start().AddDate(-1, 0, 0)
	prices, err := marketRepo.PriceMatrix(cmd.Context(), symbols, from, runCfg.Simulation.End())
	if err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	returns := timeseries.ReturnsFromPrices(prices)

	fmt.Printf("\n📅 Period: %s ~ %s\n", runCfg.Simulation.StartDate, runCfg.Simulation.EndDate)
	fmt.Printf("🌐 Universe: %d symbols\n", len(symbols))
	fmt.Printf("🧪 Strategies: %s\n\n", strings.Join(names, ", "))

	// 3. One independent engine per strategy
	fmt.Printf("%-22s %10s %8s %8s %8s %6s\n",
		"Strategy", "Return", "Sharpe", "MDD", "Turns", "Rebal")
	fmt.Println(strings.Repeat("-", 68))

	for _, name := range names {
		cfgCopy := *runCfg
		cfgCopy.Strategy.Name = name

		engine, err := backtest.Assemble(&cfgCopy, cfg, log)
		if err != nil {
			fmt.Printf("%-22s ❌ %v\n", name, err)
			continue
		}

		result, err := engine.Run(cmd.Context(), prices, returns)
		if err != nil {
			fmt.Printf("%-22s ❌ %v\n", name, err)
			continue
		}

		m := result.Metrics
		fmt.Printf("%-22s %9.2f%% %8.2f %7.2f%% %7.2f %6d\n",
			name, m.TotalReturn*100, m.Sharpe, m.MaxDrawdown*100,
			m.MeanTurnover, len(result.Events))
	}

	fmt.Println()
	return nil
}

func printBacktestResult(result *backtest.Result, initialCapital float64) {
	m := result.Metrics
	finalValue := initialCapital
	if len(result.EquityCurve) > 0 {
		finalValue = result.EquityCurve[len(result.EquityCurve)-1].Value
	}

	fmt.Println("\n✅ Backtest Completed")
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println()

	// Summary
	fmt.Println("📊 Summary")
	fmt.Printf("Period: %s ~ %s (%d trading days)\n",
		result.StartDate.Format("2006-01-02"),
		result.EndDate.Format("2006-01-02"),
		len(result.EquityCurve))
	fmt.Printf("Rebalances: %d times\n", len(result.Events))
	fmt.Printf("Duration: %.2f seconds\n", result.Duration.Seconds())
	fmt.Println()

	// Performance
	fmt.Println("💰 Performance")
	fmt.Printf("Initial Capital: %s원\n", formatNumber(initialCapital))
	fmt.Printf("Final Capital:   %s원\n", formatNumber(finalValue))
	fmt.Printf("P&L:             %s원 (%+.2f%%)\n",
		formatNumber(finalValue-initialCapital),
		m.TotalReturn*100)
	fmt.Println()

	fmt.Printf("Annual Return:   %+.2f%%\n", m.AnnualizedReturn*100)
	fmt.Printf("Volatility:      %.2f%%\n", m.Volatility*100)
	fmt.Println()

	// Risk Metrics
	fmt.Println("📉 Risk Metrics")
	fmt.Printf("Sharpe Ratio:    %.2f", m.Sharpe)
	if m.Sharpe > 3.0 {
		fmt.Print(" 🌟 (Excellent)")
	} else if m.Sharpe > 2.0 {
		fmt.Print(" ✅ (Good)")
	} else if m.Sharpe > 1.0 {
		fmt.Print(" ⚠️  (Fair)")
	} else {
		fmt.Print(" ❌ (Poor)")
	}
	fmt.Println()

	fmt.Printf("Sortino Ratio:   %.2f\n", m.Sortino)
	fmt.Printf("Calmar Ratio:    %.2f\n", m.Calmar)
	fmt.Printf("ES (95%%, 일간):  %.2f%%\n", m.ExpectedShortfall*100)
	fmt.Printf("Max Drawdown:    %.2f%%", m.MaxDrawdown*100)
	if m.MaxDrawdown < 0.10 {
		fmt.Print(" 🌟 (Excellent)")
	} else if m.MaxDrawdown < 0.20 {
		fmt.Print(" ✅ (Good)")
	} else if m.MaxDrawdown < 0.30 {
		fmt.Print(" ⚠️  (Fair)")
	} else {
		fmt.Print(" ❌ (High)")
	}
	fmt.Println()
	fmt.Println()

	// Trading Metrics
	fmt.Println("💹 Trading Metrics")
	fmt.Printf("Win Rate:        %.1f%%\n", m.WinRate*100)
	fmt.Printf("Avg Win:         %+.2f%%\n", m.AvgWin*100)
	fmt.Printf("Avg Loss:        %+.2f%%\n", m.AvgLoss*100)
	fmt.Printf("Mean Turnover:   %.1f%%\n", m.MeanTurnover*100)
	fmt.Printf("Total Costs:     %s원\n", formatNumber(m.TotalCosts))
	fmt.Println()

	// Equity Curve (last 10 points)
	fmt.Println("📈 Equity Curve (Last 10 Days)")
	startIdx := len(result.EquityCurve) - 10
	if startIdx < 0 {
		startIdx = 0
	}
	for _, point := range result.EquityCurve[startIdx:] {
		fmt.Printf("%s: %s원\n",
			point.Date.Format("2006-01-02"),
			formatNumber(point.Value))
	}
	fmt.Println()

	// Rebalance triggers
	if len(result.Events) > 0 {
		counts := map[string]int{}
		for _, ev := range result.Events {
			counts[string(ev.Trigger)]++
		}
		fmt.Println("🔔 Rebalance Triggers")
		for _, kind := range []string{"forced", "scheduled", "opportunistic"} {
			if counts[kind] > 0 {
				fmt.Printf("%-13s: %d\n", kind, counts[kind])
			}
		}
		fmt.Println()
	}

	// Recommendation
	fmt.Println("💡 Recommendation")
	if m.Sharpe > 2.0 && m.MaxDrawdown < 0.15 {
		fmt.Println("✅ Strong strategy - good risk-adjusted returns")
	} else if m.Sharpe > 1.5 && m.MaxDrawdown < 0.25 {
		fmt.Println("⚠️  Acceptable strategy - consider optimization")
	} else {
		fmt.Println("❌ Weak strategy - needs improvement")
	}
	fmt.Println()
}
