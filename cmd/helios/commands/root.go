package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	env        string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "helios",
	Short: "Helios - 포트폴리오 백테스팅 엔진",
	Long: `Helios Unified CLI

일봉 기반 포트폴리오 백테스팅 시스템.
팩터 프리셀렉션, 멤버십 정책, 전략 가중치 산출까지 한 번에.

Usage:
  go run ./cmd/helios [command]

Examples:
  go run ./cmd/helios api
  go run ./cmd/helios backtest run --config configs/backtest.yaml
  go run ./cmd/helios cache sweep
  go run ./cmd/helios test-db`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config-env", "", "env file (default is .env)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
