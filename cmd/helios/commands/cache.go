package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/helios/internal/factorcache"
	"github.com/wonny/helios/pkg/config"
	"github.com/wonny/helios/pkg/logger"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "팩터 캐시 관리",
	Long: `디스크 팩터 캐시를 관리합니다.

Subcommands:
  clear   - 캐시 전체 비우기
  sweep   - 만료된 항목만 제거

Example:
  go run ./cmd/helios cache clear
  go run ./cmd/helios cache sweep`,
}

var (
	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "캐시 전체 비우기",
		RunE:  clearCache,
	}

	cacheSweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "만료된 항목 제거",
		RunE:  sweepCache,
	}
)

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
}

func openCache() (*factorcache.Cache, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	cache, err := factorcache.New(cfg.Cache.Dir, cfg.Cache.MaxAge, log)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	return cache, nil
}

func clearCache(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}

	if err := cache.Clear(); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	fmt.Println("✅ Factor cache cleared")
	return nil
}

func sweepCache(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}

	count, err := cache.Sweep()
	if err != nil {
		return fmt.Errorf("sweep cache: %w", err)
	}

	fmt.Printf("✅ Factor cache swept (%d entries removed)\n", count)
	return nil
}
