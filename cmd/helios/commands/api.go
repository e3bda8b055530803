package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/helios/internal/api"
	"github.com/wonny/helios/internal/api/handlers"
	"github.com/wonny/helios/internal/marketdata"
	"github.com/wonny/helios/internal/results"
	"github.com/wonny/helios/pkg/config"
	"github.com/wonny/helios/pkg/database"
	"github.com/wonny/helios/pkg/logger"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 백테스트 실행 및 조회 엔드포인트 제공
- 가격 데이터 적재 엔드포인트 제공

Endpoints:
  GET  /health                     - Health check
  POST /api/backtests              - 백테스트 실행
  GET  /api/backtests              - 실행 이력 조회
  GET  /api/backtests/{id}         - 실행 결과 조회
  GET  /api/backtests/{id}/equity  - 자산 곡선 조회
  GET  /api/backtests/{id}/events  - 리밸런스 이력 조회
  GET  /api/data/symbols           - 종목 목록 조회
  POST /api/data/prices            - 가격 데이터 적재

Example:
  go run ./cmd/helios api
  go run ./cmd/helios api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Helios API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	log.Info("Connected to database")

	// 4. Create repositories
	marketRepo := marketdata.NewRepository(db.Pool, log)
	store := results.NewStore(db.Pool, log)

	// 5. Create handlers
	backtestHandler := handlers.NewBacktestHandler(marketRepo, store, cfg, log)
	dataHandler := handlers.NewDataHandler(marketRepo, log)

	// 6. Create router
	router := api.NewRouter(backtestHandler, dataHandler, log)

	// 7. Create server
	server := api.New(cfg, log, router)

	// 8. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /health")
	fmt.Println("  POST /api/backtests")
	fmt.Println("  GET  /api/backtests")
	fmt.Println("  GET  /api/backtests/{id}")
	fmt.Println("  GET  /api/backtests/{id}/equity")
	fmt.Println("  GET  /api/backtests/{id}/events")
	fmt.Println("  GET  /api/data/symbols")
	fmt.Println("  POST /api/data/prices")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
