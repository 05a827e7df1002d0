package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/valuecheck/internal/api"
	"github.com/wonny/valuecheck/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Serves evaluations and backtests over HTTP.

Endpoints:
  GET  /health                                 - Health check
  GET  /api/companies                          - Tickers the source knows
  GET  /api/companies/{symbol}/evaluation      - Evaluate one company (?date=YYYY-MM-DD)
  POST /api/backtests                          - Run a backtest

Example:
  go run ./cmd/valuecheck api
  go run ./cmd/valuecheck api --port 8080 --config config/strategy/example.yaml`,
	RunE: runAPIServer,
}

var (
	apiPort     string
	apiStrategy string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (default: PORT)")
	apiCmd.Flags().StringVar(&apiStrategy, "config", "", "strategy YAML for GET evaluations (buy_date is ignored)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== valuecheck API Server ===")

	d, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	if apiPort != "" {
		d.cfg.Port = apiPort
	}

	// evaluation thresholds come from the strategy file; the date comes per request
	path := apiStrategy
	if path == "" {
		path = d.cfg.StrategyFile
	}
	strategy, err := loadServerStrategy(path)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	evalHandler, err := handlers.NewEvaluationHandler(d.fetcher, d.universe, strategy, d.cache, d.log)
	if err != nil {
		return fmt.Errorf("create evaluation handler: %w", err)
	}
	backtestHandler := handlers.NewBacktestHandler(d.fetcher, d.universe, d.cfg.Workers, d.log)

	router := api.NewRouter(evalHandler, backtestHandler, d.log)
	server := api.New(d.cfg, d.log, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", d.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	d.log.Info("Server stopped")
	return nil
}
