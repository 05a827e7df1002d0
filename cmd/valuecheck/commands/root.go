package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dataSource string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "valuecheck",
	Short: "Value investing backtester",
	Long: `valuecheck

Evaluates companies against Graham-style value criteria at a past date
and checks how the investable ones actually performed afterwards.

Data sources (DATA_SOURCE or --source):
  simfin    SimFin bulk CSV files in SIMFIN_DATA_DIR
  fmp       Financial Modeling Prep REST API (FMP_API_KEY)
  postgres  local store, filled from FMP on demand

Usage:
  go run ./cmd/valuecheck [command]

Examples:
  go run ./cmd/valuecheck evaluate AAPL --date 2019-06-03
  go run ./cmd/valuecheck backtest run --config config/strategy/example.yaml
  go run ./cmd/valuecheck fetcher warm --date 2019-06-03
  go run ./cmd/valuecheck api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Ctrl+C cancels the command's context so long runs stop between companies.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataSource, "source", "", "data source override (simfin|fmp|postgres)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
