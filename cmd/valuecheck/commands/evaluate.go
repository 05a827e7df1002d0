package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/metrics"
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:   "evaluate SYMBOL [SYMBOL...]",
	Short: "Evaluate companies at one date",
	Long: `Computes the value metrics of each company at the evaluation date
and reports which investability criteria it fails.

Example:
  go run ./cmd/valuecheck evaluate AAPL MSFT --date 2019-06-03
  go run ./cmd/valuecheck evaluate AAPL --config config/strategy/example.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEvaluate,
}

var evaluateFlags strategyFlags

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateFlags.register(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	strategy, err := evaluateFlags.load(cmd, d.cfg.StrategyFile)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	evalDate, err := strategy.EvaluationDate()
	if err != nil {
		return err
	}
	pipeline, err := evaluation.NewPipeline(strategy.PipelineConfig())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	PrintHeader(out, "Company Evaluation", [][2]string{
		{"Date", strategy.BuyDate},
		{"Source", d.cfg.DataSource},
	})

	for _, symbol := range args {
		symbol = strings.ToUpper(symbol)
		result, err := pipeline.EvaluateFrom(ctx, d.fetcher, evaluation.Request{Symbol: symbol, EvaluationDate: evalDate})
		if err != nil {
			if rej, ok := evaluation.AsRejection(err); ok {
				fmt.Fprintf(out, "\n⏭️  %s skipped: %s (%s)\n", symbol, rej.Kind, rej.Detail)
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(os.Stderr, "❌ %s: %v\n", symbol, err)
			continue
		}
		printEvaluation(out, result.Metrics, strategy.Thresholds)
	}

	return nil
}

func printEvaluation(w io.Writer, m metrics.Metrics, t metrics.Thresholds) {
	failures := m.Failures(t)

	fmt.Fprintln(w)
	if len(failures) == 0 {
		fmt.Fprintf(w, "✅ %s investable\n", m.Symbol())
	} else {
		fmt.Fprintf(w, "❌ %s not investable\n", m.Symbol())
	}

	PrintKeyValue(w, "Entry price", fmt.Sprintf("%.2f", m.EntryPrice()), 16)
	PrintKeyValue(w, "CNAV1", fmt.Sprintf("%.2f", m.CNAV1()), 16)
	PrintKeyValue(w, "NAV", fmt.Sprintf("%.2f", m.NAV()), 16)
	PrintKeyValue(w, "P/E", fmt.Sprintf("%.2f (max %.2f)", m.PERatio(), t.MaxPERatio), 16)
	PrintKeyValue(w, "Debt/Equity", fmt.Sprintf("%.2f (max %.2f)", m.DebtToEquityRatio(), t.MaxDebtToEquity), 16)
	PrintKeyValue(w, "Potential ROI", fmt.Sprintf("%.2f (min %.2f)", m.PotentialROI(), t.MinPotentialROI), 16)
	PrintKeyValue(w, "Market cap", formatNumber(m.MarketCap()), 16)

	flows := make([]string, 0, len(m.CashFlows()))
	for _, cf := range m.CashFlows() {
		flows = append(flows, formatNumber(cf))
	}
	PrintKeyValue(w, "Cash flows", strings.Join(flows, " → "), 16)

	if len(failures) > 0 {
		names := make([]string, len(failures))
		for i, f := range failures {
			names[i] = string(f)
		}
		PrintKeyValue(w, "Failed", strings.Join(names, ", "), 16)
	}
}
