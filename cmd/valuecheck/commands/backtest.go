package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/valuecheck/internal/backtest"
	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest the value criteria",
	Long: `Evaluates a company list at the buy date and checks how the
investable companies performed afterwards.

Example:
  go run ./cmd/valuecheck backtest run --date 2019-06-03
  go run ./cmd/valuecheck backtest run --config config/strategy/example.yaml --companies tickers.txt`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one backtest",
		Long: `Runs one backtest and prints the statistics block.

Flags:
  --companies   ticker file, one per line (default: every company the source lists)
  --date        buy date (YYYY-MM-DD), overrides buy_date
  --sell        sell date (YYYY-MM-DD), overrides sell_date
  --return      target multiple of the entry price (default 2.0)
  --config      strategy YAML
  --json        print the full report as JSON instead

Example:
  go run ./cmd/valuecheck backtest run --date 2019-06-03 --return 1.5
  go run ./cmd/valuecheck backtest run --config config/strategy/example.yaml --json`,
		RunE: runBacktest,
	}

	// Flags
	backtestFlags     strategyFlags
	backtestCompanies string
	backtestJSON      bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)

	backtestFlags.register(backtestRunCmd)
	backtestRunCmd.Flags().StringVar(&backtestCompanies, "companies", "", "ticker file, one per line")
	backtestRunCmd.Flags().BoolVar(&backtestJSON, "json", false, "print the report as JSON")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	strategy, err := backtestFlags.load(cmd, d.cfg.StrategyFile)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	symbols, err := companyList(cmd, backtestCompanies, d.universe)
	if err != nil {
		return err
	}

	evalDate, err := strategy.EvaluationDate()
	if err != nil {
		return err
	}
	opts, err := strategy.BacktestOptions()
	if err != nil {
		return err
	}
	pipeline, err := evaluation.NewPipeline(strategy.PipelineConfig())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !backtestJSON {
		fields := [][2]string{
			{"Buy date", strategy.BuyDate},
		}
		if strategy.SellDate != "" {
			fields = append(fields, [2]string{"Sell date", strategy.SellDate})
		}
		fields = append(fields,
			[2]string{"Target", fmt.Sprintf("%.2fx entry", strategy.ReturnPercent)},
			[2]string{"Companies", fmt.Sprintf("%d", len(symbols))},
			[2]string{"Source", d.cfg.DataSource},
		)
		PrintHeader(out, "Value Backtest", fields)
		fmt.Fprintln(out, "🚀 Starting backtest...")
	}

	engine := backtest.NewEngine(d.fetcher, pipeline, d.log, d.cfg.Workers)
	report, err := engine.Run(ctx, backtest.Config{EvaluationDate: evalDate, Options: opts}, symbols)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	if backtestJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printBacktestReport(out, report)
	return nil
}

// companyList reads --companies or falls back to the source's universe
func companyList(cmd *cobra.Command, path string, universe contracts.Universe) ([]string, error) {
	if path != "" {
		return readCompanies(path)
	}
	if universe == nil {
		return nil, fmt.Errorf("--companies is required: the data source cannot list companies")
	}
	symbols, err := universe.Companies(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("the data source lists no companies")
	}
	return symbols, nil
}

func printBacktestReport(w io.Writer, report *backtest.Report) {
	s := report.Summary

	fmt.Fprintln(w)
	fmt.Fprintln(w, "✅ Backtest Completed")
	PrintDoubleSeparator(w)
	fmt.Fprintf(w, "Run ID: %s (%.2fs)\n", report.RunID, report.Duration.Seconds())
	fmt.Fprintln(w)

	// Coverage
	fmt.Fprintln(w, "📊 Coverage")
	PrintKeyValue(w, "Considered", fmt.Sprintf("%d", s.Considered()), 22)
	PrintKeyValue(w, "Sufficient data", fmt.Sprintf("%d", s.Sufficient), 22)
	PrintKeyValue(w, "Skipped", fmt.Sprintf("%d", s.TotalSkipped), 22)
	kinds := make([]string, 0, len(s.Skipped))
	for kind, n := range s.Skipped {
		if n > 0 {
			kinds = append(kinds, string(kind))
		}
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(w, "      • %-30s %d\n", kind, s.Skipped[evaluation.Kind(kind)])
	}
	PrintKeyValue(w, "Investable", formatCount(s.Investable, s.PercentInvestable()), 22)
	fmt.Fprintln(w)

	// Outcomes
	fmt.Fprintln(w, "💰 Outcomes")
	PrintKeyValue(w, "Successful", formatCount(s.Successful, s.PercentOfInvestable(s.Successful)), 22)
	PrintKeyValue(w, fmt.Sprintf("Reached %.2fx target", s.ReturnPercent), formatCount(s.ExceededTarget, s.PercentOfInvestable(s.ExceededTarget)), 22)
	PrintKeyValue(w, "Gained at end", formatCount(s.GainAtEnd, s.PercentOfInvestable(s.GainAtEnd)), 22)
	PrintKeyValue(w, "Lost at end", formatCount(s.LossAtEnd, s.PercentOfInvestable(s.LossAtEnd)), 22)
	PrintKeyValue(w, "No later prices", formatCount(s.NoData, s.PercentOfInvestable(s.NoData)), 22)
	PrintKeyValue(w, "Average accuracy", fmt.Sprintf("%.2f%%", s.AverageAccuracy*100), 22)
	PrintKeyValue(w, "Total returns", s.TotalReturns.StringFixed(2), 22)
	fmt.Fprintln(w)

	if s.OverallGain() {
		fmt.Fprintln(w, "📈 Verdict: GAIN")
	} else {
		fmt.Fprintln(w, "📉 Verdict: LOSS")
	}

	var outcomes []*backtest.Outcome
	for _, c := range report.Companies {
		if c.Outcome != nil {
			outcomes = append(outcomes, c.Outcome)
		}
	}
	if len(outcomes) == 0 {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "📋 Investable companies")
	widths := []int{8, 10, 10, 10, 12, 16}
	PrintTableHeader(w, []string{"Symbol", "Entry", "Peak", "Last", "Return", "Verdict"}, widths)
	for _, o := range outcomes {
		PrintTableRow(w, []string{
			o.Symbol,
			fmt.Sprintf("%.2f", o.EntryPrice),
			fmt.Sprintf("%.2f", o.PeakHigh),
			fmt.Sprintf("%.2f", o.LastHigh),
			o.Return.StringFixed(2),
			string(o.Verdict),
		}, widths)
	}
}
