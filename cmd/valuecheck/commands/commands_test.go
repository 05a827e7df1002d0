package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/valuecheck/internal/backtest"
	"github.com/wonny/valuecheck/internal/evaluation"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCompanies(t *testing.T) {
	path := writeFile(t, "tickers.txt", "# large caps\naapl\n\n  MSFT  # software\n#GOOG\nbrk.b\n")

	symbols, err := readCompanies(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "BRK.B"}, symbols)
}

func TestReadCompanies_Errors(t *testing.T) {
	_, err := readCompanies(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)

	_, err = readCompanies(writeFile(t, "empty.txt", "# nothing here\n\n"))
	assert.Error(t, err)
}

func newStrategyCmd(f *strategyFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	return cmd
}

func TestStrategyFlags_Load(t *testing.T) {
	file := writeFile(t, "strategy.yaml", "buy_date: 2019-06-03\nreturn_percent: 3\nthresholds:\n  max_pe_ratio: 12\n")

	tests := []struct {
		name       string
		args       []string
		wantBuy    string
		wantSell   string
		wantReturn float64
		wantErr    bool
	}{
		{"file only", []string{"--config", file}, "2019-06-03", "", 3, false},
		{"flags override file", []string{"--config", file, "--date", "2018-01-02", "--return", "1.5", "--sell", "2019-01-02"}, "2018-01-02", "2019-01-02", 1.5, false},
		{"defaults with date", []string{"--date", "2018-01-02"}, "2018-01-02", "", 2, false},
		{"no date anywhere", []string{}, "", "", 0, true},
		{"sell before buy", []string{"--date", "2018-01-02", "--sell", "2017-01-02"}, "", "", 0, true},
		{"missing file", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f strategyFlags
			cmd := newStrategyCmd(&f)
			require.NoError(t, cmd.ParseFlags(tt.args))

			cfg, err := f.load(cmd, "")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBuy, cfg.BuyDate)
			assert.Equal(t, tt.wantSell, cfg.SellDate)
			assert.Equal(t, tt.wantReturn, cfg.ReturnPercent)
		})
	}
}

func TestStrategyFlags_EnvFile(t *testing.T) {
	file := writeFile(t, "strategy.yaml", "buy_date: 2019-06-03\n")

	var f strategyFlags
	cmd := newStrategyCmd(&f)
	require.NoError(t, cmd.ParseFlags(nil))

	cfg, err := f.load(cmd, file)
	require.NoError(t, err)
	assert.Equal(t, "2019-06-03", cfg.BuyDate)
}

func TestLoadServerStrategy(t *testing.T) {
	cfg, err := loadServerStrategy(writeFile(t, "s.yaml", "buy_date: 2019-06-03\nthresholds:\n  max_pe_ratio: 9\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.BuyDate)
	assert.Equal(t, 9.0, cfg.Thresholds.MaxPERatio)

	_, err = loadServerStrategy(writeFile(t, "bad.yaml", "pipeline:\n  statement_max_age_days: 0\n"))
	assert.Error(t, err)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567.6, "1,234,568"},
		{-2500000, "-2,500,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.in))
	}
}

func TestPrintBacktestReport(t *testing.T) {
	report := &backtest.Report{
		RunID:    "run-1",
		Duration: 1500 * time.Millisecond,
		Summary: backtest.Summary{
			Sufficient:      2,
			Skipped:         map[evaluation.Kind]int{evaluation.KindNoDataInRange: 1, evaluation.KindDivideByZeroShares: 0},
			TotalSkipped:    1,
			Investable:      1,
			Successful:      1,
			ExceededTarget:  1,
			ReturnPercent:   2,
			AverageAccuracy: 1,
			TotalReturns:    decimal.NewFromInt(15),
		},
		Companies: []backtest.CompanyResult{
			{Symbol: "AAA", Classification: backtest.ClassInvestable, Outcome: &backtest.Outcome{
				Symbol: "AAA", Verdict: backtest.VerdictExceededTarget, EntryPrice: 10, PeakHigh: 25, LastHigh: 25, Return: decimal.NewFromInt(15),
			}},
			{Symbol: "DDD", Classification: backtest.ClassNotInvestable},
			{Symbol: "EEE", Classification: backtest.ClassSkipped, Reason: evaluation.KindNoDataInRange},
		},
	}

	var buf bytes.Buffer
	printBacktestReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "Considered")
	assert.Contains(t, out, "no_data_in_range")
	assert.NotContains(t, out, "divide_by_zero_shares")
	assert.Contains(t, out, "1 (50.00%)")
	assert.Contains(t, out, "Reached 2.00x target")
	assert.Contains(t, out, "100.00%")
	assert.Contains(t, out, "15.00")
	assert.Contains(t, out, "Verdict: GAIN")
	assert.Contains(t, out, "exceeded_target")
	assert.Equal(t, 1, strings.Count(out, "AAA"))
}

func TestPrintBacktestReport_Loss(t *testing.T) {
	report := &backtest.Report{
		Summary: backtest.Summary{Sufficient: 1, Skipped: map[evaluation.Kind]int{}, TotalReturns: decimal.Zero},
	}

	var buf bytes.Buffer
	printBacktestReport(&buf, report)
	assert.Contains(t, buf.String(), "Verdict: LOSS")
	assert.NotContains(t, buf.String(), "Investable companies")
}
