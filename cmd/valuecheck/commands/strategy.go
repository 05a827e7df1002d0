package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/valuecheck/internal/strategyconfig"
)

// strategyFlags are shared by every command that evaluates
type strategyFlags struct {
	file          string
	buyDate       string
	sellDate      string
	returnPercent float64
}

func (f *strategyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "config", "", "strategy YAML (default: STRATEGY_FILE, then built-in defaults)")
	cmd.Flags().StringVar(&f.buyDate, "date", "", "evaluation (buy) date YYYY-MM-DD, overrides buy_date")
	cmd.Flags().StringVar(&f.sellDate, "sell", "", "sell date YYYY-MM-DD, overrides sell_date")
	cmd.Flags().Float64Var(&f.returnPercent, "return", 0, "target multiple of the entry price, overrides return_percent")
}

// load reads the strategy file and applies flag overrides
func (f *strategyFlags) load(cmd *cobra.Command, envFile string) (*strategyconfig.Config, error) {
	path := f.file
	if path == "" {
		path = envFile
	}

	cfg := strategyconfig.Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read strategy file: %w", err)
		}
		// validated after the overrides: --date may supply a missing buy_date
		if cfg, err = strategyconfig.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	if cmd.Flags().Changed("date") {
		cfg.BuyDate = f.buyDate
	}
	if cmd.Flags().Changed("sell") {
		cfg.SellDate = f.sellDate
	}
	if cmd.Flags().Changed("return") {
		cfg.ReturnPercent = f.returnPercent
	}

	if err := strategyconfig.Validate(cfg); err != nil {
		return nil, err
	}
	for _, w := range strategyconfig.Warn(cfg) {
		PrintWarning(fmt.Sprintf("[%s] %s", w.Code, w.Message))
	}
	return cfg, nil
}

// loadServerStrategy reads thresholds and factors for the API; buy_date and
// sell_date are supplied per request and ignored here
func loadServerStrategy(path string) (*strategyconfig.Config, error) {
	cfg := strategyconfig.Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read strategy file: %w", err)
		}
		if cfg, err = strategyconfig.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.BuyDate, cfg.SellDate = "", ""
	if err := cfg.PipelineConfig().Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// readCompanies reads one ticker per line; blank lines and # comments are skipped
func readCompanies(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open companies file: %w", err)
	}
	defer file.Close()

	var symbols []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		if line = strings.TrimSpace(line); line != "" {
			symbols = append(symbols, strings.ToUpper(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read companies file: %w", err)
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("companies file %s lists no tickers", path)
	}
	return symbols, nil
}
