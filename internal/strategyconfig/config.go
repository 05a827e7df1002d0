package strategyconfig

import (
	"time"

	"github.com/wonny/valuecheck/internal/backtest"
	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/metrics"
	"github.com/wonny/valuecheck/internal/ratios"
)

// Config는 백테스트 한 번의 전체 설정
type Config struct {
	BuyDate       string             `yaml:"buy_date" json:"buy_date"`                       // YYYY-MM-DD
	SellDate      string             `yaml:"sell_date,omitempty" json:"sell_date,omitempty"` // 비어 있으면 끝까지
	ReturnPercent float64            `yaml:"return_percent" json:"return_percent"`
	CashFlowsBack int                `yaml:"cash_flows_back" json:"cash_flows_back"`
	Thresholds    metrics.Thresholds `yaml:"thresholds" json:"thresholds"`
	Factors       ratios.Factors     `yaml:"factors" json:"factors"`
	Pipeline      Pipeline           `yaml:"pipeline" json:"pipeline"`
}

// Pipeline 데이터 탐색 범위
type Pipeline struct {
	PriceSearchDays     int `yaml:"price_search_days" json:"price_search_days"`
	StatementMaxAgeDays int `yaml:"statement_max_age_days" json:"statement_max_age_days"`
	PriceHistoryDays    int `yaml:"price_history_days" json:"price_history_days"`
}

// Default returns the standard options; keys missing from a file keep these values
func Default() *Config {
	p := evaluation.DefaultConfig()
	o := backtest.DefaultOptions()
	return &Config{
		ReturnPercent: o.ReturnPercent,
		CashFlowsBack: p.CashflowWindow,
		Thresholds:    o.Thresholds,
		Factors:       p.Factors,
		Pipeline: Pipeline{
			PriceSearchDays:     p.PriceSearchDays,
			StatementMaxAgeDays: p.StatementMaxAgeDays,
			PriceHistoryDays:    p.PriceHistoryDays,
		},
	}
}

// EvaluationDate parses buy_date
func (c *Config) EvaluationDate() (time.Time, error) {
	return contracts.ParseDay(c.BuyDate)
}

// SellDateTime parses sell_date; zero when unset
func (c *Config) SellDateTime() (time.Time, error) {
	if c.SellDate == "" {
		return time.Time{}, nil
	}
	return contracts.ParseDay(c.SellDate)
}

// PipelineConfig converts the options into evaluation parameters
func (c *Config) PipelineConfig() evaluation.Config {
	return evaluation.Config{
		CashflowWindow:      c.CashFlowsBack,
		PriceSearchDays:     c.Pipeline.PriceSearchDays,
		StatementMaxAgeDays: c.Pipeline.StatementMaxAgeDays,
		PriceHistoryDays:    c.Pipeline.PriceHistoryDays,
		Factors:             c.Factors,
	}
}

// BacktestOptions converts the options into analyser options
func (c *Config) BacktestOptions() (backtest.Options, error) {
	sell, err := c.SellDateTime()
	if err != nil {
		return backtest.Options{}, err
	}
	return backtest.Options{
		ReturnPercent: c.ReturnPercent,
		SellDate:      sell,
		Thresholds:    c.Thresholds,
	}, nil
}
