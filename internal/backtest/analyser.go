package backtest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/metrics"
)

// ErrAnalyserMisuse is returned when the analyser is used out of order
var ErrAnalyserMisuse = errors.New("analyser misuse")

// Verdict is the backtest outcome for one investable company
type Verdict string

const (
	VerdictExceededTarget Verdict = "exceeded_target"
	VerdictGainAtEnd      Verdict = "gain_at_end"
	VerdictLossAtEnd      Verdict = "loss_at_end"
	VerdictNoData         Verdict = "no_data"
)

// Successful reports whether the verdict counts toward accuracy
func (v Verdict) Successful() bool {
	return v == VerdictExceededTarget || v == VerdictGainAtEnd
}

// Options configure the analysis
type Options struct {
	// ReturnPercent is the target multiple of the entry price, e.g. 2.0 for a double
	ReturnPercent float64
	// SellDate caps the forward window; zero means use all data after evaluation
	SellDate   time.Time
	Thresholds metrics.Thresholds
}

// DefaultOptions returns a 2x target with the standard thresholds
func DefaultOptions() Options {
	return Options{
		ReturnPercent: 2.0,
		Thresholds:    metrics.DefaultThresholds(),
	}
}

// Validate checks the options are usable
func (o Options) Validate() error {
	if !(o.ReturnPercent > 0) {
		return fmt.Errorf("return percent must be > 0, got %v", o.ReturnPercent)
	}
	return nil
}

// Outcome is the result of backtesting one investable company
type Outcome struct {
	Symbol     string          `json:"symbol"`
	Verdict    Verdict         `json:"verdict"`
	EntryPrice float64         `json:"entry_price"`
	PeakHigh   float64         `json:"peak_high"`
	LastHigh   float64         `json:"last_high"`
	Return     decimal.Decimal `json:"return"`
}

// Summary is the aggregate of a finished analysis
type Summary struct {
	Sufficient     int                     `json:"sufficient"`
	Skipped        map[evaluation.Kind]int `json:"skipped"`
	TotalSkipped   int                     `json:"total_skipped"`
	Investable     int                     `json:"investable"`
	Successful     int                     `json:"successful"`
	ExceededTarget int                     `json:"exceeded_target"`
	GainAtEnd      int                     `json:"gain_at_end"`
	LossAtEnd      int                     `json:"loss_at_end"`
	NoData         int                     `json:"no_data"`
	ReturnPercent  float64                 `json:"return_percent"`

	// AverageAccuracy is successful / investable, 0 when nothing was investable
	AverageAccuracy float64         `json:"average_accuracy"`
	TotalReturns    decimal.Decimal `json:"total_returns"`
}

// Considered is every company the run looked at
func (s Summary) Considered() int {
	return s.Sufficient + s.TotalSkipped
}

// PercentInvestable is investable as a share of companies with sufficient data
func (s Summary) PercentInvestable() float64 {
	return percent(s.Investable, s.Sufficient)
}

// PercentOfInvestable expresses n as a share of investable companies
func (s Summary) PercentOfInvestable(n int) float64 {
	return percent(n, s.Investable)
}

// OverallGain reports whether more than half the investable companies succeeded
func (s Summary) OverallGain() bool {
	return s.AverageAccuracy > 0.5
}

func percent(n, of int) float64 {
	if of == 0 {
		return 0
	}
	return float64(n) / float64(of) * 100
}

// Analyser accumulates per-company metrics and price tables, then
// classifies every investable company. It is single-writer: feed it
// from one goroutine.
// ⭐ SSOT: 백테스트 집계는 여기서만
type Analyser struct {
	opts Options

	metrics map[string]metrics.Metrics
	prices  map[string]contracts.PriceSeries
	skipped map[string]evaluation.Kind

	finalized bool
	outcomes  []Outcome
	summary   Summary
}

// NewAnalyser creates an analyser in the collecting state
func NewAnalyser(opts Options) (*Analyser, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("analyser options: %w", err)
	}
	return &Analyser{
		opts:    opts,
		metrics: make(map[string]metrics.Metrics),
		prices:  make(map[string]contracts.PriceSeries),
		skipped: make(map[string]evaluation.Kind),
	}, nil
}

func (a *Analyser) misuse(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrAnalyserMisuse)
}

// AddMetricsFor records the metrics of a company with sufficient data
func (a *Analyser) AddMetricsFor(symbol string, m metrics.Metrics) error {
	if a.finalized {
		return a.misuse("add metrics for %s after analysis", symbol)
	}
	if _, ok := a.metrics[symbol]; ok {
		return a.misuse("metrics for %s added twice", symbol)
	}
	if _, ok := a.skipped[symbol]; ok {
		return a.misuse("%s already recorded as skipped", symbol)
	}
	a.metrics[symbol] = m
	return nil
}

// AddStockDFFor records the full daily price table of a company
func (a *Analyser) AddStockDFFor(symbol string, prices contracts.PriceSeries) error {
	if a.finalized {
		return a.misuse("add prices for %s after analysis", symbol)
	}
	if _, ok := a.prices[symbol]; ok {
		return a.misuse("prices for %s added twice", symbol)
	}
	if _, ok := a.skipped[symbol]; ok {
		return a.misuse("%s already recorded as skipped", symbol)
	}
	a.prices[symbol] = prices
	return nil
}

// RecordSkip tallies a company left out of the analysis
func (a *Analyser) RecordSkip(symbol string, kind evaluation.Kind) error {
	if a.finalized {
		return a.misuse("record skip for %s after analysis", symbol)
	}
	if _, ok := a.metrics[symbol]; ok {
		return a.misuse("%s already has metrics", symbol)
	}
	if _, ok := a.prices[symbol]; ok {
		return a.misuse("%s already has prices", symbol)
	}
	if _, ok := a.skipped[symbol]; ok {
		return a.misuse("%s skipped twice", symbol)
	}
	a.skipped[symbol] = kind
	return nil
}

// RunAnalysis classifies every investable company and finalizes the analyser.
// Every company with metrics needs a price table and the other way round;
// an empty table is fine.
func (a *Analyser) RunAnalysis() error {
	if a.finalized {
		return a.misuse("analysis already run")
	}
	for sym := range a.metrics {
		if _, ok := a.prices[sym]; !ok {
			return a.misuse("%s has metrics but no price table", sym)
		}
	}
	for sym := range a.prices {
		if _, ok := a.metrics[sym]; !ok {
			return a.misuse("%s has a price table but no metrics", sym)
		}
	}

	s := Summary{
		Sufficient:    len(a.metrics),
		Skipped:       make(map[evaluation.Kind]int),
		TotalSkipped:  len(a.skipped),
		ReturnPercent: a.opts.ReturnPercent,
		TotalReturns:  decimal.Zero,
	}
	for _, kind := range a.skipped {
		s.Skipped[kind]++
	}

	symbols := make([]string, 0, len(a.metrics))
	for sym := range a.metrics {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	outcomes := make([]Outcome, 0)
	for _, sym := range symbols {
		m := a.metrics[sym]
		if !m.IsInvestable(a.opts.Thresholds) {
			continue
		}
		s.Investable++

		o := a.classify(sym, m)
		switch o.Verdict {
		case VerdictExceededTarget:
			s.ExceededTarget++
		case VerdictGainAtEnd:
			s.GainAtEnd++
		case VerdictLossAtEnd:
			s.LossAtEnd++
		case VerdictNoData:
			s.NoData++
		}
		if o.Verdict.Successful() {
			s.Successful++
		}
		s.TotalReturns = s.TotalReturns.Add(o.Return)
		outcomes = append(outcomes, o)
	}

	if s.Investable > 0 {
		s.AverageAccuracy = float64(s.Successful) / float64(s.Investable)
	}

	a.summary = s
	a.outcomes = outcomes
	a.finalized = true
	return nil
}

// classify inspects the prices strictly after the evaluation date
func (a *Analyser) classify(symbol string, m metrics.Metrics) Outcome {
	o := Outcome{
		Symbol:     symbol,
		EntryPrice: m.EntryPrice(),
		Return:     decimal.Zero,
	}

	forward := a.prices[symbol].After(m.EvaluationDate())
	if !a.opts.SellDate.IsZero() {
		forward = forward.Until(a.opts.SellDate)
	}

	peak, ok := forward.MaxHigh()
	if !ok {
		o.Verdict = VerdictNoData
		return o
	}
	last, _ := forward.Last()
	o.PeakHigh = peak
	o.LastHigh = last.High

	entry := decimal.NewFromFloat(m.EntryPrice())
	switch {
	case peak >= a.opts.ReturnPercent*m.EntryPrice():
		o.Verdict = VerdictExceededTarget
		o.Return = decimal.NewFromFloat(peak).Sub(entry)
	case last.High > m.EntryPrice():
		o.Verdict = VerdictGainAtEnd
		o.Return = decimal.NewFromFloat(last.High).Sub(entry)
	default:
		o.Verdict = VerdictLossAtEnd
		o.Return = decimal.NewFromFloat(last.High).Sub(entry)
	}
	return o
}

// Summary returns the aggregates; only valid after RunAnalysis
func (a *Analyser) Summary() (Summary, error) {
	if !a.finalized {
		return Summary{}, a.misuse("summary requested before analysis")
	}
	s := a.summary
	s.Skipped = make(map[evaluation.Kind]int, len(a.summary.Skipped))
	for k, v := range a.summary.Skipped {
		s.Skipped[k] = v
	}
	return s, nil
}

// Outcomes returns per-company results in symbol order; only valid after RunAnalysis
func (a *Analyser) Outcomes() ([]Outcome, error) {
	if !a.finalized {
		return nil, a.misuse("outcomes requested before analysis")
	}
	return append([]Outcome(nil), a.outcomes...), nil
}

// Finalized reports whether RunAnalysis has completed
func (a *Analyser) Finalized() bool {
	return a.finalized
}
