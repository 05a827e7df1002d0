// Package evaluation turns one company's raw tables into a Metrics record.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/metrics"
	"github.com/wonny/valuecheck/internal/ratios"
)

// ErrInvalidRequest is returned for requests that can never be evaluated
var ErrInvalidRequest = errors.New("invalid evaluation request")

// Config holds the pipeline parameters
type Config struct {
	CashflowWindow      int            `json:"cash_flows_back"`
	PriceSearchDays     int            `json:"price_search_days"`
	StatementMaxAgeDays int            `json:"statement_max_age_days"`
	PriceHistoryDays    int            `json:"price_history_days"`
	Factors             ratios.Factors `json:"factors"`
}

// DefaultConfig returns the standard pipeline parameters
func DefaultConfig() Config {
	return Config{
		CashflowWindow:      3,
		PriceSearchDays:     30,
		StatementMaxAgeDays: 365,
		PriceHistoryDays:    365,
		Factors:             ratios.DefaultFactors(),
	}
}

// Validate checks the parameters are usable
func (c Config) Validate() error {
	switch {
	case c.CashflowWindow < 1:
		return fmt.Errorf("cash flow window must be >= 1, got %d", c.CashflowWindow)
	case c.PriceSearchDays < 0:
		return fmt.Errorf("price search days must be >= 0, got %d", c.PriceSearchDays)
	case c.StatementMaxAgeDays < 1:
		return fmt.Errorf("statement max age must be >= 1 day, got %d", c.StatementMaxAgeDays)
	case c.PriceHistoryDays < 0:
		return fmt.Errorf("price history days must be >= 0, got %d", c.PriceHistoryDays)
	}
	return nil
}

// Request identifies one evaluation
type Request struct {
	Symbol         string
	EvaluationDate time.Time
	// SellDate bounds the forward price window; zero means open-ended
	SellDate time.Time
}

// Result is a successful evaluation
type Result struct {
	Metrics metrics.Metrics
	Prices  contracts.PriceSeries // full table, consumed by the backtest
}

// Pipeline evaluates companies. It holds no mutable state and is safe
// for concurrent use.
// ⭐ SSOT: 종목 평가는 이 파이프라인에서만
type Pipeline struct {
	cfg Config
}

// NewPipeline creates a pipeline with cfg
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}
	return &Pipeline{cfg: cfg}, nil
}

// Config returns the pipeline parameters
func (p *Pipeline) Config() Config {
	return p.cfg
}

// FinancialRange is the statement window EvaluateFrom requests
func (p *Pipeline) FinancialRange(req Request) (contracts.DateRange, error) {
	eval := contracts.Day(req.EvaluationDate)
	start := eval.AddDate(0, 0, -(p.cfg.StatementMaxAgeDays + 366*p.cfg.CashflowWindow))
	return contracts.NewDateRange(start, eval)
}

// PriceRange is the span of daily prices the evaluation inspects
func (p *Pipeline) PriceRange(req Request) (contracts.DateRange, error) {
	eval := contracts.Day(req.EvaluationDate)
	end := eval
	if !req.SellDate.IsZero() {
		end = contracts.Day(req.SellDate)
	}
	return contracts.NewDateRange(eval.AddDate(0, 0, -p.cfg.PriceHistoryDays), end)
}

// EvaluateFrom fetches both tables from f and evaluates them
func (p *Pipeline) EvaluateFrom(ctx context.Context, f contracts.Fetcher, req Request) (*Result, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}

	finRange, err := p.FinancialRange(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Symbol, err)
	}
	priceRange, err := p.PriceRange(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Symbol, err)
	}

	financials, err := f.FinancialData(ctx, req.Symbol, finRange)
	if err != nil {
		return nil, fetchRejection(req.Symbol, "financial data", err)
	}

	prices, err := f.StockData(ctx, req.Symbol, priceRange, false)
	if err != nil {
		return nil, fetchRejection(req.Symbol, "stock data", err)
	}

	return p.Evaluate(req, financials, prices)
}

func fetchRejection(symbol, what string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	kind := KindFetchFailed
	if errors.Is(err, contracts.ErrNoDataInRange) {
		kind = KindNoDataInRange
	}
	return &Rejection{Symbol: symbol, Kind: kind, Detail: what, Err: err}
}

func (p *Pipeline) checkRequest(req Request) error {
	if req.Symbol == "" {
		return fmt.Errorf("empty symbol: %w", ErrInvalidRequest)
	}
	if req.EvaluationDate.IsZero() {
		return fmt.Errorf("%s: missing evaluation date: %w", req.Symbol, ErrInvalidRequest)
	}
	if !req.SellDate.IsZero() && !contracts.Day(req.SellDate).After(contracts.Day(req.EvaluationDate)) {
		return fmt.Errorf("%s: sell date %s not after evaluation date %s: %w",
			req.Symbol,
			req.SellDate.Format(contracts.DateLayout),
			req.EvaluationDate.Format(contracts.DateLayout),
			ErrInvalidRequest)
	}
	return nil
}

// Evaluate computes Metrics from already-fetched tables. prices must be
// the full (unrestricted) table; financials need not be sorted.
func (p *Pipeline) Evaluate(req Request, financials []contracts.FinancialRecord, prices contracts.PriceSeries) (*Result, error) {
	if err := p.checkRequest(req); err != nil {
		return nil, err
	}

	symbol := req.Symbol
	eval := contracts.Day(req.EvaluationDate)

	// 1. restrict to the inspected span
	span, err := p.PriceRange(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	restricted := prices.Restrict(span)
	if restricted.Empty() {
		return nil, reject(symbol, KindNoPriceData, "no prices in %s", span)
	}

	// 2. the span must reach back to the evaluation date
	if _, ok := restricted.OnOrBefore(eval); !ok {
		return nil, reject(symbol, KindNoPriceAtEvaluationDate, "first price after %s", eval.Format(contracts.DateLayout))
	}

	// 3. latest statement strictly before the evaluation date
	prior := statementsBefore(financials, eval)
	if len(prior) == 0 {
		return nil, reject(symbol, KindStaleOrMissingFinancials, "no statement before %s", eval.Format(contracts.DateLayout))
	}
	latest := prior[len(prior)-1]
	if age := eval.Sub(latest.ReportDate); age > time.Duration(p.cfg.StatementMaxAgeDays)*24*time.Hour {
		return nil, reject(symbol, KindStaleOrMissingFinancials, "latest statement %s is %d days old",
			latest.ReportDate.Format(contracts.DateLayout), int(age.Hours()/24))
	}

	// 4. required fields
	if missing := latest.MissingFields(); len(missing) > 0 {
		return nil, reject(symbol, KindIncompleteFinancials, "missing %s", strings.Join(missing, ", "))
	}

	// 5. zero denominators
	switch {
	case latest.TotalOutstandingShares == 0:
		return nil, reject(symbol, KindDivideByZeroShares, "statement %s", latest.ReportDate.Format(contracts.DateLayout))
	case latest.EPS == 0:
		return nil, reject(symbol, KindDivideByZeroEps, "statement %s", latest.ReportDate.Format(contracts.DateLayout))
	case latest.TotalShareholdersEquity == 0:
		return nil, reject(symbol, KindDivideByZeroEquity, "statement %s", latest.ReportDate.Format(contracts.DateLayout))
	}

	// 6. entry price
	entry, ok := p.entryPrice(prices, eval)
	if !ok {
		return nil, reject(symbol, KindInsufficientPriceHistory, "no price within %d days before %s",
			p.cfg.PriceSearchDays, eval.Format(contracts.DateLayout))
	}

	// 7. ratios
	shares := latest.TotalOutstandingShares
	netIncome := latest.EPS * shares
	nav := ratios.NAVPerShare(latest.TotalAssets, latest.TotalLiabilities, shares)
	cnav := ratios.CNAVPerShare(latest.CashAndShortTermInvestments, latest.PPENet, latest.TotalLiabilities, shares, p.cfg.Factors.PPELand)

	// 8. trailing operating cashflows
	cashFlows, ok := trailingCashflows(prior, p.cfg.CashflowWindow)
	if !ok {
		return nil, reject(symbol, KindInsufficientCashflowHistory, "need %d statements with operating cash flow, have %d",
			p.cfg.CashflowWindow, countCashflows(prior))
	}

	m, err := metrics.New(metrics.Values{
		Symbol:            symbol,
		EvaluationDate:    eval,
		EntryPrice:        entry,
		CNAV1:             cnav,
		NAV:               nav,
		PERatio:           ratios.PriceToEarnings(netIncome, shares, entry, p.cfg.Factors.EPSPayout),
		DebtToEquityRatio: ratios.DebtToEquity(latest.TotalDebt, 0, latest.TotalShareholdersEquity),
		PotentialROI:      ratios.ROI(nav, cnav),
		MarketCap:         ratios.MarketCap(entry, shares),
		CashFlows:         cashFlows,
	})
	if err != nil {
		return nil, &Rejection{Symbol: symbol, Kind: KindIncompleteFinancials, Detail: err.Error(), Err: err}
	}

	// 9. result
	return &Result{Metrics: m, Prices: prices}, nil
}

// entryPrice is the High on eval, else on the nearest earlier day within the search window
func (p *Pipeline) entryPrice(prices contracts.PriceSeries, eval time.Time) (float64, bool) {
	for k := 0; k <= p.cfg.PriceSearchDays; k++ {
		if pt, ok := prices.At(eval.AddDate(0, 0, -k)); ok {
			if math.IsNaN(pt.High) {
				continue
			}
			return pt.High, true
		}
	}
	return 0, false
}

// statementsBefore returns the records dated strictly before d, sorted
func statementsBefore(records []contracts.FinancialRecord, d time.Time) []contracts.FinancialRecord {
	out := make([]contracts.FinancialRecord, 0, len(records))
	for _, r := range records {
		if r.ReportDate.Before(d) {
			out = append(out, r)
		}
	}
	contracts.SortFinancials(out)
	return out
}

// trailingCashflows takes the newest w operating cashflows, oldest first
func trailingCashflows(prior []contracts.FinancialRecord, w int) ([]float64, bool) {
	if len(prior) < w {
		return nil, false
	}
	tail := prior[len(prior)-w:]
	out := make([]float64, 0, w)
	for _, r := range tail {
		if math.IsNaN(r.OperatingCashflow) {
			return nil, false
		}
		out = append(out, r.OperatingCashflow)
	}
	return out, true
}

func countCashflows(prior []contracts.FinancialRecord) int {
	n := 0
	for _, r := range prior {
		if !math.IsNaN(r.OperatingCashflow) {
			n++
		}
	}
	return n
}
