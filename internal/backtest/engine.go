package backtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/metrics"
	"github.com/wonny/valuecheck/pkg/logger"
)

// Classification of a company within one run
type Classification string

const (
	ClassSkipped       Classification = "skipped"
	ClassNotInvestable Classification = "not_investable"
	ClassInvestable    Classification = "investable"
)

// Config holds one backtest run's parameters
type Config struct {
	EvaluationDate time.Time
	Options        Options
}

// CompanyResult is one company's place in the report
type CompanyResult struct {
	Symbol         string              `json:"symbol"`
	Classification Classification      `json:"classification"`
	Reason         evaluation.Kind     `json:"reason,omitempty"`
	Detail         string              `json:"detail,omitempty"`
	Failures       []metrics.Criterion `json:"failures,omitempty"`
	Metrics        *metrics.Metrics    `json:"metrics,omitempty"`
	Outcome        *Outcome            `json:"outcome,omitempty"`
}

// Report holds a finished run
type Report struct {
	RunID          string          `json:"run_id"`
	EvaluationDate time.Time       `json:"evaluation_date"`
	SellDate       *time.Time      `json:"sell_date,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	Duration       time.Duration   `json:"duration"`
	Summary        Summary         `json:"summary"`
	Companies      []CompanyResult `json:"companies"`
}

// Engine runs a backtest over a company list
// ⭐ SSOT: 백테스팅 실행은 여기서만
//
// Evaluation fans out over a bounded worker pool; the results are then
// folded into a single Analyser on the calling goroutine.
type Engine struct {
	fetcher  contracts.Fetcher
	pipeline *evaluation.Pipeline
	logger   *logger.Logger
	workers  int
}

// NewEngine creates a new backtest engine
func NewEngine(fetcher contracts.Fetcher, pipeline *evaluation.Pipeline, log *logger.Logger, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		fetcher:  fetcher,
		pipeline: pipeline,
		logger:   log,
		workers:  workers,
	}
}

type evaluated struct {
	symbol string
	result *evaluation.Result
	reject *evaluation.Rejection
}

// Run evaluates every symbol at cfg.EvaluationDate and backtests the investable ones
func (e *Engine) Run(ctx context.Context, cfg Config, symbols []string) (*Report, error) {
	analyser, err := NewAnalyser(cfg.Options)
	if err != nil {
		return nil, err
	}

	symbols = uniqueSymbols(symbols)
	runID := uuid.New().String()
	startTime := time.Now()

	log := e.logger.WithFields(map[string]interface{}{
		"run_id":          runID,
		"evaluation_date": cfg.EvaluationDate.Format(contracts.DateLayout),
		"companies":       len(symbols),
		"workers":         e.workers,
	})
	log.Info("Starting backtest")

	// Map: evaluate companies independently
	results, err := e.evaluateAll(ctx, cfg, symbols)
	if err != nil {
		return nil, err
	}

	// Reduce: single writer
	for _, r := range results {
		if r.reject != nil {
			log.WithFields(map[string]interface{}{
				"symbol": r.symbol,
				"reason": string(r.reject.Kind),
				"detail": r.reject.Detail,
			}).Debug("Company skipped")
			if err := analyser.RecordSkip(r.symbol, r.reject.Kind); err != nil {
				return nil, err
			}
			continue
		}
		if err := analyser.AddMetricsFor(r.symbol, r.result.Metrics); err != nil {
			return nil, err
		}
		if err := analyser.AddStockDFFor(r.symbol, r.result.Prices); err != nil {
			return nil, err
		}
	}

	if err := analyser.RunAnalysis(); err != nil {
		return nil, err
	}
	summary, err := analyser.Summary()
	if err != nil {
		return nil, err
	}
	outcomes, err := analyser.Outcomes()
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:          runID,
		EvaluationDate: contracts.Day(cfg.EvaluationDate),
		StartedAt:      startTime,
		Duration:       time.Since(startTime),
		Summary:        summary,
		Companies:      buildCompanyResults(results, outcomes, cfg.Options.Thresholds),
	}
	if !cfg.Options.SellDate.IsZero() {
		sell := contracts.Day(cfg.Options.SellDate)
		report.SellDate = &sell
	}

	log.WithFields(map[string]interface{}{
		"sufficient":       summary.Sufficient,
		"skipped":          summary.TotalSkipped,
		"investable":       summary.Investable,
		"successful":       summary.Successful,
		"average_accuracy": summary.AverageAccuracy,
		"total_returns":    summary.TotalReturns.String(),
		"duration":         report.Duration,
	}).Info("Backtest completed")

	return report, nil
}

func (e *Engine) evaluateAll(ctx context.Context, cfg Config, symbols []string) ([]evaluated, error) {
	results := make([]evaluated, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			req := evaluation.Request{
				Symbol:         sym,
				EvaluationDate: cfg.EvaluationDate,
				SellDate:       cfg.Options.SellDate,
			}
			res, err := e.pipeline.EvaluateFrom(gctx, e.fetcher, req)
			if err != nil {
				if rej, ok := evaluation.AsRejection(err); ok {
					results[i] = evaluated{symbol: sym, reject: rej}
					return nil
				}
				if kind := evaluation.KindOf(err); kind != "" {
					results[i] = evaluated{symbol: sym, reject: &evaluation.Rejection{Symbol: sym, Kind: kind, Err: err}}
					return nil
				}
				return fmt.Errorf("evaluate %s: %w", sym, err)
			}
			results[i] = evaluated{symbol: sym, result: res}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func buildCompanyResults(results []evaluated, outcomes []Outcome, th metrics.Thresholds) []CompanyResult {
	bySymbol := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		bySymbol[o.Symbol] = o
	}

	out := make([]CompanyResult, 0, len(results))
	for _, r := range results {
		if r.reject != nil {
			out = append(out, CompanyResult{
				Symbol:         r.symbol,
				Classification: ClassSkipped,
				Reason:         r.reject.Kind,
				Detail:         r.reject.Detail,
			})
			continue
		}

		m := r.result.Metrics
		cr := CompanyResult{Symbol: r.symbol, Metrics: &m}
		if o, ok := bySymbol[r.symbol]; ok {
			cr.Classification = ClassInvestable
			cr.Outcome = &o
		} else {
			cr.Classification = ClassNotInvestable
			cr.Failures = m.Failures(th)
		}
		out = append(out, cr)
	}
	return out
}

// uniqueSymbols trims, drops blanks and duplicates, and sorts
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
