package backtest

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/fetcher/memory"
	"github.com/wonny/valuecheck/pkg/config"
	"github.com/wonny/valuecheck/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(&config.Config{Env: "test", LogLevel: "error"})
}

func goodStatement(symbol, reportDate string, ocf float64) contracts.FinancialRecord {
	r := contracts.NewFinancialRecord(symbol, date(reportDate))
	r.TotalOutstandingShares = 2e8
	r.EPS = 2
	r.CashAndShortTermInvestments = 1.2e9
	r.PPENet = 4e8
	r.TotalAssets = 3e9
	r.TotalLiabilities = 1e9
	r.TotalShareholdersEquity = 2e9
	r.TotalDebt = 5e8
	r.OperatingCashflow = ocf
	return r
}

func putCompany(store *memory.Store, symbol string, mutate func(*contracts.FinancialRecord), reportDates []string, pre, post float64) {
	for i, rd := range reportDates {
		r := goodStatement(symbol, rd, float64(i+1)*1e8)
		if mutate != nil && i == len(reportDates)-1 {
			mutate(&r)
		}
		store.PutFinancials(symbol, r)
	}
	var pts []contracts.PricePoint
	for d := date("2019-01-01"); !d.After(evalDate); d = d.AddDate(0, 0, 1) {
		pts = append(pts, contracts.PricePoint{Date: d, High: pre, Low: pre})
	}
	for d := evalDate.AddDate(0, 0, 1); !d.After(date("2020-06-30")); d = d.AddDate(0, 0, 1) {
		pts = append(pts, contracts.PricePoint{Date: d, High: post, Low: post})
	}
	store.PutPrices(symbol, pts...)
}

func fiveCompanyStore() *memory.Store {
	store := memory.New()
	reports := []string{"2017-03-01", "2018-03-01", "2019-03-01"}

	// investable, doubles after evaluation
	putCompany(store, "AAA", nil, reports, 10, 25)
	// zero shares on the latest statement
	putCompany(store, "BBB", func(r *contracts.FinancialRecord) { r.TotalOutstandingShares = 0 }, reports, 10, 25)
	// latest statement older than a year
	putCompany(store, "CCC", nil, []string{"2016-03-01", "2017-03-01", "2018-10-01"}, 10, 25)
	// priced far above earnings: sufficient data, not investable
	putCompany(store, "DDD", nil, reports, 100, 250)
	// valid statements, no prices at all
	for i, rd := range reports {
		store.PutFinancials("EEE", goodStatement("EEE", rd, float64(i+1)*1e8))
	}
	return store
}

func newEngine(t *testing.T, f contracts.Fetcher, workers int) *Engine {
	t.Helper()
	p, err := evaluation.NewPipeline(evaluation.DefaultConfig())
	require.NoError(t, err)
	return NewEngine(f, p, testLogger(), workers)
}

func TestEngine_Run_FiveCompanies(t *testing.T) {
	e := newEngine(t, fiveCompanyStore(), 3)

	report, err := e.Run(context.Background(), Config{
		EvaluationDate: evalDate,
		Options:        DefaultOptions(),
	}, []string{"EEE", "AAA", "BBB", "CCC", "DDD", "AAA", " "})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Nil(t, report.SellDate)

	s := report.Summary
	assert.Equal(t, 5, s.Considered())
	assert.Equal(t, 2, s.Sufficient)
	assert.Equal(t, 3, s.TotalSkipped)
	assert.Equal(t, 1, s.Skipped[evaluation.KindNoPriceData])
	assert.Zero(t, s.Skipped[evaluation.KindNoDataInRange])
	assert.Equal(t, 1, s.Skipped[evaluation.KindDivideByZeroShares])
	assert.Equal(t, 1, s.Skipped[evaluation.KindStaleOrMissingFinancials])
	assert.Equal(t, 1, s.Investable)
	assert.Equal(t, 1, s.ExceededTarget)
	assert.Equal(t, 1.0, s.AverageAccuracy)
	assert.True(t, s.TotalReturns.Equal(decimal.NewFromInt(15)), "total returns = %s", s.TotalReturns)

	require.Len(t, report.Companies, 5)
	byClass := map[Classification][]string{}
	for _, c := range report.Companies {
		byClass[c.Classification] = append(byClass[c.Classification], c.Symbol)
	}
	assert.Equal(t, []string{"AAA"}, byClass[ClassInvestable])
	assert.Equal(t, []string{"DDD"}, byClass[ClassNotInvestable])
	assert.ElementsMatch(t, []string{"BBB", "CCC", "EEE"}, byClass[ClassSkipped])

	for _, c := range report.Companies {
		if c.Symbol == "EEE" {
			assert.Equal(t, evaluation.KindNoPriceData, c.Reason)
		}
		if c.Symbol == "DDD" {
			assert.NotEmpty(t, c.Failures)
		}
		if c.Symbol == "AAA" {
			require.NotNil(t, c.Outcome)
			assert.Equal(t, VerdictExceededTarget, c.Outcome.Verdict)
		}
	}
}

func TestEngine_Run_SingleWorkerMatchesParallel(t *testing.T) {
	symbols := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	cfg := Config{EvaluationDate: evalDate, Options: DefaultOptions()}

	serial, err := newEngine(t, fiveCompanyStore(), 1).Run(context.Background(), cfg, symbols)
	require.NoError(t, err)
	parallel, err := newEngine(t, fiveCompanyStore(), 8).Run(context.Background(), cfg, symbols)
	require.NoError(t, err)

	assert.Equal(t, serial.Summary, parallel.Summary)
}

func TestEngine_Run_SellDate(t *testing.T) {
	opts := DefaultOptions()
	opts.SellDate = date("2020-03-31")

	report, err := newEngine(t, fiveCompanyStore(), 2).Run(context.Background(), Config{
		EvaluationDate: evalDate,
		Options:        opts,
	}, []string{"AAA"})
	require.NoError(t, err)

	require.NotNil(t, report.SellDate)
	assert.Equal(t, date("2020-03-31"), *report.SellDate)
	assert.Equal(t, 1, report.Summary.ExceededTarget)
}

func TestEngine_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newEngine(t, fiveCompanyStore(), 2).Run(ctx, Config{
		EvaluationDate: evalDate,
		Options:        DefaultOptions(),
	}, []string{"AAA", "BBB"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Run_InvalidOptions(t *testing.T) {
	_, err := newEngine(t, memory.New(), 1).Run(context.Background(), Config{
		EvaluationDate: evalDate,
		Options:        Options{ReturnPercent: -1},
	}, []string{"AAA"})
	assert.Error(t, err)
}
