// Package simfin loads the SimFin bulk download (semicolon separated CSV) into memory.
package simfin

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/fetcher/memory"
	"github.com/wonny/valuecheck/pkg/logger"
)

// Bulk file names
const (
	BalanceSheetFile    = "us-balance-annual.csv"
	CashFlowFile        = "us-cashflow-annual.csv"
	IncomeStatementFile = "us-income-annual.csv"
	SharePricesFile     = "us-shareprices-daily.csv"
	CompaniesFile       = "us-companies.csv"
)

// ErrMissingColumn is returned when a sheet lacks a required header
var ErrMissingColumn = errors.New("missing column")

// Column headers, with the older names SimFin used as fallbacks
var (
	colTicker      = []string{"Ticker"}
	colFiscalYear  = []string{"Fiscal Year"}
	colPublishDate = []string{"Publish Date"}
	colDate        = []string{"Date"}

	colCash             = []string{"Cash, Cash Equivalents & Short Term Investments"}
	colPPE              = []string{"Property, Plant & Equipment, Net"}
	colTotalAssets      = []string{"Total Assets"}
	colShortTermDebt    = []string{"Short Term Debt"}
	colLongTermDebt     = []string{"Long Term Debt"}
	colTotalLiabilities = []string{"Total Liabilities"}
	colTotalEquity      = []string{"Total Equity"}

	colShares    = []string{"Shares (Basic)", "Shares (Diluted)"}
	colNetIncome = []string{"Net Income (Common)", "Net Income"}

	colOperatingCash = []string{"Net Cash from Operating Activities"}

	colHigh  = []string{"High"}
	colLow   = []string{"Low"}
	colClose = []string{"Close"}
)

// Load reads every bulk sheet in dir into a memory store.
// Tickers absent from the companies sheet, or delisted ("_old"), are ignored.
func Load(ctx context.Context, dir string, log *logger.Logger) (*memory.Store, error) {
	start := time.Now()

	companies, err := readCompanies(filepath.Join(dir, CompaniesFile))
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		annual = make(map[annualKey]*contracts.FinancialRecord)
		prices = make(map[string][]contracts.PricePoint)
	)

	// one record per ticker and fiscal year, filled by three sheets
	record := func(ticker string, year int, published time.Time) *contracts.FinancialRecord {
		key := annualKey{ticker: ticker, year: year}
		rec, ok := annual[key]
		if !ok {
			fresh := contracts.NewFinancialRecord(ticker, published)
			rec = &fresh
			annual[key] = rec
		}
		if published.After(rec.ReportDate) {
			rec.ReportDate = published
		}
		return rec
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return readSheet(gctx, filepath.Join(dir, BalanceSheetFile), companies, func(row row) error {
			year, published, err := row.annual()
			if err != nil {
				return err
			}
			values, err := row.floats(colCash, colPPE, colTotalAssets, colShortTermDebt, colLongTermDebt, colTotalLiabilities, colTotalEquity)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			rec := record(row.ticker, year, published)
			rec.CashAndShortTermInvestments = values[0]
			rec.PPENet = values[1]
			rec.TotalAssets = values[2]
			rec.TotalDebt = values[3] + values[4]
			rec.TotalLiabilities = values[5]
			rec.TotalShareholdersEquity = values[6]
			return nil
		})
	})

	g.Go(func() error {
		return readSheet(gctx, filepath.Join(dir, IncomeStatementFile), companies, func(row row) error {
			year, published, err := row.annual()
			if err != nil {
				return err
			}
			values, err := row.floats(colShares, colNetIncome)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			rec := record(row.ticker, year, published)
			rec.TotalOutstandingShares = values[0]
			rec.EPS = perShare(values[1], values[0])
			return nil
		})
	})

	g.Go(func() error {
		return readSheet(gctx, filepath.Join(dir, CashFlowFile), companies, func(row row) error {
			year, published, err := row.annual()
			if err != nil {
				return err
			}
			values, err := row.floats(colOperatingCash)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			record(row.ticker, year, published).OperatingCashflow = values[0]
			return nil
		})
	})

	g.Go(func() error {
		return readSheet(gctx, filepath.Join(dir, SharePricesFile), companies, func(row row) error {
			day, err := row.date(colDate)
			if err != nil {
				return err
			}
			values, err := row.floats(colHigh, colLow, colClose)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			prices[row.ticker] = append(prices[row.ticker], contracts.PricePoint{
				Date:  day,
				High:  values[0],
				Low:   values[1],
				Close: values[2],
			})
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	store := memory.New()
	symbols := make([]string, 0, len(companies))
	for ticker := range companies {
		symbols = append(symbols, ticker)
	}
	store.AddCompanies(symbols...)

	for _, rec := range annual {
		store.PutFinancials(rec.Symbol, *rec)
	}
	for ticker, points := range prices {
		store.PutPrices(ticker, points...)
	}

	log.WithFields(map[string]interface{}{
		"dir":        dir,
		"companies":  len(companies),
		"statements": len(annual),
		"priced":     len(prices),
		"duration":   time.Since(start).String(),
	}).Info("SimFin bulk data loaded")

	return store, nil
}

type annualKey struct {
	ticker string
	year   int
}

// perShare is NaN unless both parts are known and shares is non-zero
func perShare(amount, shares float64) float64 {
	if math.IsNaN(amount) || math.IsNaN(shares) || shares == 0 {
		return math.NaN()
	}
	return amount / shares
}

func readCompanies(path string) (map[string]struct{}, error) {
	companies := make(map[string]struct{})
	err := readSheet(context.Background(), path, nil, func(row row) error {
		if row.ticker == "" || strings.Contains(row.ticker, "_old") {
			return nil
		}
		companies[row.ticker] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return companies, nil
}

// row is one CSV line with header lookup
type row struct {
	sheet  string
	line   int
	ticker string
	header map[string]int
	fields []string
}

func (r row) column(names []string) (string, error) {
	for _, name := range names {
		if i, ok := r.header[name]; ok {
			if i < len(r.fields) {
				return strings.TrimSpace(r.fields[i]), nil
			}
			return "", nil
		}
	}
	return "", fmt.Errorf("%s: %q: %w", r.sheet, names[0], ErrMissingColumn)
}

// floats parses the named columns; an empty cell is NaN
func (r row) floats(columns ...[]string) ([]float64, error) {
	out := make([]float64, len(columns))
	for i, names := range columns {
		raw, err := r.column(names)
		if err != nil {
			return nil, err
		}
		if raw == "" {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %q is not a number: %w", r.sheet, r.line, raw, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r row) date(names []string) (time.Time, error) {
	raw, err := r.column(names)
	if err != nil {
		return time.Time{}, err
	}
	d, err := contracts.ParseDay(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s line %d: %w", r.sheet, r.line, err)
	}
	return d, nil
}

// annual returns the fiscal year and publish date of a statement row
func (r row) annual() (int, time.Time, error) {
	raw, err := r.column(colFiscalYear)
	if err != nil {
		return 0, time.Time{}, err
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%s line %d: bad fiscal year %q", r.sheet, r.line, raw)
	}
	published, err := r.date(colPublishDate)
	if err != nil {
		return 0, time.Time{}, err
	}
	return year, published, nil
}

// readSheet streams path row by row. When companies is non-nil, rows for
// unlisted tickers are skipped before fn sees them.
func readSheet(ctx context.Context, path string, companies map[string]struct{}, fn func(row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	sheet := filepath.Base(path)
	headerRow, err := reader.Read()
	if err == io.EOF {
		return fmt.Errorf("%s: empty sheet", sheet)
	}
	if err != nil {
		return fmt.Errorf("%s: header: %w", sheet, err)
	}

	header := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		header[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	tickerCol, ok := header[colTicker[0]]
	if !ok {
		return fmt.Errorf("%s: %q: %w", sheet, colTicker[0], ErrMissingColumn)
	}

	for line := 2; ; line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s line %d: %w", sheet, line, err)
		}
		if tickerCol >= len(fields) {
			continue
		}

		ticker := strings.TrimSpace(fields[tickerCol])
		if companies != nil {
			if _, listed := companies[ticker]; !listed {
				continue
			}
		}

		if err := fn(row{sheet: sheet, line: line, ticker: ticker, header: header, fields: fields}); err != nil {
			return err
		}
	}
}
