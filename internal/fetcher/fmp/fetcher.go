// Package fmp reads statements and daily prices from the Financial Modeling Prep v3 REST API.
package fmp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/pkg/config"
	"github.com/wonny/valuecheck/pkg/httputil"
	"github.com/wonny/valuecheck/pkg/logger"
	"github.com/wonny/valuecheck/pkg/redis"
)

// ErrAPI is returned when FMP answers 200 with an error payload
var ErrAPI = errors.New("fmp api error")

// Statement endpoints under /financials/
const (
	balanceSheet    = "balance-sheet-statement"
	incomeStatement = "income-statement"
	cashFlow        = "cash-flow-statement"
)

// Fetcher implements contracts.Fetcher and contracts.Universe over the FMP API.
// Raw responses are cached in Redis when the cache is enabled.
type Fetcher struct {
	client  *httputil.Client
	cache   *redis.Cache
	baseURL string
	apiKey  string
	ttl     time.Duration
	log     *logger.Logger
}

// New creates a fetcher. cache may wrap a disabled client.
func New(cfg config.FMPConfig, client *httputil.Client, cache *redis.Cache, log *logger.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		cache:   cache,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		ttl:     cfg.CacheTTL,
		log:     log,
	}
}

// FinancialData implements contracts.Fetcher.
// The three statements are merged by their reported date.
func (f *Fetcher) FinancialData(ctx context.Context, symbol string, r contracts.DateRange) ([]contracts.FinancialRecord, error) {
	byDate := make(map[string]*contracts.FinancialRecord)

	for _, statement := range []string{balanceSheet, incomeStatement, cashFlow} {
		rows, err := f.statement(ctx, statement, symbol)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			day, err := contracts.ParseDay(row.date)
			if err != nil {
				f.log.WithFields(map[string]interface{}{
					"symbol":    symbol,
					"statement": statement,
					"date":      row.date,
				}).Warn("skipping statement row with bad date")
				continue
			}
			rec, ok := byDate[row.date]
			if !ok {
				fresh := contracts.NewFinancialRecord(symbol, day)
				rec = &fresh
				byDate[row.date] = rec
			}
			row.apply(statement, rec)
		}
	}

	out := make([]contracts.FinancialRecord, 0, len(byDate))
	for _, rec := range byDate {
		if r.Contains(rec.ReportDate) {
			out = append(out, *rec)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s financials %s: %w", symbol, r, contracts.ErrNoDataInRange)
	}
	contracts.SortFinancials(out)
	return out, nil
}

// StockData implements contracts.Fetcher.
// An unrestricted request widens the query by a year on each side.
func (f *Fetcher) StockData(ctx context.Context, symbol string, r contracts.DateRange, restrict bool) (contracts.PriceSeries, error) {
	from, to := r.Start, r.End
	if !restrict {
		from, to = from.AddDate(-1, 0, 0), to.AddDate(1, 0, 0)
	}

	q := url.Values{}
	q.Set("from", from.Format(contracts.DateLayout))
	q.Set("to", to.Format(contracts.DateLayout))

	var resp historicalResponse
	if err := f.load(ctx, "historical-price-full/"+url.PathEscape(symbol), q, &resp); err != nil {
		return nil, err
	}

	points := make([]contracts.PricePoint, 0, len(resp.Historical))
	for _, h := range resp.Historical {
		day, err := contracts.ParseDay(h.Date)
		if err != nil {
			continue
		}
		points = append(points, contracts.PricePoint{
			Date:  day,
			High:  float64(h.High),
			Low:   float64(h.Low),
			Close: float64(h.Close),
		})
	}

	full := contracts.NewPriceSeries(points)
	if !restrict {
		return full, nil
	}
	restricted := full.Restrict(r)
	if restricted.Empty() {
		return nil, fmt.Errorf("%s prices %s: %w", symbol, r, contracts.ErrNoDataInRange)
	}
	return restricted, nil
}

// Companies implements contracts.Universe using the stock list endpoint
func (f *Fetcher) Companies(ctx context.Context) ([]string, error) {
	var list []struct {
		Symbol string `json:"symbol"`
	}
	if err := f.load(ctx, "stock/list", nil, &list); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(list))
	for _, item := range list {
		if item.Symbol != "" {
			out = append(out, item.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *Fetcher) statement(ctx context.Context, statement, symbol string) ([]statementRow, error) {
	var resp statementResponse
	if err := f.load(ctx, "financials/"+statement+"/"+url.PathEscape(symbol), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Financials) == 0 {
		return nil, fmt.Errorf("no %s data for %s: %w", statement, symbol, contracts.ErrNoDataInRange)
	}
	return resp.Financials, nil
}

// load fetches path (cache first) and decodes the JSON body into dest
func (f *Fetcher) load(ctx context.Context, path string, q url.Values, dest interface{}) error {
	if q == nil {
		q = url.Values{}
	}
	q.Set("apikey", f.apiKey)
	target := fmt.Sprintf("%s/%s?%s", f.baseURL, path, q.Encode())
	key := redis.ResponseKey("fmp", target)

	body, found, err := f.cache.GetBytes(ctx, key)
	if err != nil {
		f.log.WithError(err).Warn("fmp cache read failed")
	}

	if !found {
		body, err = f.client.GetBody(ctx, target)
		if err != nil {
			return fmt.Errorf("fmp %s: %w", path, err)
		}
		if err := apiError(body); err != nil {
			return fmt.Errorf("fmp %s: %w", path, err)
		}
	}

	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("fmp %s: decode: %w", path, err)
	}

	// only bodies that decoded are cached
	if !found {
		if err := f.cache.SetBytes(ctx, key, body, f.ttl); err != nil {
			f.log.WithError(err).Warn("fmp cache write failed")
		}
	}
	return nil
}

// apiError detects {"Error Message": "..."} bodies (bad key, plan limits)
func apiError(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var payload struct {
		Message string `json:"Error Message"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil || payload.Message == "" {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrAPI, payload.Message)
}
