// Package memory keeps statement and price tables in process memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/valuecheck/internal/contracts"
)

// Store is an in-memory Fetcher and Universe. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	financials map[string][]contracts.FinancialRecord
	prices     map[string]contracts.PriceSeries
	listed     map[string]struct{}
}

// New creates an empty store
func New() *Store {
	return &Store{
		financials: make(map[string][]contracts.FinancialRecord),
		prices:     make(map[string]contracts.PriceSeries),
		listed:     make(map[string]struct{}),
	}
}

// AddCompanies lists symbols in the universe even when no table is loaded for them
func (s *Store) AddCompanies(symbols ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sym := range symbols {
		s.listed[sym] = struct{}{}
	}
}

// PutFinancials appends statements for symbol
func (s *Store) PutFinancials(symbol string, records ...contracts.FinancialRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := append(append([]contracts.FinancialRecord(nil), s.financials[symbol]...), records...)
	contracts.SortFinancials(merged)
	s.financials[symbol] = merged
}

// PutPrices merges daily prices for symbol; a later point replaces one on the same date
func (s *Store) PutPrices(symbol string, points ...contracts.PricePoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byDate := make(map[int64]contracts.PricePoint, len(s.prices[symbol])+len(points))
	for _, p := range s.prices[symbol] {
		byDate[p.Date.Unix()] = p
	}
	for _, p := range points {
		p.Date = contracts.Day(p.Date)
		byDate[p.Date.Unix()] = p
	}

	merged := make([]contracts.PricePoint, 0, len(byDate))
	for _, p := range byDate {
		merged = append(merged, p)
	}
	s.prices[symbol] = contracts.NewPriceSeries(merged)
}

// FinancialData implements contracts.Fetcher
func (s *Store) FinancialData(ctx context.Context, symbol string, r contracts.DateRange) ([]contracts.FinancialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []contracts.FinancialRecord
	for _, rec := range s.financials[symbol] {
		if r.Contains(rec.ReportDate) {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s financials %s: %w", symbol, r, contracts.ErrNoDataInRange)
	}
	return out, nil
}

// StockData implements contracts.Fetcher
func (s *Store) StockData(ctx context.Context, symbol string, r contracts.DateRange, restrict bool) (contracts.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	full := s.prices[symbol]
	if !restrict {
		return append(contracts.PriceSeries(nil), full...), nil
	}
	restricted := full.Restrict(r)
	if restricted.Empty() {
		return nil, fmt.Errorf("%s prices %s: %w", symbol, r, contracts.ErrNoDataInRange)
	}
	return append(contracts.PriceSeries(nil), restricted...), nil
}

// Companies implements contracts.Universe
func (s *Store) Companies(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.listed)+len(s.financials)+len(s.prices))
	for sym := range s.listed {
		seen[sym] = struct{}{}
	}
	for sym := range s.financials {
		seen[sym] = struct{}{}
	}
	for sym := range s.prices {
		seen[sym] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}
