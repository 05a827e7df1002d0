package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/pkg/logger"
)

// Fetcher serves tables from PostgreSQL. A request whose range the store has
// not loaded yet goes to the upstream fetcher (when set); the answer is saved,
// the loaded span extended, and the answer returned.
type Fetcher struct {
	db         DB
	financials *FinancialRepository
	prices     *PriceRepository
	coverage   *CoverageRepository
	upstream   contracts.Fetcher
	log        *logger.Logger
}

// NewFetcher creates a store-backed fetcher; upstream may be nil
func NewFetcher(db DB, upstream contracts.Fetcher, log *logger.Logger) *Fetcher {
	return &Fetcher{
		db:         db,
		financials: NewFinancialRepository(db),
		prices:     NewPriceRepository(db),
		coverage:   NewCoverageRepository(db),
		upstream:   upstream,
		log:        log,
	}
}

// FinancialData implements contracts.Fetcher
func (f *Fetcher) FinancialData(ctx context.Context, symbol string, r contracts.DateRange) ([]contracts.FinancialRecord, error) {
	loaded, err := f.loaded(ctx, symbol, DatasetFinancials, r)
	if err != nil {
		return nil, err
	}
	if loaded {
		return f.storedFinancials(ctx, symbol, r)
	}

	records, err := f.upstream.FinancialData(ctx, symbol, r)
	switch {
	case errors.Is(err, contracts.ErrNoDataInRange):
		f.extend(ctx, symbol, DatasetFinancials, r)
		return nil, err
	case err != nil:
		return nil, err
	}

	if err := f.financials.SaveBatch(ctx, records); err != nil {
		f.log.WithError(err).WithField("symbol", symbol).Warn("failed to store fetched financials")
		return records, nil
	}
	f.extend(ctx, symbol, DatasetFinancials, r)
	return records, nil
}

// StockData implements contracts.Fetcher.
// The unrestricted table is every stored row for the symbol.
func (f *Fetcher) StockData(ctx context.Context, symbol string, r contracts.DateRange, restrict bool) (contracts.PriceSeries, error) {
	loaded, err := f.loaded(ctx, symbol, DatasetPrices, r)
	if err != nil {
		return nil, err
	}
	if loaded {
		return f.storedPrices(ctx, symbol, r, restrict)
	}

	fetched, err := f.upstream.StockData(ctx, symbol, r, restrict)
	switch {
	case errors.Is(err, contracts.ErrNoDataInRange):
		f.extend(ctx, symbol, DatasetPrices, r)
		return nil, err
	case err != nil:
		return nil, err
	}

	if err := f.prices.SaveBatch(ctx, symbol, fetched); err != nil {
		f.log.WithError(err).WithField("symbol", symbol).Warn("failed to store fetched prices")
		return fetched, nil
	}
	f.extend(ctx, symbol, DatasetPrices, r)
	return fetched, nil
}

// loaded reports whether the store alone answers r. Without an upstream
// the store is all there is.
func (f *Fetcher) loaded(ctx context.Context, symbol, dataset string, r contracts.DateRange) (bool, error) {
	if f.upstream == nil {
		return true, nil
	}
	return f.coverage.Covers(ctx, symbol, dataset, r)
}

func (f *Fetcher) extend(ctx context.Context, symbol, dataset string, r contracts.DateRange) {
	if err := f.coverage.Extend(ctx, symbol, dataset, r); err != nil {
		f.log.WithError(err).WithFields(map[string]interface{}{
			"symbol":  symbol,
			"dataset": dataset,
		}).Warn("failed to record coverage")
	}
}

func (f *Fetcher) storedFinancials(ctx context.Context, symbol string, r contracts.DateRange) ([]contracts.FinancialRecord, error) {
	records, err := f.financials.GetByRange(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s financials %s: %w", symbol, r, contracts.ErrNoDataInRange)
	}
	return records, nil
}

func (f *Fetcher) storedPrices(ctx context.Context, symbol string, r contracts.DateRange, restrict bool) (contracts.PriceSeries, error) {
	if !restrict {
		return f.prices.GetAll(ctx, symbol)
	}
	prices, err := f.prices.GetByRange(ctx, symbol, r)
	if err != nil {
		return nil, err
	}
	if prices.Empty() {
		return nil, fmt.Errorf("%s prices %s: %w", symbol, r, contracts.ErrNoDataInRange)
	}
	return prices, nil
}

// Companies implements contracts.Universe with the stored symbols
func (f *Fetcher) Companies(ctx context.Context) ([]string, error) {
	return Symbols(ctx, f.db)
}

// Warm fetches symbol from upstream unconditionally, stores both tables and
// marks both ranges loaded. A symbol the upstream has no data for is not an error.
func (f *Fetcher) Warm(ctx context.Context, symbol string, financialRange, priceRange contracts.DateRange) error {
	if f.upstream == nil {
		return errors.New("warm: no upstream fetcher configured")
	}

	records, err := f.upstream.FinancialData(ctx, symbol, financialRange)
	switch {
	case errors.Is(err, contracts.ErrNoDataInRange):
	case err != nil:
		return err
	default:
		if err := f.financials.SaveBatch(ctx, records); err != nil {
			return err
		}
	}
	if err := f.coverage.Extend(ctx, symbol, DatasetFinancials, financialRange); err != nil {
		return err
	}

	prices, err := f.upstream.StockData(ctx, symbol, priceRange, false)
	if err != nil {
		return err
	}
	if err := f.prices.SaveBatch(ctx, symbol, prices); err != nil {
		return err
	}
	return f.coverage.Extend(ctx, symbol, DatasetPrices, priceRange)
}
