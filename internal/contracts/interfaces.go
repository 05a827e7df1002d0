package contracts

import "context"

// Fetcher supplies statement and price tables for one company
// ⭐ SSOT: 데이터 소스 인터페이스 (FMP, SimFin, Postgres, memory)
type Fetcher interface {
	// FinancialData returns statements whose report date falls in r,
	// ordered chronologically. ErrNoDataInRange when nothing intersects.
	FinancialData(ctx context.Context, symbol string, r DateRange) ([]FinancialRecord, error)

	// StockData returns daily prices. With restrict=true only rows inside r
	// are returned and an empty answer is ErrNoDataInRange. With
	// restrict=false the full stored table is returned whatever r is, and
	// it may be empty; r only tells a remote source what to load.
	StockData(ctx context.Context, symbol string, r DateRange, restrict bool) (PriceSeries, error)
}

// Universe lists the companies a data source knows about
type Universe interface {
	Companies(ctx context.Context) ([]string, error)
}
