package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/valuecheck/internal/contracts"
)

// FinancialRepository reads and writes valuecheck.financial_statements
// ⭐ SSOT: 재무 데이터 저장소는 여기서만
type FinancialRepository struct {
	db DB
}

// NewFinancialRepository creates a new financial repository
func NewFinancialRepository(db DB) *FinancialRepository {
	return &FinancialRepository{db: db}
}

// GetByRange returns the statements of symbol reported inside r, oldest first
func (r *FinancialRepository) GetByRange(ctx context.Context, symbol string, rng contracts.DateRange) ([]contracts.FinancialRecord, error) {
	query := `
		SELECT symbol, report_date, total_outstanding_shares, eps, cash_and_short_term_investments,
		       ppe_net, total_assets, total_liabilities, total_shareholders_equity, total_debt,
		       operating_cashflow
		FROM valuecheck.financial_statements
		WHERE symbol = $1 AND report_date BETWEEN $2 AND $3
		ORDER BY report_date ASC
	`

	rows, err := r.db.Query(ctx, query, symbol, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("query financials %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []contracts.FinancialRecord
	for rows.Next() {
		var (
			rec    contracts.FinancialRecord
			values [9]*float64
		)
		if err := rows.Scan(&rec.Symbol, &rec.ReportDate,
			&values[0], &values[1], &values[2], &values[3], &values[4],
			&values[5], &values[6], &values[7], &values[8],
		); err != nil {
			return nil, fmt.Errorf("scan financials %s: %w", symbol, err)
		}
		rec.ReportDate = contracts.Day(rec.ReportDate)
		rec.TotalOutstandingShares = fromNull(values[0])
		rec.EPS = fromNull(values[1])
		rec.CashAndShortTermInvestments = fromNull(values[2])
		rec.PPENet = fromNull(values[3])
		rec.TotalAssets = fromNull(values[4])
		rec.TotalLiabilities = fromNull(values[5])
		rec.TotalShareholdersEquity = fromNull(values[6])
		rec.TotalDebt = fromNull(values[7])
		rec.OperatingCashflow = fromNull(values[8])
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveBatch upserts records in one transaction
func (r *FinancialRepository) SaveBatch(ctx context.Context, records []contracts.FinancialRecord) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO valuecheck.financial_statements (
			symbol, report_date, total_outstanding_shares, eps, cash_and_short_term_investments,
			ppe_net, total_assets, total_liabilities, total_shareholders_equity, total_debt,
			operating_cashflow
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol, report_date) DO UPDATE SET
			total_outstanding_shares = EXCLUDED.total_outstanding_shares,
			eps = EXCLUDED.eps,
			cash_and_short_term_investments = EXCLUDED.cash_and_short_term_investments,
			ppe_net = EXCLUDED.ppe_net,
			total_assets = EXCLUDED.total_assets,
			total_liabilities = EXCLUDED.total_liabilities,
			total_shareholders_equity = EXCLUDED.total_shareholders_equity,
			total_debt = EXCLUDED.total_debt,
			operating_cashflow = EXCLUDED.operating_cashflow,
			updated_at = now()
	`

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, rec := range records {
			if _, err := tx.Exec(ctx, query,
				rec.Symbol, contracts.Day(rec.ReportDate),
				toNull(rec.TotalOutstandingShares), toNull(rec.EPS), toNull(rec.CashAndShortTermInvestments),
				toNull(rec.PPENet), toNull(rec.TotalAssets), toNull(rec.TotalLiabilities),
				toNull(rec.TotalShareholdersEquity), toNull(rec.TotalDebt), toNull(rec.OperatingCashflow),
			); err != nil {
				return fmt.Errorf("save financials %s %s: %w", rec.Symbol, rec.ReportDate.Format(contracts.DateLayout), err)
			}
		}
		return nil
	})
}

// PriceRepository reads and writes valuecheck.daily_prices
// ⭐ SSOT: 가격 데이터 저장소는 여기서만
type PriceRepository struct {
	db DB
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// GetByRange retrieves prices for symbol within r
func (r *PriceRepository) GetByRange(ctx context.Context, symbol string, rng contracts.DateRange) (contracts.PriceSeries, error) {
	query := `
		SELECT trade_date, high_price, low_price, close_price
		FROM valuecheck.daily_prices
		WHERE symbol = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date ASC
	`
	return r.query(ctx, symbol, query, symbol, rng.Start, rng.End)
}

// GetAll retrieves every stored price for symbol
func (r *PriceRepository) GetAll(ctx context.Context, symbol string) (contracts.PriceSeries, error) {
	query := `
		SELECT trade_date, high_price, low_price, close_price
		FROM valuecheck.daily_prices
		WHERE symbol = $1
		ORDER BY trade_date ASC
	`
	return r.query(ctx, symbol, query, symbol)
}

func (r *PriceRepository) query(ctx context.Context, symbol, query string, args ...any) (contracts.PriceSeries, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices %s: %w", symbol, err)
	}
	defer rows.Close()

	var points []contracts.PricePoint
	for rows.Next() {
		var (
			date             time.Time
			high, low, close *float64
		)
		if err := rows.Scan(&date, &high, &low, &close); err != nil {
			return nil, fmt.Errorf("scan prices %s: %w", symbol, err)
		}
		points = append(points, contracts.PricePoint{
			Date:  date,
			High:  fromNull(high),
			Low:   fromNull(low),
			Close: fromNull(close),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contracts.NewPriceSeries(points), nil
}

// SaveBatch upserts points in one transaction
func (r *PriceRepository) SaveBatch(ctx context.Context, symbol string, points contracts.PriceSeries) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO valuecheck.daily_prices (symbol, trade_date, high_price, low_price, close_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price
	`

	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, p := range points {
			if _, err := tx.Exec(ctx, query,
				symbol, contracts.Day(p.Date), toNull(p.High), toNull(p.Low), toNull(p.Close),
			); err != nil {
				return fmt.Errorf("save price %s %s: %w", symbol, p.Date.Format(contracts.DateLayout), err)
			}
		}
		return nil
	})
}

// Symbols lists every symbol with stored statements or prices
func Symbols(ctx context.Context, db DB) ([]string, error) {
	query := `
		SELECT symbol FROM valuecheck.financial_statements
		UNION
		SELECT symbol FROM valuecheck.daily_prices
		ORDER BY symbol
	`

	rows, err := db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		out = append(out, symbol)
	}
	return out, rows.Err()
}

func inTx(ctx context.Context, db DB, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// NULL <-> NaN
func toNull(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func fromNull(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
