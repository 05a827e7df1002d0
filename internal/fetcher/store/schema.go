// Package store persists statements and daily prices in PostgreSQL and
// serves them as a read-through fetcher in front of an upstream source.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repositories use
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// schema is applied by Migrate; every statement is idempotent
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS valuecheck`,
	`CREATE TABLE IF NOT EXISTS valuecheck.financial_statements (
		symbol                          TEXT NOT NULL,
		report_date                     DATE NOT NULL,
		total_outstanding_shares        DOUBLE PRECISION,
		eps                             DOUBLE PRECISION,
		cash_and_short_term_investments DOUBLE PRECISION,
		ppe_net                         DOUBLE PRECISION,
		total_assets                    DOUBLE PRECISION,
		total_liabilities               DOUBLE PRECISION,
		total_shareholders_equity       DOUBLE PRECISION,
		total_debt                      DOUBLE PRECISION,
		operating_cashflow              DOUBLE PRECISION,
		updated_at                      TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (symbol, report_date)
	)`,
	`CREATE TABLE IF NOT EXISTS valuecheck.daily_prices (
		symbol     TEXT NOT NULL,
		trade_date DATE NOT NULL,
		high_price DOUBLE PRECISION,
		low_price  DOUBLE PRECISION,
		close_price DOUBLE PRECISION,
		PRIMARY KEY (symbol, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS valuecheck.coverage (
		symbol     TEXT NOT NULL,
		dataset    TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date   DATE NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (symbol, dataset)
	)`,
}

// Migrate creates the schema and tables when missing
func Migrate(ctx context.Context, db DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
