package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/wonny/valuecheck/internal/contracts"
)

// Datasets tracked in valuecheck.coverage
const (
	DatasetFinancials = "financials"
	DatasetPrices     = "prices"
)

// CoverageRepository records the date span each symbol's dataset was loaded
// from upstream for. Stored rows alone cannot tell a gap from a quiet period.
type CoverageRepository struct {
	db DB
}

// NewCoverageRepository creates a new coverage repository
func NewCoverageRepository(db DB) *CoverageRepository {
	return &CoverageRepository{db: db}
}

// Get returns the loaded span; ok is false when nothing was loaded yet
func (r *CoverageRepository) Get(ctx context.Context, symbol, dataset string) (contracts.DateRange, bool, error) {
	query := `
		SELECT start_date, end_date
		FROM valuecheck.coverage
		WHERE symbol = $1 AND dataset = $2
	`

	var start, end time.Time
	err := r.db.QueryRow(ctx, query, symbol, dataset).Scan(&start, &end)
	if errors.Is(err, pgx.ErrNoRows) {
		return contracts.DateRange{}, false, nil
	}
	if err != nil {
		return contracts.DateRange{}, false, fmt.Errorf("query coverage %s %s: %w", symbol, dataset, err)
	}
	return contracts.DateRange{Start: contracts.Day(start), End: contracts.Day(end)}, true, nil
}

// Covers reports whether rng lies inside the loaded span
func (r *CoverageRepository) Covers(ctx context.Context, symbol, dataset string, rng contracts.DateRange) (bool, error) {
	loaded, ok, err := r.Get(ctx, symbol, dataset)
	if err != nil || !ok {
		return false, err
	}
	return loaded.Covers(rng), nil
}

// Extend merges rng into the loaded span. A span that neither overlaps nor
// touches the stored one replaces it, so the row is always one unbroken span.
func (r *CoverageRepository) Extend(ctx context.Context, symbol, dataset string, rng contracts.DateRange) error {
	query := `
		INSERT INTO valuecheck.coverage AS c (symbol, dataset, start_date, end_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol, dataset) DO UPDATE SET
			start_date = CASE
				WHEN EXCLUDED.start_date <= c.end_date + 1 AND EXCLUDED.end_date + 1 >= c.start_date
				THEN LEAST(c.start_date, EXCLUDED.start_date)
				ELSE EXCLUDED.start_date
			END,
			end_date = CASE
				WHEN EXCLUDED.start_date <= c.end_date + 1 AND EXCLUDED.end_date + 1 >= c.start_date
				THEN GREATEST(c.end_date, EXCLUDED.end_date)
				ELSE EXCLUDED.end_date
			END,
			updated_at = now()
	`

	if _, err := r.db.Exec(ctx, query, symbol, dataset, rng.Start, rng.End); err != nil {
		return fmt.Errorf("save coverage %s %s: %w", symbol, dataset, err)
	}
	return nil
}
