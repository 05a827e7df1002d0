package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/valuecheck/internal/contracts"
)

func d(s string) time.Time {
	t, _ := contracts.ParseDay(s)
	return t
}

func rng(t *testing.T, start, end string) contracts.DateRange {
	r, err := contracts.NewDateRange(d(start), d(end))
	require.NoError(t, err)
	return r
}

func TestStore_FinancialData(t *testing.T) {
	s := New()
	s.PutFinancials("ACME",
		contracts.NewFinancialRecord("ACME", d("2019-03-01")),
		contracts.NewFinancialRecord("ACME", d("2017-03-01")),
		contracts.NewFinancialRecord("ACME", d("2018-03-01")),
	)

	ctx := context.Background()
	recs, err := s.FinancialData(ctx, "ACME", rng(t, "2017-06-01", "2019-12-31"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, d("2018-03-01"), recs[0].ReportDate)
	assert.Equal(t, d("2019-03-01"), recs[1].ReportDate)

	_, err = s.FinancialData(ctx, "ACME", rng(t, "2020-01-01", "2020-12-31"))
	assert.ErrorIs(t, err, contracts.ErrNoDataInRange)

	_, err = s.FinancialData(ctx, "NOPE", rng(t, "2017-01-01", "2020-12-31"))
	assert.ErrorIs(t, err, contracts.ErrNoDataInRange)
}

func TestStore_StockData(t *testing.T) {
	s := New()
	s.PutPrices("ACME",
		contracts.PricePoint{Date: d("2020-01-02"), High: 10},
		contracts.PricePoint{Date: d("2020-01-03"), High: 11},
		contracts.PricePoint{Date: d("2020-02-03"), High: 12},
	)
	// replaces 2020-01-03
	s.PutPrices("ACME", contracts.PricePoint{Date: d("2020-01-03"), High: 15})

	ctx := context.Background()
	r := rng(t, "2020-01-01", "2020-01-31")

	restricted, err := s.StockData(ctx, "ACME", r, true)
	require.NoError(t, err)
	require.Len(t, restricted, 2)
	assert.Equal(t, 15.0, restricted[1].High)

	full, err := s.StockData(ctx, "ACME", r, false)
	require.NoError(t, err)
	assert.Len(t, full, 3)

	_, err = s.StockData(ctx, "ACME", rng(t, "2021-01-01", "2021-01-31"), true)
	assert.ErrorIs(t, err, contracts.ErrNoDataInRange)

	// unrestricted ignores the range
	full, err = s.StockData(ctx, "ACME", rng(t, "2021-01-01", "2021-01-31"), false)
	require.NoError(t, err)
	assert.Len(t, full, 3)

	none, err := s.StockData(ctx, "NOPE", r, false)
	require.NoError(t, err)
	assert.True(t, none.Empty())
}

func TestStore_Companies(t *testing.T) {
	s := New()
	s.PutPrices("ZZZ", contracts.PricePoint{Date: d("2020-01-02"), High: 1})
	s.PutFinancials("AAA", contracts.NewFinancialRecord("AAA", d("2020-01-01")))
	s.PutFinancials("ZZZ", contracts.NewFinancialRecord("ZZZ", d("2020-01-01")))
	s.AddCompanies("MMM", "AAA")

	got, err := s.Companies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "MMM", "ZZZ"}, got)
}

func TestStore_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FinancialData(ctx, "ACME", rng(t, "2020-01-01", "2020-12-31"))
	assert.ErrorIs(t, err, context.Canceled)
}
