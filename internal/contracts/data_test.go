package contracts

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func series(points ...PricePoint) PriceSeries {
	return NewPriceSeries(points)
}

func TestNewDateRange(t *testing.T) {
	r, err := NewDateRange(day("2020-01-01"), day("2020-12-31"))
	require.NoError(t, err)
	assert.True(t, r.Contains(day("2020-06-15")))
	assert.True(t, r.Contains(day("2020-12-31")))
	assert.False(t, r.Contains(day("2021-01-01")))

	_, err = NewDateRange(day("2020-02-01"), day("2020-01-01"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	// same-day range is valid
	_, err = NewDateRange(day("2020-02-01"), day("2020-02-01"))
	assert.NoError(t, err)
}

func TestDateRange_Covers(t *testing.T) {
	outer := DateRange{Start: day("2015-01-01"), End: day("2019-06-03")}

	assert.True(t, outer.Covers(outer))
	assert.True(t, outer.Covers(DateRange{Start: day("2016-01-01"), End: day("2019-01-01")}))
	assert.False(t, outer.Covers(DateRange{Start: day("2016-01-01"), End: day("2021-06-01")}))
	assert.False(t, outer.Covers(DateRange{Start: day("2014-12-31"), End: day("2019-01-01")}))
}

func TestDay_NormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	d := Day(time.Date(2021, 3, 4, 23, 15, 0, 0, loc))
	assert.Equal(t, time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), d)
}

func TestFinancialRecord_MissingFields(t *testing.T) {
	rec := NewFinancialRecord("ACME", day("2020-03-01"))
	assert.Len(t, rec.MissingFields(), 9)

	rec.EPS = 1.5
	rec.TotalDebt = 0
	missing := rec.MissingFields()
	assert.Len(t, missing, 7)
	assert.NotContains(t, missing, "eps")
	assert.NotContains(t, missing, "total_debt")
	assert.Contains(t, missing, "operating_cashflow")
	assert.True(t, math.IsNaN(rec.TotalAssets))
}

func TestPriceSeries_Lookups(t *testing.T) {
	s := series(
		PricePoint{Date: day("2020-01-06"), High: 12, Low: 10},
		PricePoint{Date: day("2020-01-02"), High: 10, Low: 9},
		PricePoint{Date: day("2020-01-03"), High: 11, Low: 9},
	)

	require.Equal(t, 3, s.Len())
	assert.Equal(t, day("2020-01-02"), s[0].Date, "series must be sorted")

	p, ok := s.At(day("2020-01-03"))
	assert.True(t, ok)
	assert.Equal(t, 11.0, p.High)

	_, ok = s.At(day("2020-01-04"))
	assert.False(t, ok)

	p, ok = s.OnOrBefore(day("2020-01-05"))
	assert.True(t, ok)
	assert.Equal(t, day("2020-01-03"), p.Date)

	_, ok = s.OnOrBefore(day("2020-01-01"))
	assert.False(t, ok)

	after := s.After(day("2020-01-03"))
	require.Len(t, after, 1)
	assert.Equal(t, day("2020-01-06"), after[0].Date)

	max, ok := s.MaxHigh()
	assert.True(t, ok)
	assert.Equal(t, 12.0, max)

	last, ok := s.Last()
	assert.True(t, ok)
	assert.Equal(t, 12.0, last.High)
}

func TestPriceSeries_Restrict(t *testing.T) {
	s := series(
		PricePoint{Date: day("2020-01-02"), High: 1},
		PricePoint{Date: day("2020-01-03"), High: 2},
		PricePoint{Date: day("2020-01-06"), High: 3},
		PricePoint{Date: day("2020-01-07"), High: 4},
	)

	tests := []struct {
		name  string
		start string
		end   string
		want  int
	}{
		{"inner", "2020-01-03", "2020-01-06", 2},
		{"gap boundaries", "2020-01-04", "2020-01-05", 0},
		{"covering", "2019-12-01", "2020-02-01", 4},
		{"before", "2019-01-01", "2019-02-01", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewDateRange(day(tt.start), day(tt.end))
			require.NoError(t, err)
			assert.Len(t, s.Restrict(r), tt.want)
		})
	}
}

func TestPriceSeries_Empty(t *testing.T) {
	var s PriceSeries
	assert.True(t, s.Empty())
	_, ok := s.MaxHigh()
	assert.False(t, ok)
	_, ok = s.Last()
	assert.False(t, ok)
	_, ok = s.Span()
	assert.False(t, ok)
	assert.Empty(t, s.After(day("2020-01-01")))
}
