package contracts

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// ErrInvalidRange is returned when a DateRange ends before it starts
var ErrInvalidRange = errors.New("invalid date range: end before start")

// ErrNoDataInRange is returned by fetchers when nothing intersects the requested range
var ErrNoDataInRange = errors.New("no data in range")

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// Day normalizes t to UTC midnight
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DateRange is an inclusive calendar date range
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a normalized range and rejects end < start
func NewDateRange(start, end time.Time) (DateRange, error) {
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.End.Before(r.Start) {
		return DateRange{}, fmt.Errorf("%s..%s: %w", r.Start.Format(DateLayout), r.End.Format(DateLayout), ErrInvalidRange)
	}
	return r, nil
}

// Contains reports whether d falls inside the range (inclusive)
func (r DateRange) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Covers reports whether other lies entirely inside r
func (r DateRange) Covers(other DateRange) bool {
	return r.Contains(other.Start) && r.Contains(other.End)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// FinancialRecord is one company's annual statement snapshot
// ⭐ SSOT: 재무 데이터 표준 레코드 (fetcher → pipeline)
// Missing values are NaN. Records are never mutated after fetch.
type FinancialRecord struct {
	Symbol                      string    `json:"symbol"`
	ReportDate                  time.Time `json:"report_date"`
	TotalOutstandingShares      float64   `json:"total_outstanding_shares"`
	EPS                         float64   `json:"eps"`
	CashAndShortTermInvestments float64   `json:"cash_and_short_term_investments"`
	PPENet                      float64   `json:"ppe_net"`
	TotalAssets                 float64   `json:"total_assets"`
	TotalLiabilities            float64   `json:"total_liabilities"`
	TotalShareholdersEquity     float64   `json:"total_shareholders_equity"`
	TotalDebt                   float64   `json:"total_debt"`
	OperatingCashflow           float64   `json:"operating_cashflow"`
}

// NewFinancialRecord returns a record with every numeric field set to NaN
func NewFinancialRecord(symbol string, reportDate time.Time) FinancialRecord {
	nan := math.NaN()
	return FinancialRecord{
		Symbol:                      symbol,
		ReportDate:                  Day(reportDate),
		TotalOutstandingShares:      nan,
		EPS:                         nan,
		CashAndShortTermInvestments: nan,
		PPENet:                      nan,
		TotalAssets:                 nan,
		TotalLiabilities:            nan,
		TotalShareholdersEquity:     nan,
		TotalDebt:                   nan,
		OperatingCashflow:           nan,
	}
}

// Fields returns the numeric fields keyed by their column name
func (f FinancialRecord) Fields() []NamedValue {
	return []NamedValue{
		{"total_outstanding_shares", f.TotalOutstandingShares},
		{"eps", f.EPS},
		{"cash_and_short_term_investments", f.CashAndShortTermInvestments},
		{"ppe_net", f.PPENet},
		{"total_assets", f.TotalAssets},
		{"total_liabilities", f.TotalLiabilities},
		{"total_shareholders_equity", f.TotalShareholdersEquity},
		{"total_debt", f.TotalDebt},
		{"operating_cashflow", f.OperatingCashflow},
	}
}

// MissingFields lists the names of NaN fields
func (f FinancialRecord) MissingFields() []string {
	var missing []string
	for _, nv := range f.Fields() {
		if math.IsNaN(nv.Value) {
			missing = append(missing, nv.Name)
		}
	}
	return missing
}

// NamedValue pairs a column name with its value
type NamedValue struct {
	Name  string
	Value float64
}

// SortFinancials orders records chronologically (in place)
func SortFinancials(records []FinancialRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ReportDate.Before(records[j].ReportDate)
	})
}

// PricePoint is one trading day
type PricePoint struct {
	Date  time.Time `json:"date"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"` // NaN when the source has no close
}

// PriceSeries is a daily price table sorted ascending by date; gaps are valid
type PriceSeries []PricePoint

// NewPriceSeries copies, normalizes and sorts points
func NewPriceSeries(points []PricePoint) PriceSeries {
	s := make(PriceSeries, len(points))
	for i, p := range points {
		p.Date = Day(p.Date)
		s[i] = p
	}
	sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
	return s
}

// Len returns the number of trading days
func (s PriceSeries) Len() int { return len(s) }

// Empty reports whether the series has no rows
func (s PriceSeries) Empty() bool { return len(s) == 0 }

// Restrict returns the rows inside r
func (s PriceSeries) Restrict(r DateRange) PriceSeries {
	lo := sort.Search(len(s), func(i int) bool { return !s[i].Date.Before(r.Start) })
	hi := sort.Search(len(s), func(i int) bool { return s[i].Date.After(r.End) })
	if lo >= hi {
		return PriceSeries{}
	}
	return s[lo:hi]
}

// At returns the row for date d
func (s PriceSeries) At(d time.Time) (PricePoint, bool) {
	d = Day(d)
	i := sort.Search(len(s), func(i int) bool { return !s[i].Date.Before(d) })
	if i < len(s) && s[i].Date.Equal(d) {
		return s[i], true
	}
	return PricePoint{}, false
}

// OnOrBefore returns the last row dated on or before d
func (s PriceSeries) OnOrBefore(d time.Time) (PricePoint, bool) {
	d = Day(d)
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(d) })
	if i == 0 {
		return PricePoint{}, false
	}
	return s[i-1], true
}

// After returns rows strictly after d
func (s PriceSeries) After(d time.Time) PriceSeries {
	d = Day(d)
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(d) })
	return s[i:]
}

// Until returns rows on or before d
func (s PriceSeries) Until(d time.Time) PriceSeries {
	d = Day(d)
	i := sort.Search(len(s), func(i int) bool { return s[i].Date.After(d) })
	return s[:i]
}

// MaxHigh returns the highest High; false on an empty series
func (s PriceSeries) MaxHigh() (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	max := s[0].High
	for _, p := range s[1:] {
		if p.High > max {
			max = p.High
		}
	}
	return max, true
}

// Last returns the final row
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// Span returns the date range covered by the series
func (s PriceSeries) Span() (DateRange, bool) {
	if len(s) == 0 {
		return DateRange{}, false
	}
	return DateRange{Start: s[0].Date, End: s[len(s)-1].Date}, true
}
