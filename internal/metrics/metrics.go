package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNonFinite is returned by New when any value is NaN or Inf
var ErrNonFinite = errors.New("metrics contain non-finite value")

// Metrics is the valuation snapshot of one company at one evaluation date
// ⭐ SSOT: 평가 결과 레코드 (생성 후 불변)
type Metrics struct {
	symbol            string
	evaluationDate    time.Time
	entryPrice        float64
	cnav1             float64
	nav               float64
	peRatio           float64
	debtToEquityRatio float64
	potentialROI      float64
	marketCap         float64
	cashFlows         []float64
}

// Values carries the inputs for New
type Values struct {
	Symbol            string    `json:"symbol"`
	EvaluationDate    time.Time `json:"evaluation_date"`
	EntryPrice        float64   `json:"entry_price"`
	CNAV1             float64   `json:"cnav1"`
	NAV               float64   `json:"nav"`
	PERatio           float64   `json:"pe_ratio"`
	DebtToEquityRatio float64   `json:"debt_to_equity_ratio"`
	PotentialROI      float64   `json:"potential_roi"`
	MarketCap         float64   `json:"market_cap"`
	CashFlows         []float64 `json:"cash_flows"` // oldest first
}

// New validates v and returns an immutable Metrics
func New(v Values) (Metrics, error) {
	named := []struct {
		name  string
		value float64
	}{
		{"entry_price", v.EntryPrice},
		{"cnav1", v.CNAV1},
		{"nav", v.NAV},
		{"pe_ratio", v.PERatio},
		{"debt_to_equity_ratio", v.DebtToEquityRatio},
		{"potential_roi", v.PotentialROI},
		{"market_cap", v.MarketCap},
	}
	for _, n := range named {
		if !finite(n.value) {
			return Metrics{}, fmt.Errorf("%s=%v: %w", n.name, n.value, ErrNonFinite)
		}
	}
	for i, cf := range v.CashFlows {
		if !finite(cf) {
			return Metrics{}, fmt.Errorf("cash_flows[%d]=%v: %w", i, cf, ErrNonFinite)
		}
	}

	cf := make([]float64, len(v.CashFlows))
	copy(cf, v.CashFlows)

	return Metrics{
		symbol:            v.Symbol,
		evaluationDate:    v.EvaluationDate,
		entryPrice:        v.EntryPrice,
		cnav1:             v.CNAV1,
		nav:               v.NAV,
		peRatio:           v.PERatio,
		debtToEquityRatio: v.DebtToEquityRatio,
		potentialROI:      v.PotentialROI,
		marketCap:         v.MarketCap,
		cashFlows:         cf,
	}, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (m Metrics) Symbol() string { return m.symbol }
func (m Metrics) EvaluationDate() time.Time { return m.evaluationDate }
func (m Metrics) EntryPrice() float64 { return m.entryPrice }
func (m Metrics) CNAV1() float64 { return m.cnav1 }
func (m Metrics) NAV() float64 { return m.nav }
func (m Metrics) PERatio() float64 { return m.peRatio }
func (m Metrics) DebtToEquityRatio() float64 { return m.debtToEquityRatio }
func (m Metrics) PotentialROI() float64 { return m.potentialROI }
func (m Metrics) MarketCap() float64 { return m.marketCap }

// CashFlows returns a copy of the trailing operating cashflows, oldest first
func (m Metrics) CashFlows() []float64 {
	out := make([]float64, len(m.cashFlows))
	copy(out, m.cashFlows)
	return out
}

// Values returns the record as plain values
func (m Metrics) Values() Values {
	return Values{
		Symbol:            m.symbol,
		EvaluationDate:    m.evaluationDate,
		EntryPrice:        m.entryPrice,
		CNAV1:             m.cnav1,
		NAV:               m.nav,
		PERatio:           m.peRatio,
		DebtToEquityRatio: m.debtToEquityRatio,
		PotentialROI:      m.potentialROI,
		MarketCap:         m.marketCap,
		CashFlows:         m.CashFlows(),
	}
}

// MarshalJSON encodes the record through Values
func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Values())
}

// IsInvestable applies the threshold rule. All comparisons are strict.
func (m Metrics) IsInvestable(t Thresholds) bool {
	return len(m.Failures(t)) == 0
}

// Failures lists every criterion the record does not meet
func (m Metrics) Failures(t Thresholds) []Criterion {
	var failed []Criterion

	if t.RequireCNAVBelowNAV && !(m.cnav1 < m.nav) {
		failed = append(failed, CriterionCNAVBelowNAV)
	}
	if !(m.peRatio < t.MaxPERatio) {
		failed = append(failed, CriterionPERatio)
	}
	for _, cf := range m.cashFlows {
		if !(cf > 0) {
			failed = append(failed, CriterionPositiveCashflow)
			break
		}
	}
	if !(m.debtToEquityRatio < t.MaxDebtToEquity) {
		failed = append(failed, CriterionDebtToEquity)
	}
	if !(m.potentialROI > t.MinPotentialROI) {
		failed = append(failed, CriterionPotentialROI)
	}
	if !(m.marketCap > t.MinMarketCap) {
		failed = append(failed, CriterionMarketCap)
	}

	return failed
}
