// Package ratios holds the valuation formulas used by the screener.
// ⭐ SSOT: 모든 재무 비율 계산은 이 패키지에서만
//
// Every function divides safely: an exactly-zero denominator yields 0,
// never NaN or Inf. Callers that must distinguish a zero denominator
// check it before calling.
package ratios

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned by the vector variants when inputs are empty or differ in length
var ErrShapeMismatch = errors.New("ratio inputs have mismatched or zero length")

// Factors are the two approximation constants in the formulas
type Factors struct {
	// EPSPayout scales net income to approximate earnings after preferred dividends
	EPSPayout float64 `json:"eps_payout" yaml:"eps_payout"`
	// PPELand is the share of net PP&E counted as land or investment property
	PPELand float64 `json:"ppe_land" yaml:"ppe_land"`
}

// DefaultFactors returns the standard approximation factors
func DefaultFactors() Factors {
	return Factors{EPSPayout: 0.9, PPELand: 0.5}
}

func div(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// DebtToEquity = (short-term debt + long-term debt) / total equity
func DebtToEquity(shortTermDebt, longTermDebt, totalEquity float64) float64 {
	return div(shortTermDebt+longTermDebt, totalEquity)
}

// PositiveOperatingCashflow reports cf > 0
func PositiveOperatingCashflow(cf float64) bool {
	return cf > 0
}

// EstimatedEPS = net income * payout / shares
func EstimatedEPS(netIncome, shares, payout float64) float64 {
	return div(netIncome*payout, shares)
}

// PriceToEarnings = buy price / estimated EPS
func PriceToEarnings(netIncome, shares, buyPrice, payout float64) float64 {
	return div(buyPrice, EstimatedEPS(netIncome, shares, payout))
}

// MarketCap = buy price * shares
func MarketCap(buyPrice, shares float64) float64 {
	return buyPrice * shares
}

// CNAVPerShare = (cash + land share of PP&E - total liabilities) / shares
func CNAVPerShare(cash, ppeNet, totalLiabilities, shares, landFactor float64) float64 {
	return div(cash+ppeNet*landFactor-totalLiabilities, shares)
}

// NAVPerShare = (total assets - total liabilities) / shares
func NAVPerShare(totalAssets, totalLiabilities, shares float64) float64 {
	return div(totalAssets-totalLiabilities, shares)
}

// ROI = (NAV - CNAV) / CNAV
func ROI(nav, cnav float64) float64 {
	return div(nav-cnav, cnav)
}

// checkShape validates that all vectors share one non-zero length
func checkShape(vs ...[]float64) (int, error) {
	n := len(vs[0])
	if n == 0 {
		return 0, fmt.Errorf("empty input: %w", ErrShapeMismatch)
	}
	for i, v := range vs[1:] {
		if len(v) != n {
			return 0, fmt.Errorf("argument %d has length %d, want %d: %w", i+2, len(v), n, ErrShapeMismatch)
		}
	}
	return n, nil
}

// DebtToEquityVec is the element-wise form of DebtToEquity
func DebtToEquityVec(shortTermDebt, longTermDebt, totalEquity []float64) ([]float64, error) {
	n, err := checkShape(shortTermDebt, longTermDebt, totalEquity)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = DebtToEquity(shortTermDebt[i], longTermDebt[i], totalEquity[i])
	}
	return out, nil
}

// PositiveOperatingCashflowVec is the element-wise form of PositiveOperatingCashflow
func PositiveOperatingCashflowVec(cf []float64) ([]bool, error) {
	n, err := checkShape(cf)
	if err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i := range out {
		out[i] = PositiveOperatingCashflow(cf[i])
	}
	return out, nil
}

// PriceToEarningsVec is the element-wise form of PriceToEarnings
func PriceToEarningsVec(netIncome, shares, buyPrice []float64, payout float64) ([]float64, error) {
	n, err := checkShape(netIncome, shares, buyPrice)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = PriceToEarnings(netIncome[i], shares[i], buyPrice[i], payout)
	}
	return out, nil
}

// MarketCapVec is the element-wise form of MarketCap
func MarketCapVec(buyPrice, shares []float64) ([]float64, error) {
	n, err := checkShape(buyPrice, shares)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = MarketCap(buyPrice[i], shares[i])
	}
	return out, nil
}

// CNAVPerShareVec is the element-wise form of CNAVPerShare
func CNAVPerShareVec(cash, ppeNet, totalLiabilities, shares []float64, landFactor float64) ([]float64, error) {
	n, err := checkShape(cash, ppeNet, totalLiabilities, shares)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = CNAVPerShare(cash[i], ppeNet[i], totalLiabilities[i], shares[i], landFactor)
	}
	return out, nil
}

// NAVPerShareVec is the element-wise form of NAVPerShare
func NAVPerShareVec(totalAssets, totalLiabilities, shares []float64) ([]float64, error) {
	n, err := checkShape(totalAssets, totalLiabilities, shares)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = NAVPerShare(totalAssets[i], totalLiabilities[i], shares[i])
	}
	return out, nil
}

// ROIVec is the element-wise form of ROI
func ROIVec(nav, cnav []float64) ([]float64, error) {
	n, err := checkShape(nav, cnav)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = ROI(nav[i], cnav[i])
	}
	return out, nil
}
