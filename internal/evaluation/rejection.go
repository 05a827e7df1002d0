package evaluation

import (
	"errors"
	"fmt"

	"github.com/wonny/valuecheck/internal/ratios"
)

// Kind classifies why a company was not evaluated
type Kind string

const (
	KindShapeMismatch               Kind = "shape_mismatch"
	KindNoDataInRange               Kind = "no_data_in_range"
	KindNoPriceData                 Kind = "no_price_data"
	KindNoPriceAtEvaluationDate     Kind = "no_price_at_evaluation_date"
	KindStaleOrMissingFinancials    Kind = "stale_or_missing_financials"
	KindIncompleteFinancials        Kind = "incomplete_financials"
	KindDivideByZeroShares          Kind = "divide_by_zero_shares"
	KindDivideByZeroEps             Kind = "divide_by_zero_eps"
	KindDivideByZeroEquity          Kind = "divide_by_zero_equity"
	KindInsufficientPriceHistory    Kind = "insufficient_price_history"
	KindInsufficientCashflowHistory Kind = "insufficient_cashflow_history"
	KindFetchFailed                 Kind = "fetch_failed"
)

// AllKinds lists every rejection kind in reporting order
var AllKinds = []Kind{
	KindNoDataInRange,
	KindNoPriceData,
	KindNoPriceAtEvaluationDate,
	KindStaleOrMissingFinancials,
	KindIncompleteFinancials,
	KindDivideByZeroShares,
	KindDivideByZeroEps,
	KindDivideByZeroEquity,
	KindInsufficientPriceHistory,
	KindInsufficientCashflowHistory,
	KindShapeMismatch,
	KindFetchFailed,
}

// Rejection is the per-company skip signal. It is recoverable: the
// company is left out and the run continues.
type Rejection struct {
	Symbol string
	Kind   Kind
	Detail string
	Err    error // underlying cause, if any
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("%s: %s", r.Symbol, r.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", r.Symbol, r.Kind, r.Detail)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func reject(symbol string, kind Kind, format string, args ...interface{}) *Rejection {
	return &Rejection{Symbol: symbol, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// AsRejection extracts a *Rejection from err
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// KindOf classifies err, returning "" for errors that are not per-company rejections
func KindOf(err error) Kind {
	if r, ok := AsRejection(err); ok {
		return r.Kind
	}
	if errors.Is(err, ratios.ErrShapeMismatch) {
		return KindShapeMismatch
	}
	return ""
}
