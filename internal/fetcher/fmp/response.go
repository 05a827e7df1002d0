package fmp

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/wonny/valuecheck/internal/contracts"
)

type statementResponse struct {
	Symbol     string         `json:"symbol"`
	Financials []statementRow `json:"financials"`
}

type historicalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date  string `json:"date"`
		High  number `json:"high"`
		Low   number `json:"low"`
		Close number `json:"close"`
	} `json:"historical"`
}

// statementRow keeps every column of one statement; FMP names them in prose
type statementRow struct {
	date   string
	values map[string]number
}

func (r *statementRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.values = make(map[string]number, len(raw))
	for k, v := range raw {
		if k == "date" {
			if err := json.Unmarshal(v, &r.date); err != nil {
				return err
			}
			continue
		}
		var n number
		if err := n.UnmarshalJSON(v); err != nil {
			return err
		}
		r.values[k] = n
	}
	return nil
}

func (r statementRow) get(column string) float64 {
	if v, ok := r.values[column]; ok {
		return float64(v)
	}
	return math.NaN()
}

// apply copies the columns statement contributes into rec
func (r statementRow) apply(statement string, rec *contracts.FinancialRecord) {
	switch statement {
	case balanceSheet:
		rec.CashAndShortTermInvestments = r.get("Cash and short-term investments")
		rec.PPENet = r.get("Property, Plant & Equipment Net")
		rec.TotalAssets = r.get("Total assets")
		rec.TotalLiabilities = r.get("Total liabilities")
		rec.TotalShareholdersEquity = r.get("Total shareholders equity")
		rec.TotalDebt = r.get("Total debt")
	case incomeStatement:
		rec.TotalOutstandingShares = r.get("Weighted Average Shs Out")
		rec.EPS = r.get("EPS")
	case cashFlow:
		rec.OperatingCashflow = r.get("Operating Cash Flow")
	}
}

// number accepts a JSON number or a numeric string; anything else is NaN
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*n = number(math.NaN())
		return nil
	}
	*n = number(v)
	return nil
}
