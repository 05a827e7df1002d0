package metrics

// Criterion names one clause of the investable rule
type Criterion string

const (
	CriterionCNAVBelowNAV     Criterion = "cnav_below_nav"
	CriterionPERatio          Criterion = "pe_ratio"
	CriterionPositiveCashflow Criterion = "positive_cashflow"
	CriterionDebtToEquity     Criterion = "debt_to_equity"
	CriterionPotentialROI     Criterion = "potential_roi"
	CriterionMarketCap        Criterion = "market_cap"
)

// Thresholds are the limits of the investable rule
type Thresholds struct {
	MaxPERatio      float64 `json:"max_pe_ratio" yaml:"max_pe_ratio"`
	MaxDebtToEquity float64 `json:"max_debt_to_equity" yaml:"max_debt_to_equity"`
	MinPotentialROI float64 `json:"min_potential_roi" yaml:"min_potential_roi"`
	MinMarketCap    float64 `json:"min_market_cap" yaml:"min_market_cap"`

	// RequireCNAVBelowNAV disables the CNAV < NAV clause when false
	RequireCNAVBelowNAV bool `json:"require_cnav_below_nav" yaml:"require_cnav_below_nav"`
}

// DefaultThresholds returns the standard screening limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxPERatio:          10,
		MaxDebtToEquity:     1,
		MinPotentialROI:     1,
		MinMarketCap:        1e9,
		RequireCNAVBelowNAV: true,
	}
}
