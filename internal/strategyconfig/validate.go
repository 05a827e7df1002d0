package strategyconfig

import (
	"fmt"
	"math"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Dates ===
	if cfg.BuyDate == "" {
		return ValidationError{"buy_date", "required"}
	}
	buy, err := cfg.EvaluationDate()
	if err != nil {
		return ValidationError{"buy_date", "must be YYYY-MM-DD"}
	}
	sell, err := cfg.SellDateTime()
	if err != nil {
		return ValidationError{"sell_date", "must be YYYY-MM-DD"}
	}
	if !sell.IsZero() && !sell.After(buy) {
		return ValidationError{"sell_date", "must be after buy_date"}
	}

	// === Backtest ===
	if !(cfg.ReturnPercent > 0) || math.IsInf(cfg.ReturnPercent, 0) {
		return ValidationError{"return_percent", "must be > 0"}
	}
	if cfg.CashFlowsBack < 1 {
		return ValidationError{"cash_flows_back", "must be >= 1"}
	}

	// === Thresholds ===
	t := cfg.Thresholds
	for field, v := range map[string]float64{
		"thresholds.max_pe_ratio":       t.MaxPERatio,
		"thresholds.max_debt_to_equity": t.MaxDebtToEquity,
		"thresholds.min_potential_roi":  t.MinPotentialROI,
		"thresholds.min_market_cap":     t.MinMarketCap,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ValidationError{field, "must be finite"}
		}
	}

	// === Factors ===
	if p := cfg.Factors.EPSPayout; math.IsNaN(p) || p <= 0 || p > 1 {
		return ValidationError{"factors.eps_payout", "must be in range (0, 1]"}
	}
	if err := validatePctRange(cfg.Factors.PPELand, "factors.ppe_land"); err != nil {
		return err
	}

	// === Pipeline ===
	if cfg.Pipeline.PriceSearchDays < 0 {
		return ValidationError{"pipeline.price_search_days", "must be >= 0"}
	}
	if cfg.Pipeline.StatementMaxAgeDays < 1 {
		return ValidationError{"pipeline.statement_max_age_days", "must be >= 1"}
	}
	if cfg.Pipeline.PriceHistoryDays < cfg.Pipeline.PriceSearchDays {
		return ValidationError{"pipeline.price_history_days", "must be >= price_search_days"}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if cfg.ReturnPercent < 1 {
		warnings = append(warnings, Warning{
			Code:    "TARGET_BELOW_ENTRY",
			Message: "return_percent < 1: 매수가보다 낮은 목표가",
		})
	}

	if !cfg.Thresholds.RequireCNAVBelowNAV {
		warnings = append(warnings, Warning{
			Code:    "CNAV_CHECK_DISABLED",
			Message: "CNAV < NAV 조건 비활성화",
		})
	}

	if cfg.Thresholds.MaxPERatio > 25 {
		warnings = append(warnings, Warning{
			Code:    "LOOSE_PE",
			Message: "max_pe_ratio > 25: 가치주 기준으로 느슨함",
		})
	}

	if cfg.SellDate == "" {
		warnings = append(warnings, Warning{
			Code:    "OPEN_ENDED",
			Message: "sell_date 미지정: 가용한 모든 이후 가격 사용",
		})
	}

	return warnings
}

// validatePctRange는 비율 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if math.IsNaN(pct) || pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
