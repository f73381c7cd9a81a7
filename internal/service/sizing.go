package service

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// PositionSize returns how many units to buy so that hitting stop loses
// riskPct percent of balance.
func PositionSize(balance, riskPct, entry, stop decimal.Decimal) (decimal.Decimal, error) {
	if !balance.IsPositive() {
		return decimal.Zero, domain.NewValidationError("balance", "must be positive")
	}
	if !riskPct.IsPositive() || riskPct.GreaterThan(hundred) {
		return decimal.Zero, domain.NewValidationError("risk_pct", "must be in (0, 100]")
	}
	perUnit := entry.Sub(stop).Abs()
	if perUnit.IsZero() {
		return decimal.Zero, domain.NewValidationError("stop", "must differ from entry")
	}
	risk := balance.Mul(riskPct).Div(hundred)
	return risk.Div(perUnit), nil
}
