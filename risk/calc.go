package risk

import "github.com/shopspring/decimal"

// PlannedRisk is the cash lost if quantity filled at entry is closed at stop.
func PlannedRisk(quantity, entry, stop decimal.Decimal) decimal.Decimal {
	return entry.Sub(stop).Abs().Mul(quantity)
}

// RR is reward over risk for a trade from entry with the given stop and
// target. Zero when the stop sits on the entry.
func RR(entry, stop, takeProfit decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(stop).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	return takeProfit.Sub(entry).Abs().Div(risk)
}

// RiskPct is plannedRisk as a fraction of equity. ok is false when equity
// is not positive, in which case any risk is too much.
func RiskPct(plannedRisk, equity decimal.Decimal) (pct decimal.Decimal, ok bool) {
	if !equity.IsPositive() {
		return decimal.Zero, false
	}
	return plannedRisk.Div(equity), true
}

// SizeForRisk returns the whole number of shares that loses riskPct of
// equity if price moves from entry to stop.
func SizeForRisk(equity, riskPct, entry, stop decimal.Decimal) decimal.Decimal {
	perShare := entry.Sub(stop).Abs()
	if perShare.IsZero() || !equity.IsPositive() || !riskPct.IsPositive() {
		return decimal.Zero
	}
	return equity.Mul(riskPct).Div(perShare).Floor()
}
