package risk

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

const (
	CodeNotionalTooHigh   = "NOTIONAL_TOO_HIGH"
	CodeTooManyOpenOrders = "TOO_MANY_OPEN_ORDERS"
	CodePositionTooLarge  = "POSITION_TOO_LARGE"
	CodeRiskTooHigh       = "RISK_TOO_HIGH"
	CodeRRTooLow          = "RR_TOO_LOW"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	PlannedRisk    decimal.Decimal
	PlannedRiskPct decimal.Decimal
	PlannedRR      decimal.Decimal
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Err is nil for an allowed decision, otherwise an ErrValidation listing
// every violation.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	msgs := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		msgs[i] = v.Code + ": " + v.Msg
	}
	return fmt.Errorf("%w: risk policy: %s", broker.ErrValidation, strings.Join(msgs, "; "))
}

// Evaluate checks intent against every enabled limit of p and reports all
// violations, not just the first.
func Evaluate(p Policy, intent Intent, acct AccountSnapshot) Decision {
	d := Decision{Allowed: true}

	if intent.StopLoss != nil {
		d.PlannedRisk = PlannedRisk(intent.Quantity, intent.Price, *intent.StopLoss)
		d.PlannedRiskPct, _ = RiskPct(d.PlannedRisk, acct.Equity)
		if intent.TakeProfit != nil {
			d.PlannedRR = RR(intent.Price, *intent.StopLoss, *intent.TakeProfit)
		}
	}

	if p.MaxOrderNotional.IsPositive() && intent.Notional().GreaterThan(p.MaxOrderNotional) {
		d.add(CodeNotionalTooHigh,
			fmt.Sprintf("order notional %s exceeds max %s", intent.Notional().StringFixed(2), p.MaxOrderNotional))
	}

	conditional := intent.StopLoss != nil || intent.TakeProfit != nil
	if p.MaxOpenOrders > 0 && conditional && acct.OpenOrders >= p.MaxOpenOrders {
		d.add(CodeTooManyOpenOrders,
			fmt.Sprintf("open orders %d >= max %d", acct.OpenOrders, p.MaxOpenOrders))
	}

	if p.MaxPositionPct.IsPositive() && intent.Side == broker.SideBuy {
		after := acct.Holding.Add(intent.Quantity).Mul(intent.Price)
		pct, ok := RiskPct(after, acct.Equity)
		if !ok || pct.GreaterThan(p.MaxPositionPct) {
			d.add(CodePositionTooLarge,
				fmt.Sprintf("%s position %s would be %s%% of equity, max %s%%",
					intent.Symbol, after.StringFixed(2), pct.Shift(2).StringFixed(2), p.MaxPositionPct.Shift(2).StringFixed(2)))
		}
	}

	if intent.StopLoss != nil && p.MaxRiskPct.IsPositive() {
		pct, ok := RiskPct(d.PlannedRisk, acct.Equity)
		if !ok || pct.GreaterThan(p.MaxRiskPct) {
			d.add(CodeRiskTooHigh,
				fmt.Sprintf("planned risk %s%% exceeds max %s%%",
					pct.Shift(2).StringFixed(2), p.MaxRiskPct.Shift(2).StringFixed(2)))
		}
	}

	if intent.StopLoss != nil && intent.TakeProfit != nil && p.MinRR.IsPositive() && d.PlannedRR.LessThan(p.MinRR) {
		d.add(CodeRRTooLow,
			fmt.Sprintf("RR %s below minimum %s", d.PlannedRR.StringFixed(2), p.MinRR))
	}

	return d
}
