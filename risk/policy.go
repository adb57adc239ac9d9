package risk

import (
	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

// Policy holds pre-trade limits. A zero value disables that limit, so the
// zero Policy allows everything.
type Policy struct {
	// Exposure limits
	MaxOrderNotional decimal.Decimal // price * quantity of one order
	MaxOpenOrders    int             // pending conditional orders
	MaxPositionPct   decimal.Decimal // 0.25: one symbol may reach 25% of equity

	// Trade constraints
	MaxRiskPct decimal.Decimal // 0.01: loss to the stop at most 1% of equity
	MinRR      decimal.Decimal // 1.5
}

// Enabled reports whether any limit is set.
func (p Policy) Enabled() bool {
	return p.MaxOrderNotional.IsPositive() ||
		p.MaxOpenOrders > 0 ||
		p.MaxPositionPct.IsPositive() ||
		p.MaxRiskPct.IsPositive() ||
		p.MinRR.IsPositive()
}

// Intent is an order about to be placed, priced at the current market.
type Intent struct {
	Symbol   string
	Side     broker.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal

	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

// Notional is price * quantity.
func (i Intent) Notional() decimal.Decimal {
	return i.Price.Mul(i.Quantity)
}

type AccountSnapshot struct {
	Balance decimal.Decimal
	Equity  decimal.Decimal

	// Quantity of the intent's symbol already held.
	Holding decimal.Decimal

	OpenOrders int
}
