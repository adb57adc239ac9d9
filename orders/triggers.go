package orders

import (
	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

const (
	ReasonMarket     = "MARKET"
	ReasonStopLoss   = "STOP_LOSS"
	ReasonTakeProfit = "TAKE_PROFIT"
	ReasonCancelled  = "CANCELLED"
)

// A sell protects a long position: stop below, target above. A buy mirrors
// it for covering: stop above, target below.
func hitStopLoss(o *broker.Order, price decimal.Decimal) bool {
	if o.StopLoss == nil {
		return false
	}
	if o.Side == broker.SideSell {
		return price.LessThanOrEqual(*o.StopLoss)
	}
	return price.GreaterThanOrEqual(*o.StopLoss)
}

func hitTakeProfit(o *broker.Order, price decimal.Decimal) bool {
	if o.TakeProfit == nil {
		return false
	}
	if o.Side == broker.SideSell {
		return price.GreaterThanOrEqual(*o.TakeProfit)
	}
	return price.LessThanOrEqual(*o.TakeProfit)
}

// evaluate returns the trigger reason for price, if any. Stop-loss is
// checked first so it wins when a gap satisfies both.
func evaluate(o *broker.Order, price decimal.Decimal) (string, bool) {
	switch {
	case hitStopLoss(o, price):
		return ReasonStopLoss, true
	case hitTakeProfit(o, price):
		return ReasonTakeProfit, true
	}
	return "", false
}
