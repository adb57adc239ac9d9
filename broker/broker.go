package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Broker is the in-process facade callers use to trade against the
// simulated market and read the account back.
type Broker interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	GetPortfolio(ctx context.Context) (Portfolio, error)
	CalculateProfitLoss(ctx context.Context) (decimal.Decimal, error)
	ListOpenOrders(ctx context.Context) ([]Order, error)
	ListTransactions(ctx context.Context) ([]Transaction, error)
}

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrValidation, s)
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderTriggered OrderStatus = "TRIGGERED"
	OrderFilled    OrderStatus = "FILLED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderFailed    OrderStatus = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderCancelled || s == OrderFailed
}

// OrderRequest is what a caller hands to PlaceOrder. With neither StopLoss
// nor TakeProfit set the order fills immediately at the current price.
type OrderRequest struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

// Conditional reports whether the request carries a trigger.
func (r OrderRequest) Conditional() bool {
	return r.StopLoss != nil || r.TakeProfit != nil
}

// Order is a read-only view of an order's state.
type Order struct {
	ID         string
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
	Status     OrderStatus

	CreatedAt   time.Time
	TriggeredAt time.Time
	ClosedAt    time.Time

	FillPrice decimal.Decimal
	Reason    string // MARKET, STOP_LOSS, TAKE_PROFIT, CANCELLED
	Error     string // set when Status is FAILED
}

type TransactionKind string

const (
	TxDeposit  TransactionKind = "DEPOSIT"
	TxWithdraw TransactionKind = "WITHDRAW"
	TxBuy      TransactionKind = "BUY"
	TxSell     TransactionKind = "SELL"
)

// Transaction is an immutable ledger record. Symbol, Quantity and Price are
// zero for cash movements.
type Transaction struct {
	ID       string
	Kind     TransactionKind
	Symbol   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Amount   decimal.Decimal
	OrderID  string
	Time     time.Time
}

type Position struct {
	Symbol   string
	Quantity decimal.Decimal
	AvgCost  decimal.Decimal
}

// Portfolio is a snapshot taken from a single committed ledger version.
type Portfolio struct {
	Version    uint64
	Balance    decimal.Decimal
	Holdings   map[string]decimal.Decimal
	Positions  map[string]Position
	RealizedPL decimal.Decimal

	// NetContributed is deposits minus withdrawals, the baseline profit
	// and loss is measured against.
	NetContributed decimal.Decimal
}
