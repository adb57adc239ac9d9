package journal

import (
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

var (
	t0 = time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	v := dec(s)
	return &v
}

func sampleTransactions() []broker.Transaction {
	return []broker.Transaction{
		{ID: "01TX0000000000000000000001", Kind: broker.TxDeposit, Amount: dec("1000"), Time: t0},
		{ID: "01TX0000000000000000000002", Kind: broker.TxBuy, Symbol: "AAPL", Quantity: dec("5"), Price: dec("150"), Amount: dec("750"), OrderID: "01ORDER00000000000000000001", Time: t1},
	}
}

func sampleOrder() broker.Order {
	return broker.Order{
		ID:        "01ORDER00000000000000000002",
		Symbol:    "AAPL",
		Side:      broker.SideSell,
		Quantity:  dec("2"),
		StopLoss:  decPtr("140"),
		Status:    broker.OrderPending,
		CreatedAt: t0,
	}
}
