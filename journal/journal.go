package journal

import (
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

// EquitySnapshot is the account marked to market at one tick.
type EquitySnapshot struct {
	Seq         uint64
	Time        time.Time
	Balance     decimal.Decimal
	MarketValue decimal.Decimal
	Equity      decimal.Decimal
	ProfitLoss  decimal.Decimal
}

// Journal is an append-only audit sink. It never feeds state back into the
// engine.
type Journal interface {
	RecordTransaction(broker.Transaction) error
	RecordOrder(broker.Order) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordTransaction(broker.Transaction) error { return nil }
func (Nop) RecordOrder(broker.Order) error             { return nil }
func (Nop) RecordEquity(EquitySnapshot) error          { return nil }
func (Nop) Close() error                               { return nil }

// Memory keeps records in slices. Orders are recorded on every status
// change, so Orders holds one entry per transition.
type Memory struct {
	mu           sync.Mutex
	transactions []broker.Transaction
	orders       []broker.Order
	equity       []EquitySnapshot
	closed       bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordTransaction(tx broker.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, tx)
	return nil
}

func (m *Memory) RecordOrder(o broker.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	return nil
}

func (m *Memory) RecordEquity(e EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equity = append(m.equity, e)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Transactions() []broker.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]broker.Transaction(nil), m.transactions...)
}

func (m *Memory) Orders() []broker.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]broker.Order(nil), m.orders...)
}

func (m *Memory) Equity() []EquitySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EquitySnapshot(nil), m.equity...)
}

func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
