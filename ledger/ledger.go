package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/shopspring/decimal"
)

// PriceLookup resolves a symbol to its current price. The market feed and
// its snapshots both satisfy it.
type PriceLookup interface {
	Price(symbol string) (decimal.Decimal, error)
}

// Ledger is the single authority over one account's cash, positions and
// transaction history. Every operation holds the ledger lock for its whole
// duration, so a fill and a withdrawal can never interleave.
type Ledger struct {
	mu sync.Mutex

	balance   decimal.Decimal
	positions map[string]broker.Position
	txs       []broker.Transaction
	deposited decimal.Decimal
	withdrawn decimal.Decimal
	realized  decimal.Decimal
	version   uint64

	ids     *id.Generator
	now     func() time.Time
	journal journal.Journal
	log     *slog.Logger
}

type Option func(*Ledger)

// WithJournal forwards every committed transaction to j.
func WithJournal(j journal.Journal) Option {
	return func(l *Ledger) { l.journal = j }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func WithIDs(g *id.Generator) Option {
	return func(l *Ledger) { l.ids = g }
}

func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		positions: make(map[string]broker.Position),
		now:       time.Now,
		journal:   journal.Nop{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.ids == nil {
		l.ids = id.NewGenerator()
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

func (l *Ledger) Deposit(amount decimal.Decimal) (broker.Transaction, error) {
	if !amount.IsPositive() {
		return broker.Transaction{}, fmt.Errorf("%w: deposit amount must be positive, got %s", broker.ErrValidation, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = l.balance.Add(amount)
	l.deposited = l.deposited.Add(amount)
	return l.commitLocked(broker.Transaction{Kind: broker.TxDeposit, Amount: amount}), nil
}

func (l *Ledger) Withdraw(amount decimal.Decimal) (broker.Transaction, error) {
	if !amount.IsPositive() {
		return broker.Transaction{}, fmt.Errorf("%w: withdrawal amount must be positive, got %s", broker.ErrValidation, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount.GreaterThan(l.balance) {
		return broker.Transaction{}, fmt.Errorf("%w: withdraw %s, available %s", broker.ErrInsufficientFunds, amount, l.balance)
	}
	l.balance = l.balance.Sub(amount)
	l.withdrawn = l.withdrawn.Add(amount)
	return l.commitLocked(broker.Transaction{Kind: broker.TxWithdraw, Amount: amount}), nil
}

// ExecuteBuy fills a buy of quantity symbol at price.
func (l *Ledger) ExecuteBuy(symbol string, quantity, price decimal.Decimal) (broker.Transaction, error) {
	return l.ExecuteBuyFor("", symbol, quantity, price)
}

// ExecuteBuyFor is ExecuteBuy with the resulting transaction tagged with
// the order that caused it.
func (l *Ledger) ExecuteBuyFor(orderID, symbol string, quantity, price decimal.Decimal) (broker.Transaction, error) {
	if err := validateFill(symbol, quantity, price); err != nil {
		return broker.Transaction{}, err
	}
	cost := price.Mul(quantity)

	l.mu.Lock()
	defer l.mu.Unlock()

	if cost.GreaterThan(l.balance) {
		return broker.Transaction{}, fmt.Errorf("%w: buy %s %s @ %s costs %s, available %s",
			broker.ErrInsufficientFunds, quantity, symbol, price, cost, l.balance)
	}

	pos := l.positions[symbol]
	pos.Symbol = symbol
	pos.AvgCost = weightedAvg(pos.AvgCost, pos.Quantity, price, quantity)
	pos.Quantity = pos.Quantity.Add(quantity)
	l.positions[symbol] = pos
	l.balance = l.balance.Sub(cost)

	return l.commitLocked(broker.Transaction{
		Kind:     broker.TxBuy,
		Symbol:   symbol,
		Quantity: quantity,
		Price:    price,
		Amount:   cost,
		OrderID:  orderID,
	}), nil
}

// ExecuteSell fills a sell of quantity symbol at price. A position that
// reaches zero is removed.
func (l *Ledger) ExecuteSell(symbol string, quantity, price decimal.Decimal) (broker.Transaction, error) {
	return l.ExecuteSellFor("", symbol, quantity, price)
}

func (l *Ledger) ExecuteSellFor(orderID, symbol string, quantity, price decimal.Decimal) (broker.Transaction, error) {
	if err := validateFill(symbol, quantity, price); err != nil {
		return broker.Transaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok || pos.Quantity.LessThan(quantity) {
		return broker.Transaction{}, fmt.Errorf("%w: sell %s %s, held %s",
			broker.ErrInsufficientHoldings, quantity, symbol, pos.Quantity)
	}

	proceeds := price.Mul(quantity)
	l.realized = l.realized.Add(price.Sub(pos.AvgCost).Mul(quantity))
	l.balance = l.balance.Add(proceeds)

	pos.Quantity = pos.Quantity.Sub(quantity)
	if pos.Quantity.IsZero() {
		delete(l.positions, symbol)
	} else {
		l.positions[symbol] = pos
	}

	return l.commitLocked(broker.Transaction{
		Kind:     broker.TxSell,
		Symbol:   symbol,
		Quantity: quantity,
		Price:    price,
		Amount:   proceeds,
		OrderID:  orderID,
	}), nil
}

// Snapshot copies balance, positions and totals under one lock, so every
// field reflects the same committed version.
func (l *Ledger) Snapshot() broker.Portfolio {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := broker.Portfolio{
		Version:        l.version,
		Balance:        l.balance,
		Holdings:       make(map[string]decimal.Decimal, len(l.positions)),
		Positions:      make(map[string]broker.Position, len(l.positions)),
		RealizedPL:     l.realized,
		NetContributed: l.deposited.Sub(l.withdrawn),
	}
	for sym, pos := range l.positions {
		p.Holdings[sym] = pos.Quantity
		p.Positions[sym] = pos
	}
	return p
}

func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Holding returns the held quantity of symbol, zero if none.
func (l *Ledger) Holding(symbol string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positions[symbol].Quantity
}

func (l *Ledger) RealizedPL() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.realized
}

// Transactions returns a copy of the history, oldest first.
func (l *Ledger) Transactions() []broker.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]broker.Transaction(nil), l.txs...)
}

// PortfolioValue is balance plus every position marked at prices.
func (l *Ledger) PortfolioValue(prices PriceLookup) (decimal.Decimal, error) {
	p := l.Snapshot()
	mv, err := MarketValue(p, prices)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return p.Balance.Add(mv), nil
}

// ProfitOrLoss is PortfolioValue less net contributed capital.
func (l *Ledger) ProfitOrLoss(prices PriceLookup) (decimal.Decimal, error) {
	p := l.Snapshot()
	mv, err := MarketValue(p, prices)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return p.Balance.Add(mv).Sub(p.NetContributed), nil
}

// UnrealizedPL marks open positions against their average cost.
func (l *Ledger) UnrealizedPL(prices PriceLookup) (decimal.Decimal, error) {
	p := l.Snapshot()
	total := decimal.Zero
	for sym, pos := range p.Positions {
		px, err := prices.Price(sym)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("value %s: %w", sym, err)
		}
		total = total.Add(px.Sub(pos.AvgCost).Mul(pos.Quantity))
	}
	return total, nil
}

// MarketValue sums quantity * price over the portfolio's holdings.
func MarketValue(p broker.Portfolio, prices PriceLookup) (decimal.Decimal, error) {
	total := decimal.Zero
	for sym, qty := range p.Holdings {
		px, err := prices.Price(sym)
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("value %s: %w", sym, err)
		}
		total = total.Add(px.Mul(qty))
	}
	return total, nil
}

func (l *Ledger) commitLocked(tx broker.Transaction) broker.Transaction {
	tx.ID = l.ids.New()
	tx.Time = l.now()
	l.txs = append(l.txs, tx)
	l.version++

	if err := l.journal.RecordTransaction(tx); err != nil {
		l.log.Warn("journal transaction",
			slog.String("tx_id", tx.ID),
			slog.String("kind", string(tx.Kind)),
			slog.String("error", err.Error()),
		)
	}
	return tx
}

func validateFill(symbol string, quantity, price decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", broker.ErrValidation)
	}
	if !quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", broker.ErrValidation, quantity)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", broker.ErrValidation, price)
	}
	return nil
}

func weightedAvg(avg, qty, price, add decimal.Decimal) decimal.Decimal {
	if qty.IsZero() {
		return price
	}
	return avg.Mul(qty).Add(price.Mul(add)).Div(qty.Add(add))
}
