// Package engine wires the market feed, the ledger and the order monitor
// behind the broker.Broker facade.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/orders"
	"github.com/rustyeddy/papertrade/risk"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultEquityHistory bounds the in-memory equity curve.
const DefaultEquityHistory = 1000

var _ broker.Broker = (*Engine)(nil)

type Engine struct {
	feed    *market.Feed
	ledger  *ledger.Ledger
	monitor *orders.Monitor

	ids      *id.Generator
	policy   risk.Policy
	journal  journal.Journal
	listener orders.Listener
	now      func() time.Time
	log      *slog.Logger

	// placeMu keeps the risk check and the placement it allows together.
	placeMu sync.Mutex

	eqMu      sync.Mutex
	equity    []journal.EquitySnapshot
	equityMax int

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

type Option func(*Engine)

// WithPolicy enables pre-trade risk checks.
func WithPolicy(p risk.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithJournal records order transitions and per-tick equity to j. Ledger
// transactions are journaled by the ledger's own option.
func WithJournal(j journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

func WithListener(l orders.Listener) Option {
	return func(e *Engine) { e.listener = l }
}

func WithIDs(g *id.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithEquityHistory(n int) Option {
	return func(e *Engine) { e.equityMax = n }
}

// New builds an engine over feed and l. It subscribes the order monitor to
// the feed first and the equity recorder second, so every equity point
// reflects the fills of its own tick.
func New(feed *market.Feed, l *ledger.Ledger, opts ...Option) *Engine {
	e := &Engine{
		feed:      feed,
		ledger:    l,
		journal:   journal.Nop{},
		now:       time.Now,
		equityMax: DefaultEquityHistory,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = id.NewGenerator()
	}
	if e.log == nil {
		e.log = slog.Default()
	}

	mopts := []orders.Option{
		orders.WithJournal(e.journal),
		orders.WithClock(e.now),
		orders.WithLogger(e.log),
	}
	if e.listener != nil {
		mopts = append(mopts, orders.WithListener(e.listener))
	}
	e.monitor = orders.NewMonitor(l, mopts...)

	feed.Subscribe(e.monitor)
	feed.Subscribe(market.SubscriberFunc(e.recordEquity))
	return e
}

func (e *Engine) Feed() *market.Feed       { return e.feed }
func (e *Engine) Ledger() *ledger.Ledger   { return e.ledger }
func (e *Engine) Monitor() *orders.Monitor { return e.monitor }

// PlaceOrder validates req and either fills it now at the current price or,
// when it carries a stop-loss or take-profit, leaves it PENDING with the
// monitor. It returns the order id in both cases.
func (e *Engine) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !req.Side.Valid() {
		return "", fmt.Errorf("%w: side must be BUY or SELL, got %q", broker.ErrValidation, req.Side)
	}
	if !req.Quantity.IsPositive() {
		return "", fmt.Errorf("%w: quantity must be positive, got %s", broker.ErrValidation, req.Quantity)
	}
	price, err := e.feed.Price(req.Symbol)
	if err != nil {
		return "", err
	}
	if err := validateThresholds(req.Side, price, req.StopLoss, req.TakeProfit); err != nil {
		return "", err
	}

	e.placeMu.Lock()
	defer e.placeMu.Unlock()

	if err := e.checkRisk(risk.Intent{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	}); err != nil {
		return "", err
	}

	o := broker.Order{
		ID:         e.ids.New(),
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		CreatedAt:  e.now(),
	}

	if !req.Conditional() {
		if err := e.fillNow(o, price); err != nil {
			return "", err
		}
		return o.ID, nil
	}

	if err := e.monitor.Submit(o); err != nil {
		return "", err
	}
	e.log.Info("conditional order placed",
		slog.String("order_id", o.ID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("quantity", o.Quantity.String()),
	)
	return o.ID, nil
}

// PlaceBracketOrder buys quantity of symbol now and protects it with a
// conditional sell of the same quantity. Thresholds are checked against the
// entry price before anything fills.
func (e *Engine) PlaceBracketOrder(ctx context.Context, symbol string, quantity decimal.Decimal, stopLoss, takeProfit *decimal.Decimal) (entryID, exitID string, err error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if stopLoss == nil && takeProfit == nil {
		return "", "", fmt.Errorf("%w: bracket needs a stop-loss or take-profit", broker.ErrValidation)
	}
	if !quantity.IsPositive() {
		return "", "", fmt.Errorf("%w: quantity must be positive, got %s", broker.ErrValidation, quantity)
	}
	price, err := e.feed.Price(symbol)
	if err != nil {
		return "", "", err
	}
	if err := validateThresholds(broker.SideSell, price, stopLoss, takeProfit); err != nil {
		return "", "", err
	}

	e.placeMu.Lock()
	defer e.placeMu.Unlock()

	if err := e.checkRisk(risk.Intent{
		Symbol:     symbol,
		Side:       broker.SideBuy,
		Quantity:   quantity,
		Price:      price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
	}); err != nil {
		return "", "", err
	}

	now := e.now()
	entry := broker.Order{
		ID:        e.ids.New(),
		Symbol:    symbol,
		Side:      broker.SideBuy,
		Quantity:  quantity,
		CreatedAt: now,
	}
	if err := e.fillNow(entry, price); err != nil {
		return "", "", err
	}

	exit := broker.Order{
		ID:         e.ids.New(),
		Symbol:     symbol,
		Side:       broker.SideSell,
		Quantity:   quantity,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		CreatedAt:  now,
	}
	if err := e.monitor.Submit(exit); err != nil {
		return entry.ID, "", fmt.Errorf("bracket exit: %w", err)
	}
	e.log.Info("bracket placed",
		slog.String("entry_id", entry.ID),
		slog.String("exit_id", exit.ID),
		slog.String("symbol", symbol),
		slog.String("price", price.String()),
	)
	return entry.ID, exit.ID, nil
}

func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o, err := e.monitor.Cancel(orderID)
	if err != nil {
		return err
	}
	e.log.Info("order cancelled",
		slog.String("order_id", o.ID),
		slog.String("symbol", o.Symbol),
	)
	return nil
}

func (e *Engine) GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}
	return e.feed.Price(symbol)
}

// GetPortfolio returns one committed ledger version.
func (e *Engine) GetPortfolio(ctx context.Context) (broker.Portfolio, error) {
	if err := ctx.Err(); err != nil {
		return broker.Portfolio{}, err
	}
	return e.ledger.Snapshot(), nil
}

// CalculateProfitLoss values the portfolio against a single feed snapshot
// and subtracts net contributed capital.
func (e *Engine) CalculateProfitLoss(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}
	return e.ledger.ProfitOrLoss(e.feed.Snapshot())
}

// PortfolioValue is balance plus holdings at the current feed snapshot.
func (e *Engine) PortfolioValue(ctx context.Context) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Decimal{}, err
	}
	return e.ledger.PortfolioValue(e.feed.Snapshot())
}

func (e *Engine) ListOpenOrders(ctx context.Context) ([]broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.monitor.Open(), nil
}

func (e *Engine) ListOrders(ctx context.Context) ([]broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.monitor.All(), nil
}

func (e *Engine) ListTransactions(ctx context.Context) ([]broker.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.ledger.Transactions(), nil
}

func (e *Engine) GetOrder(ctx context.Context, orderID string) (broker.Order, error) {
	if err := ctx.Err(); err != nil {
		return broker.Order{}, err
	}
	return e.monitor.Get(orderID)
}

// FailedFills lists triggered orders the ledger rejected.
func (e *Engine) FailedFills(ctx context.Context) ([]orders.FillFailure, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.monitor.Failures(), nil
}

func (e *Engine) Deposit(ctx context.Context, amount decimal.Decimal) (broker.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return broker.Transaction{}, err
	}
	return e.ledger.Deposit(amount)
}

func (e *Engine) Withdraw(ctx context.Context, amount decimal.Decimal) (broker.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return broker.Transaction{}, err
	}
	return e.ledger.Withdraw(amount)
}

// EquityHistory returns the recorded equity curve, oldest first.
func (e *Engine) EquityHistory() []journal.EquitySnapshot {
	e.eqMu.Lock()
	defer e.eqMu.Unlock()
	return append([]journal.EquitySnapshot(nil), e.equity...)
}

// Start runs the feed in the background until ctx is done or Stop is
// called.
func (e *Engine) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %s", broker.ErrValidation, interval)
	}

	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.group != nil {
		return fmt.Errorf("%w: engine already running", broker.ErrValidation)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.feed.Run(ctx, interval)
	})
	e.cancel = cancel
	e.group = g

	e.log.Info("engine started",
		slog.Duration("interval", interval),
		slog.Any("symbols", e.feed.Symbols()),
	)
	return nil
}

// Stop cancels the tick loop and waits for the tick in flight to finish.
// Stopping an engine that is not running is a no-op.
func (e *Engine) Stop() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.group == nil {
		return nil
	}

	e.cancel()
	err := e.group.Wait()
	e.group, e.cancel = nil, nil

	e.log.Info("engine stopped")
	return err
}

func (e *Engine) fillNow(o broker.Order, price decimal.Decimal) error {
	var err error
	if o.Side == broker.SideBuy {
		_, err = e.ledger.ExecuteBuyFor(o.ID, o.Symbol, o.Quantity, price)
	} else {
		_, err = e.ledger.ExecuteSellFor(o.ID, o.Symbol, o.Quantity, price)
	}
	if err != nil {
		return err
	}

	o.Status = broker.OrderFilled
	o.Reason = orders.ReasonMarket
	o.FillPrice = price
	o.ClosedAt = e.now()
	if err := e.monitor.Record(o); err != nil {
		return err
	}

	e.log.Info("market order filled",
		slog.String("order_id", o.ID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("quantity", o.Quantity.String()),
		slog.String("price", price.String()),
	)
	return nil
}

func (e *Engine) checkRisk(intent risk.Intent) error {
	if !e.policy.Enabled() {
		return nil
	}

	snap := e.feed.Snapshot()
	p := e.ledger.Snapshot()
	mv, err := ledger.MarketValue(p, snap)
	if err != nil {
		return err
	}
	d := risk.Evaluate(e.policy, intent, risk.AccountSnapshot{
		Balance:    p.Balance,
		Equity:     p.Balance.Add(mv),
		Holding:    p.Holdings[intent.Symbol],
		OpenOrders: len(e.monitor.Open()),
	})
	if !d.Allowed {
		e.log.Warn("order rejected by risk policy",
			slog.String("symbol", intent.Symbol),
			slog.String("side", string(intent.Side)),
			slog.Int("violations", len(d.Violations)),
		)
	}
	return d.Err()
}

// recordEquity runs after the monitor on every tick.
func (e *Engine) recordEquity(snap market.Snapshot) {
	p := e.ledger.Snapshot()
	mv, err := ledger.MarketValue(p, snap)
	if err != nil {
		e.log.Warn("equity snapshot", slog.Uint64("tick", snap.Seq), slog.String("error", err.Error()))
		return
	}
	equity := p.Balance.Add(mv)
	pt := journal.EquitySnapshot{
		Seq:         snap.Seq,
		Time:        snap.Time,
		Balance:     p.Balance,
		MarketValue: mv,
		Equity:      equity,
		ProfitLoss:  equity.Sub(p.NetContributed),
	}

	e.eqMu.Lock()
	e.equity = append(e.equity, pt)
	if e.equityMax > 0 && len(e.equity) > e.equityMax {
		e.equity = append(e.equity[:0:0], e.equity[len(e.equity)-e.equityMax:]...)
	}
	e.eqMu.Unlock()

	if err := e.journal.RecordEquity(pt); err != nil {
		e.log.Warn("journal equity", slog.Uint64("tick", snap.Seq), slog.String("error", err.Error()))
	}
}

// validateThresholds checks that each given threshold is positive and sits
// on the side of price that keeps it from firing immediately: for a sell,
// stop-loss below and take-profit above; for a buy, the reverse.
func validateThresholds(side broker.Side, price decimal.Decimal, sl, tp *decimal.Decimal) error {
	for name, v := range map[string]*decimal.Decimal{"stop-loss": sl, "take-profit": tp} {
		if v != nil && !v.IsPositive() {
			return fmt.Errorf("%w: %s must be positive, got %s", broker.ErrValidation, name, v)
		}
	}

	below, above := sl, tp
	if side == broker.SideBuy {
		below, above = tp, sl
	}
	if below != nil && !below.LessThan(price) {
		return fmt.Errorf("%w: %s %s must be below current price %s", broker.ErrValidation, thresholdName(side, true), below, price)
	}
	if above != nil && !above.GreaterThan(price) {
		return fmt.Errorf("%w: %s %s must be above current price %s", broker.ErrValidation, thresholdName(side, false), above, price)
	}
	return nil
}

func thresholdName(side broker.Side, below bool) string {
	if (side == broker.SideSell) == below {
		return "stop-loss"
	}
	return "take-profit"
}
