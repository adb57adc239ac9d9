package market

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

const (
	DefaultVolatility      = 0.01
	DefaultSpikeProb       = 0.01
	DefaultSpikeVolatility = 0.05
	DefaultMaxMove         = 0.5
	DefaultHistory         = 1000
	PricePlaces            = 4
)

// MinPrice is the floor a simulated price is clamped to.
var MinPrice = decimal.New(1, -PricePlaces)

// Params seeds one symbol. Drift and Volatility are per-tick fractions:
// a drift of 0.001 moves the price up 0.1% per tick on average.
type Params struct {
	Price      decimal.Decimal
	Drift      float64
	Volatility float64
}

type symbolState struct {
	Params
	hist history
}

// Feed owns the simulated price of every registered symbol. Tick and
// SetPrice are the only writers; everything else reads a copy.
type Feed struct {
	// tickMu serializes ticks so a tick and its subscriber pass finish
	// before the next tick starts.
	tickMu sync.Mutex

	mu      sync.RWMutex
	symbols map[string]*symbolState
	order   []string
	seq     uint64
	last    time.Time
	subs    []Subscriber

	rng       *rand.Rand // guarded by tickMu
	now       func() time.Time
	histLen   int
	spikeProb float64
	spikeVol  float64
	maxMove   float64
	log       *slog.Logger
}

type Option func(*Feed)

// WithSeed makes the random walk reproducible.
func WithSeed(seed int64) Option {
	return func(f *Feed) { f.rng = rand.New(rand.NewSource(seed)) }
}

func WithRand(r *rand.Rand) Option {
	return func(f *Feed) { f.rng = r }
}

func WithClock(now func() time.Time) Option {
	return func(f *Feed) { f.now = now }
}

// WithHistory bounds the per-symbol price history. Zero disables it.
func WithHistory(n int) Option {
	return func(f *Feed) { f.histLen = n }
}

// WithSpikes sets the chance of an extra shock per tick and its size.
func WithSpikes(prob, volatility float64) Option {
	return func(f *Feed) {
		f.spikeProb = prob
		f.spikeVol = volatility
	}
}

// WithMaxMove caps the absolute fractional change of one tick.
func WithMaxMove(m float64) Option {
	return func(f *Feed) { f.maxMove = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) { f.log = l }
}

func NewFeed(opts ...Option) *Feed {
	f := &Feed{
		symbols:   make(map[string]*symbolState),
		now:       time.Now,
		histLen:   DefaultHistory,
		spikeProb: DefaultSpikeProb,
		spikeVol:  DefaultSpikeVolatility,
		maxMove:   DefaultMaxMove,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if f.log == nil {
		f.log = slog.Default()
	}
	return f
}

// RegisterSymbol seeds a symbol with the default volatility and no drift.
func (f *Feed) RegisterSymbol(symbol string, initial decimal.Decimal) error {
	return f.RegisterSymbolParams(symbol, Params{Price: initial, Volatility: DefaultVolatility})
}

func (f *Feed) RegisterSymbolParams(symbol string, p Params) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol is required", broker.ErrValidation)
	}
	if !p.Price.IsPositive() {
		return fmt.Errorf("%w: initial price for %q must be positive, got %s", broker.ErrValidation, symbol, p.Price)
	}
	if p.Volatility < 0 || !finite(p.Volatility) || !finite(p.Drift) {
		return fmt.Errorf("%w: invalid simulation parameters for %q", broker.ErrValidation, symbol)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.symbols[symbol]; ok {
		return fmt.Errorf("%w: symbol %q already registered", broker.ErrValidation, symbol)
	}
	st := &symbolState{Params: p, hist: history{max: f.histLen}}
	st.hist.push(PricePoint{Time: f.now(), Price: p.Price})
	f.symbols[symbol] = st
	f.order = append(f.order, symbol)
	return nil
}

// Price returns the current price of symbol.
func (f *Feed) Price(symbol string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, ok := f.symbols[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", broker.ErrUnknownSymbol, symbol)
	}
	return st.Price, nil
}

// Symbols returns symbols in registration order.
func (f *Feed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.order...)
}

// Snapshot copies the current state without ticking.
func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshotLocked()
}

// History returns up to n most recent price points for symbol, oldest first.
// n <= 0 returns everything retained.
func (f *Feed) History(symbol string, n int) ([]PricePoint, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st, ok := f.symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", broker.ErrUnknownSymbol, symbol)
	}
	return st.hist.last(n), nil
}

// Subscribe adds s to the tick fan-out. Subscribers are called in the
// order they subscribed.
func (f *Feed) Subscribe(s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, s)
}

// Tick advances every symbol one random-walk step and notifies subscribers
// with the new snapshot before returning it.
func (f *Feed) Tick() Snapshot {
	f.tickMu.Lock()
	defer f.tickMu.Unlock()

	f.mu.Lock()
	now := f.now()
	for _, sym := range f.order {
		st := f.symbols[sym]
		st.Price = f.step(st.Params)
		st.hist.push(PricePoint{Time: now, Price: st.Price})
	}
	f.seq++
	f.last = now
	snap := f.snapshotLocked()
	subs := append([]Subscriber(nil), f.subs...)
	f.mu.Unlock()

	f.notify(subs, snap)
	return snap
}

// SetPrice moves one symbol to an exact price and publishes the result as a
// tick. Scripted simulations and tests use it to drive triggers
// deterministically.
func (f *Feed) SetPrice(symbol string, price decimal.Decimal) (Snapshot, error) {
	if !price.IsPositive() {
		return Snapshot{}, fmt.Errorf("%w: price for %q must be positive, got %s", broker.ErrValidation, symbol, price)
	}

	f.tickMu.Lock()
	defer f.tickMu.Unlock()

	f.mu.Lock()
	st, ok := f.symbols[symbol]
	if !ok {
		f.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %q", broker.ErrUnknownSymbol, symbol)
	}
	now := f.now()
	st.Price = price
	st.hist.push(PricePoint{Time: now, Price: price})
	f.seq++
	f.last = now
	snap := f.snapshotLocked()
	subs := append([]Subscriber(nil), f.subs...)
	f.mu.Unlock()

	f.notify(subs, snap)
	return snap, nil
}

// Run ticks every interval until ctx is done.
func (f *Feed) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive, got %s", broker.ErrValidation, interval)
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	f.log.Info("market feed started", slog.Duration("interval", interval), slog.Int("symbols", len(f.Symbols())))
	for {
		select {
		case <-ctx.Done():
			f.log.Info("market feed stopped")
			return nil
		case <-t.C:
			f.Tick()
		}
	}
}

// step computes the next price: price * (1 + drift + noise), with an
// occasional spike, the move capped at maxMove and the result floored at
// MinPrice.
func (f *Feed) step(p Params) decimal.Decimal {
	move := p.Drift + f.rng.NormFloat64()*p.Volatility
	if f.spikeProb > 0 && f.rng.Float64() < f.spikeProb {
		move += f.rng.NormFloat64() * f.spikeVol
	}
	if !finite(move) {
		move = p.Drift
	}
	if f.maxMove > 0 {
		move = math.Max(-f.maxMove, math.Min(f.maxMove, move))
	}

	next := p.Price.Mul(decimal.NewFromFloat(1 + move)).Round(PricePlaces)
	if next.LessThan(MinPrice) {
		next = MinPrice
	}
	return next
}

func (f *Feed) snapshotLocked() Snapshot {
	prices := make(map[string]decimal.Decimal, len(f.symbols))
	for sym, st := range f.symbols {
		prices[sym] = st.Price
	}
	return Snapshot{Seq: f.seq, Time: f.last, Prices: prices}
}

func (f *Feed) notify(subs []Subscriber, snap Snapshot) {
	for _, s := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					f.log.Error("tick subscriber panicked",
						slog.Uint64("seq", snap.Seq),
						slog.Any("panic", r),
					)
				}
			}()
			s.OnTick(snap)
		}()
	}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
