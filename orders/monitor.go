package orders

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/market"
	"github.com/shopspring/decimal"
)

// Filler commits fills. The ledger satisfies it.
type Filler interface {
	ExecuteBuyFor(orderID, symbol string, quantity, price decimal.Decimal) (broker.Transaction, error)
	ExecuteSellFor(orderID, symbol string, quantity, price decimal.Decimal) (broker.Transaction, error)
}

// Listener is told about the outcome of triggered orders. It is called
// after the monitor lock is released, so it may call back into the monitor.
type Listener interface {
	OnOrderFilled(o broker.Order)
	OnOrderFailed(o broker.Order, err error)
}

// FillFailure is the retained record of a triggered order the ledger
// rejected.
type FillFailure struct {
	OrderID  string
	Symbol   string
	Side     broker.Side
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Reason   string
	Err      error
	Time     time.Time
}

type order struct {
	broker.Order
	seq uint64
}

// Monitor holds conditional orders and fills them when a tick crosses
// their thresholds. A conditional order moves PENDING -> TRIGGERED ->
// FILLED (or FAILED); PENDING -> CANCELLED only by Cancel.
type Monitor struct {
	// evalMu keeps evaluation passes from overlapping.
	evalMu sync.Mutex

	mu       sync.Mutex
	orders   map[string]*order
	pending  map[string]*order
	seq      uint64
	failures []FillFailure

	filler   Filler
	journal  journal.Journal
	listener Listener
	now      func() time.Time
	log      *slog.Logger
}

type Option func(*Monitor)

func WithJournal(j journal.Journal) Option {
	return func(m *Monitor) { m.journal = j }
}

func WithListener(l Listener) Option {
	return func(m *Monitor) { m.listener = l }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

func NewMonitor(filler Filler, opts ...Option) *Monitor {
	m := &Monitor{
		orders:  make(map[string]*order),
		pending: make(map[string]*order),
		filler:  filler,
		journal: journal.Nop{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Submit registers a conditional order as PENDING.
func (m *Monitor) Submit(o broker.Order) error {
	if o.ID == "" {
		return fmt.Errorf("%w: order id is required", broker.ErrValidation)
	}
	if o.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", broker.ErrValidation)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("%w: invalid side %q", broker.ErrValidation, o.Side)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive, got %s", broker.ErrValidation, o.Quantity)
	}
	if o.StopLoss == nil && o.TakeProfit == nil {
		return fmt.Errorf("%w: conditional order needs a stop-loss or take-profit", broker.ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("%w: duplicate order id %q", broker.ErrValidation, o.ID)
	}
	o = clone(o)
	o.Status = broker.OrderPending
	if o.CreatedAt.IsZero() {
		o.CreatedAt = m.now()
	}
	m.seq++
	rec := &order{Order: o, seq: m.seq}
	m.orders[o.ID] = rec
	m.pending[o.ID] = rec
	m.recordLocked(rec)

	m.log.Debug("order pending",
		slog.String("order_id", o.ID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
	)
	return nil
}

// Record tracks an order that was settled without passing through the
// monitor, such as an immediate market fill, so it can be looked up later.
func (m *Monitor) Record(o broker.Order) error {
	if o.ID == "" {
		return fmt.Errorf("%w: order id is required", broker.ErrValidation)
	}
	if !o.Status.Terminal() {
		return fmt.Errorf("%w: only settled orders can be recorded, got %s", broker.ErrValidation, o.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("%w: duplicate order id %q", broker.ErrValidation, o.ID)
	}
	m.seq++
	rec := &order{Order: clone(o), seq: m.seq}
	m.orders[o.ID] = rec
	m.recordLocked(rec)
	return nil
}

// Cancel moves a PENDING order to CANCELLED. An order the tick loop has
// already triggered cannot be cancelled.
func (m *Monitor) Cancel(orderID string) (broker.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return broker.Order{}, fmt.Errorf("%w: %q", broker.ErrOrderNotFound, orderID)
	}
	if o.Status != broker.OrderPending {
		return broker.Order{}, fmt.Errorf("%w: order %q already processed (%s)", broker.ErrOrderNotFound, orderID, o.Status)
	}

	o.Status = broker.OrderCancelled
	o.Reason = ReasonCancelled
	o.ClosedAt = m.now()
	delete(m.pending, orderID)
	m.recordLocked(o)
	return clone(o.Order), nil
}

// Get returns the current state of an order.
func (m *Monitor) Get(orderID string) (broker.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return broker.Order{}, fmt.Errorf("%w: %q", broker.ErrOrderNotFound, orderID)
	}
	return clone(o.Order), nil
}

// Open returns PENDING and TRIGGERED orders in submission order.
func (m *Monitor) Open() []broker.Order {
	return m.list(func(o *order) bool { return !o.Status.Terminal() })
}

// All returns every order the monitor knows, in submission order.
func (m *Monitor) All() []broker.Order {
	return m.list(func(*order) bool { return true })
}

// Failures returns every rejected fill, oldest first.
func (m *Monitor) Failures() []FillFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FillFailure(nil), m.failures...)
}

type fillJob struct {
	id       string
	symbol   string
	side     broker.Side
	quantity decimal.Decimal
	price    decimal.Decimal
	reason   string
}

type outcome struct {
	order broker.Order
	err   error
}

// OnTick evaluates every PENDING order against snap and fills the ones it
// triggers at the snapshot price. All triggers for the tick are recorded
// before any fill commits, and the pass finishes before OnTick returns.
func (m *Monitor) OnTick(snap market.Snapshot) {
	m.evalMu.Lock()
	defer m.evalMu.Unlock()

	jobs := m.trigger(snap)
	if len(jobs) == 0 {
		return
	}

	outcomes := make([]outcome, 0, len(jobs))
	for _, job := range jobs {
		var err error
		if job.side == broker.SideBuy {
			_, err = m.filler.ExecuteBuyFor(job.id, job.symbol, job.quantity, job.price)
		} else {
			_, err = m.filler.ExecuteSellFor(job.id, job.symbol, job.quantity, job.price)
		}
		outcomes = append(outcomes, outcome{order: m.settle(job, err), err: err})
	}

	m.mu.Lock()
	listener := m.listener
	m.mu.Unlock()
	if listener == nil {
		return
	}
	for _, oc := range outcomes {
		if oc.err != nil {
			listener.OnOrderFailed(oc.order, oc.err)
		} else {
			listener.OnOrderFilled(oc.order)
		}
	}
}

// trigger marks every order crossed by snap as TRIGGERED and returns the
// fills to attempt, in submission order.
func (m *Monitor) trigger(snap market.Snapshot) []fillJob {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*order, 0, len(m.pending))
	for _, o := range m.pending {
		candidates = append(candidates, o)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })

	var jobs []fillJob
	now := m.now()
	for _, o := range candidates {
		price, ok := snap.Prices[o.Symbol]
		if !ok {
			continue
		}
		reason, hit := evaluate(&o.Order, price)
		if !hit {
			continue
		}

		o.Status = broker.OrderTriggered
		o.TriggeredAt = now
		o.Reason = reason
		o.FillPrice = price
		delete(m.pending, o.ID)
		m.recordLocked(o)

		m.log.Info("order triggered",
			slog.String("order_id", o.ID),
			slog.String("symbol", o.Symbol),
			slog.String("reason", reason),
			slog.String("price", price.String()),
			slog.Uint64("tick", snap.Seq),
		)
		jobs = append(jobs, fillJob{
			id:       o.ID,
			symbol:   o.Symbol,
			side:     o.Side,
			quantity: o.Quantity,
			price:    price,
			reason:   reason,
		})
	}
	return jobs
}

func (m *Monitor) settle(job fillJob, err error) broker.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	o := m.orders[job.id]
	o.ClosedAt = m.now()
	if err != nil {
		o.Status = broker.OrderFailed
		o.Error = err.Error()
		m.failures = append(m.failures, FillFailure{
			OrderID:  job.id,
			Symbol:   job.symbol,
			Side:     job.side,
			Quantity: job.quantity,
			Price:    job.price,
			Reason:   job.reason,
			Err:      err,
			Time:     o.ClosedAt,
		})
		m.log.Warn("triggered order failed to fill",
			slog.String("order_id", job.id),
			slog.String("symbol", job.symbol),
			slog.String("side", string(job.side)),
			slog.String("price", job.price.String()),
			slog.String("error", err.Error()),
		)
	} else {
		o.Status = broker.OrderFilled
		m.log.Info("order filled",
			slog.String("order_id", job.id),
			slog.String("symbol", job.symbol),
			slog.String("side", string(job.side)),
			slog.String("quantity", job.quantity.String()),
			slog.String("price", job.price.String()),
		)
	}
	m.recordLocked(o)
	return clone(o.Order)
}

func (m *Monitor) list(keep func(*order) bool) []broker.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	sel := make([]*order, 0, len(m.orders))
	for _, o := range m.orders {
		if keep(o) {
			sel = append(sel, o)
		}
	}
	sort.Slice(sel, func(i, j int) bool { return sel[i].seq < sel[j].seq })

	out := make([]broker.Order, len(sel))
	for i, o := range sel {
		out[i] = clone(o.Order)
	}
	return out
}

func (m *Monitor) recordLocked(o *order) {
	if err := m.journal.RecordOrder(clone(o.Order)); err != nil {
		m.log.Warn("journal order",
			slog.String("order_id", o.ID),
			slog.String("status", string(o.Status)),
			slog.String("error", err.Error()),
		)
	}
}

// clone copies threshold pointers so callers cannot reach monitor state.
func clone(o broker.Order) broker.Order {
	if o.StopLoss != nil {
		v := *o.StopLoss
		o.StopLoss = &v
	}
	if o.TakeProfit != nil {
		v := *o.TakeProfit
		o.TakeProfit = &v
	}
	return o
}
