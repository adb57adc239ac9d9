package market

import (
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

// Snapshot is the immutable result of one tick: every registered symbol's
// price as of Seq.
type Snapshot struct {
	Seq    uint64
	Time   time.Time
	Prices map[string]decimal.Decimal
}

// Price looks a symbol up in the snapshot. It lets a snapshot stand in for
// the live feed when valuing a portfolio at a given tick.
func (s Snapshot) Price(symbol string) (decimal.Decimal, error) {
	p, ok := s.Prices[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", broker.ErrUnknownSymbol, symbol)
	}
	return p, nil
}

// Symbols returns the snapshot's symbols in sorted order.
func (s Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Prices))
	for sym := range s.Prices {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Subscriber receives every snapshot in tick order. OnTick runs on the
// ticking goroutine and the next tick waits for it to return.
type Subscriber interface {
	OnTick(Snapshot)
}

// SubscriberFunc adapts a plain function to Subscriber.
type SubscriberFunc func(Snapshot)

func (f SubscriberFunc) OnTick(s Snapshot) { f(s) }

// PricePoint is one entry of a symbol's price history.
type PricePoint struct {
	Time  time.Time
	Price decimal.Decimal
}

// history is a bounded ring of price points, oldest first.
type history struct {
	max    int
	points []PricePoint
}

func (h *history) push(p PricePoint) {
	if h.max <= 0 {
		return
	}
	if len(h.points) == h.max {
		copy(h.points, h.points[1:])
		h.points = h.points[:h.max-1]
	}
	h.points = append(h.points, p)
}

func (h *history) last(n int) []PricePoint {
	if n <= 0 || n > len(h.points) {
		n = len(h.points)
	}
	out := make([]PricePoint, n)
	copy(out, h.points[len(h.points)-n:])
	return out
}
