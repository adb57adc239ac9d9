package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/engine"
	"github.com/rustyeddy/papertrade/orders"
	"github.com/shopspring/decimal"
)

// formatMoney renders amount in currency's display format, falling back to
// a plain two-place figure for codes go-money does not know.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.StringFixed(2) + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

// report is the end-of-run summary.
type report struct {
	Portfolio broker.Portfolio
	Prices    map[string]decimal.Decimal
	Value     decimal.Decimal
	PL        decimal.Decimal
	Orders    []broker.Order
	Failures  []orders.FillFailure
	Ticks     uint64
}

func buildReport(e *engine.Engine) (report, error) {
	snap := e.Feed().Snapshot()
	r := report{
		Portfolio: e.Ledger().Snapshot(),
		Prices:    snap.Prices,
		Orders:    e.Monitor().All(),
		Failures:  e.Monitor().Failures(),
		Ticks:     snap.Seq,
	}
	var err error
	if r.Value, err = e.Ledger().PortfolioValue(snap); err != nil {
		return report{}, err
	}
	if r.PL, err = e.Ledger().ProfitOrLoss(snap); err != nil {
		return report{}, err
	}
	return r, nil
}

func printReport(w io.Writer, r report, currency string) {
	fmt.Fprintf(w, "\nSimulation Complete! (%d ticks)\n", r.Ticks)
	fmt.Fprintf(w, "  Balance:      %s\n", formatMoney(r.Portfolio.Balance, currency))
	fmt.Fprintf(w, "  Value:        %s\n", formatMoney(r.Value, currency))
	fmt.Fprintf(w, "  P/L:          %s\n", formatMoney(r.PL, currency))
	fmt.Fprintf(w, "  Realized P/L: %s\n", formatMoney(r.Portfolio.RealizedPL, currency))

	if len(r.Portfolio.Positions) > 0 {
		syms := make([]string, 0, len(r.Portfolio.Positions))
		for s := range r.Portfolio.Positions {
			syms = append(syms, s)
		}
		sort.Strings(syms)

		fmt.Fprintln(w, "\nPositions:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  SYMBOL\tQTY\tAVG COST\tPRICE\tVALUE")
		for _, s := range syms {
			pos := r.Portfolio.Positions[s]
			px := r.Prices[s]
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", s, pos.Quantity,
				formatMoney(pos.AvgCost, currency), formatMoney(px, currency),
				formatMoney(px.Mul(pos.Quantity), currency))
		}
		_ = tw.Flush()
	}

	if len(r.Orders) > 0 {
		counts := map[broker.OrderStatus]int{}
		for _, o := range r.Orders {
			counts[o.Status]++
		}
		fmt.Fprintf(w, "\nOrders: %d total", len(r.Orders))
		for _, st := range []broker.OrderStatus{broker.OrderPending, broker.OrderFilled, broker.OrderCancelled, broker.OrderFailed} {
			if counts[st] > 0 {
				fmt.Fprintf(w, ", %d %s", counts[st], st)
			}
		}
		fmt.Fprintln(w)
	}

	for _, f := range r.Failures {
		fmt.Fprintf(w, "  FAILED %s %s %s @ %s (%s): %v\n", f.Side, f.Quantity, f.Symbol, f.Price, f.Reason, f.Err)
	}
}
