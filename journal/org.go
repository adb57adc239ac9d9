package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrade/broker"
)

// FormatOrderOrg renders an order as an Org-mode block. Structured facts go
// in a PROPERTIES drawer so they stay searchable; the Thesis and Review
// headings are left for the trader to fill in.
func FormatOrderOrg(o broker.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Order: %s %s %s (%s)\n", o.Side, o.Quantity, o.Symbol, shortID(o.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ORDER_ID: %s\n", o.ID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", o.Symbol)
	fmt.Fprintf(&b, ":SIDE: %s\n", o.Side)
	fmt.Fprintf(&b, ":QUANTITY: %s\n", o.Quantity)
	if o.StopLoss != nil {
		fmt.Fprintf(&b, ":STOP_LOSS: %s\n", o.StopLoss.StringFixed(2))
	}
	if o.TakeProfit != nil {
		fmt.Fprintf(&b, ":TAKE_PROFIT: %s\n", o.TakeProfit.StringFixed(2))
	}
	fmt.Fprintf(&b, ":STATUS: %s\n", o.Status)
	fmt.Fprintf(&b, ":CREATED: %s\n", orgTime(o.CreatedAt))
	if !o.ClosedAt.IsZero() {
		fmt.Fprintf(&b, ":CLOSED: %s\n", orgTime(o.ClosedAt))
	}
	if o.Status == broker.OrderFilled {
		fmt.Fprintf(&b, ":FILL_PRICE: %s\n", o.FillPrice.StringFixed(2))
	}
	if o.Reason != "" {
		fmt.Fprintf(&b, ":REASON: %s\n", o.Reason)
	}
	if o.Error != "" {
		fmt.Fprintf(&b, ":ERROR: %s\n", o.Error)
	}
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

// FormatOrdersOrg renders multiple orders separated by blank lines.
func FormatOrdersOrg(orders []broker.Order) string {
	var b strings.Builder
	for i, o := range orders {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatOrderOrg(o))
	}
	return b.String()
}

// FormatTransactionsOrg renders transactions as an Org table.
func FormatTransactionsOrg(txs []broker.Transaction) string {
	var b strings.Builder
	b.WriteString("| time | kind | symbol | quantity | price | amount | order |\n")
	b.WriteString("|------+------+--------+----------+-------+--------+-------|\n")
	for _, tx := range txs {
		qty, price := "", ""
		if tx.Symbol != "" {
			qty = tx.Quantity.String()
			price = tx.Price.StringFixed(2)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			orgTime(tx.Time), tx.Kind, tx.Symbol, qty, price,
			tx.Amount.StringFixed(2), shortID(tx.OrderID))
	}
	return b.String()
}

func orgTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
