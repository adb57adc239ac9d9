package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

var (
	transactionHeader = []string{"tx_id", "kind", "symbol", "quantity", "price", "amount", "order_id", "time"}
	orderHeader       = []string{"order_id", "symbol", "side", "quantity", "stop_loss", "take_profit", "status", "created_at", "triggered_at", "closed_at", "fill_price", "reason", "error"}
	equityHeader      = []string{"seq", "time", "balance", "market_value", "equity", "profit_loss"}
)

// CSV writes one file per record kind. Orders are appended on every status
// change, so the last row for an id is its current state.
type CSV struct {
	mu         sync.Mutex
	txs        *csv.Writer
	orders     *csv.Writer
	equity     *csv.Writer
	tf, of, ef *os.File
}

func NewCSV(transactionsPath, ordersPath, equityPath string) (*CSV, error) {
	tf, err := os.Create(transactionsPath)
	if err != nil {
		return nil, err
	}
	of, err := os.Create(ordersPath)
	if err != nil {
		tf.Close()
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		tf.Close()
		of.Close()
		return nil, err
	}

	j := &CSV{
		txs:    csv.NewWriter(tf),
		orders: csv.NewWriter(of),
		equity: csv.NewWriter(ef),
		tf:     tf,
		of:     of,
		ef:     ef,
	}

	for _, h := range []struct {
		w   *csv.Writer
		row []string
	}{
		{j.txs, transactionHeader},
		{j.orders, orderHeader},
		{j.equity, equityHeader},
	} {
		if err := writeRow(h.w, h.row); err != nil {
			j.closeFiles()
			return nil, err
		}
	}

	return j, nil
}

func (j *CSV) RecordTransaction(tx broker.Transaction) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return writeRow(j.txs, []string{
		tx.ID,
		string(tx.Kind),
		tx.Symbol,
		tx.Quantity.String(),
		tx.Price.String(),
		tx.Amount.String(),
		tx.OrderID,
		ts(tx.Time),
	})
}

func (j *CSV) RecordOrder(o broker.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return writeRow(j.orders, []string{
		o.ID,
		o.Symbol,
		string(o.Side),
		o.Quantity.String(),
		optional(o.StopLoss),
		optional(o.TakeProfit),
		string(o.Status),
		ts(o.CreatedAt),
		ts(o.TriggeredAt),
		ts(o.ClosedAt),
		o.FillPrice.String(),
		o.Reason,
		o.Error,
	})
}

func (j *CSV) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return writeRow(j.equity, []string{
		strconv.FormatUint(e.Seq, 10),
		ts(e.Time),
		e.Balance.String(),
		e.MarketValue.String(),
		e.Equity.String(),
		e.ProfitLoss.String(),
	})
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, w := range []*csv.Writer{j.txs, j.orders, j.equity} {
		w.Flush()
		if err := w.Error(); err != nil {
			j.closeFiles()
			return err
		}
	}
	return j.closeFiles()
}

func (j *CSV) closeFiles() error {
	var first error
	for _, f := range []*os.File{j.tf, j.of, j.ef} {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func writeRow(w *csv.Writer, row []string) error {
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func optional(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.String()
}
