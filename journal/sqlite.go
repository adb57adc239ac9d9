package journal

import (
	"database/sql"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTransaction(tx broker.Transaction) error {
	_, err := j.db.Exec(`
		INSERT INTO transactions
		(tx_id, kind, symbol, quantity, price, amount, order_id, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Kind), tx.Symbol, tx.Quantity, tx.Price,
		tx.Amount, tx.OrderID, tx.Time.UTC(),
	)
	return err
}

// RecordOrder upserts the order's latest state.
func (j *SQLite) RecordOrder(o broker.Order) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(order_id, symbol, side, quantity, stop_loss, take_profit, status,
		 created_at, triggered_at, closed_at, fill_price, reason, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status,
			triggered_at = excluded.triggered_at,
			closed_at = excluded.closed_at,
			fill_price = excluded.fill_price,
			reason = excluded.reason,
			error = excluded.error`,
		o.ID, o.Symbol, string(o.Side), o.Quantity,
		nullDecimal(o.StopLoss), nullDecimal(o.TakeProfit), string(o.Status),
		o.CreatedAt.UTC(), nullTime(o.TriggeredAt), nullTime(o.ClosedAt),
		o.FillPrice, o.Reason, o.Error,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(seq, time, balance, market_value, equity, profit_loss)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Seq, e.Time.UTC(), e.Balance, e.MarketValue, e.Equity, e.ProfitLoss,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func nullDecimal(p *decimal.Decimal) decimal.NullDecimal {
	if p == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *p, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
