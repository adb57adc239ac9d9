package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
)

const txColumns = `tx_id, kind, symbol, quantity, price, amount, order_id, time`

const orderColumns = `order_id, symbol, side, quantity, stop_loss, take_profit, status,
	created_at, triggered_at, closed_at, fill_price, reason, error`

// ListTransactions returns every recorded transaction in ledger order.
func (j *SQLite) ListTransactions() ([]broker.Transaction, error) {
	rows, err := j.db.Query(`SELECT ` + txColumns + ` FROM transactions ORDER BY time ASC, tx_id ASC`)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// ListTransactionsBetween returns transactions whose time is within [start, end).
func (j *SQLite) ListTransactionsBetween(start, end time.Time) ([]broker.Transaction, error) {
	rows, err := j.db.Query(`SELECT `+txColumns+` FROM transactions
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, tx_id ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// GetOrder returns the latest recorded state of one order.
func (j *SQLite) GetOrder(orderID string) (broker.Order, error) {
	row := j.db.QueryRow(`SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, orderID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return broker.Order{}, fmt.Errorf("%w: %q", broker.ErrOrderNotFound, orderID)
		}
		return broker.Order{}, err
	}
	return o, nil
}

// ListOrders returns orders in creation order, optionally filtered by status.
func (j *SQLite) ListOrders(status broker.OrderStatus) ([]broker.Order, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = j.db.Query(`SELECT ` + orderColumns + ` FROM orders ORDER BY created_at ASC, order_id ASC`)
	} else {
		rows, err = j.db.Query(`SELECT `+orderColumns+` FROM orders WHERE status = ?
			ORDER BY created_at ASC, order_id ASC`, string(status))
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquity returns the equity curve in tick order.
func (j *SQLite) ListEquity() ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT seq, time, balance, market_value, equity, profit_loss
		FROM equity
		ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(&e.Seq, &e.Time, &e.Balance, &e.MarketValue, &e.Equity, &e.ProfitLoss); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanTransactions(rows *sql.Rows) ([]broker.Transaction, error) {
	defer rows.Close()

	var out []broker.Transaction
	for rows.Next() {
		var (
			tx   broker.Transaction
			kind string
		)
		if err := rows.Scan(
			&tx.ID,
			&kind,
			&tx.Symbol,
			&tx.Quantity,
			&tx.Price,
			&tx.Amount,
			&tx.OrderID,
			&tx.Time,
		); err != nil {
			return nil, err
		}
		tx.Kind = broker.TransactionKind(kind)
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (broker.Order, error) {
	var (
		o                    broker.Order
		side, status         string
		stopLoss, takeProfit decimal.NullDecimal
		triggered, closed    sql.NullTime
	)
	err := s.Scan(
		&o.ID,
		&o.Symbol,
		&side,
		&o.Quantity,
		&stopLoss,
		&takeProfit,
		&status,
		&o.CreatedAt,
		&triggered,
		&closed,
		&o.FillPrice,
		&o.Reason,
		&o.Error,
	)
	if err != nil {
		return broker.Order{}, err
	}

	o.Side = broker.Side(side)
	o.Status = broker.OrderStatus(status)
	if stopLoss.Valid {
		v := stopLoss.Decimal
		o.StopLoss = &v
	}
	if takeProfit.Valid {
		v := takeProfit.Decimal
		o.TakeProfit = &v
	}
	if triggered.Valid {
		o.TriggeredAt = triggered.Time
	}
	if closed.Valid {
		o.ClosedAt = closed.Time
	}
	return o, nil
}
