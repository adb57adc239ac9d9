// journal/schema.go
package journal

// Decimals are stored as TEXT so amounts round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS transactions (
	tx_id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL DEFAULT '',
	quantity TEXT NOT NULL,
	price TEXT NOT NULL,
	amount TEXT NOT NULL,
	order_id TEXT NOT NULL DEFAULT '',
	time DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(time);

CREATE TABLE IF NOT EXISTS orders (
	order_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity TEXT NOT NULL,
	stop_loss TEXT,
	take_profit TEXT,
	status TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	triggered_at DATETIME,
	closed_at DATETIME,
	fill_price TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS equity (
	seq INTEGER NOT NULL,
	time DATETIME NOT NULL,
	balance TEXT NOT NULL,
	market_value TEXT NOT NULL,
	equity TEXT NOT NULL,
	profit_loss TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
