package config

import (
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// applyEnvOverrides overwrites fields whose TRADER_* variable is set and
// parses. Unparseable values are ignored.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Account.ID, "TRADER_ACCOUNT_ID")
	setStr(&cfg.Account.Currency, "TRADER_ACCOUNT_CURRENCY")
	setDecimal(&cfg.Account.InitialDeposit, "TRADER_ACCOUNT_INITIAL_DEPOSIT")

	setStr(&cfg.Market.Interval, "TRADER_MARKET_INTERVAL")
	setInt64(&cfg.Market.Seed, "TRADER_MARKET_SEED")
	setInt(&cfg.Market.HistorySize, "TRADER_MARKET_HISTORY_SIZE")

	setDecimal(&cfg.Risk.MaxOrderNotional, "TRADER_RISK_MAX_ORDER_NOTIONAL")
	setInt(&cfg.Risk.MaxOpenOrders, "TRADER_RISK_MAX_OPEN_ORDERS")
	setDecimal(&cfg.Risk.MaxPositionPct, "TRADER_RISK_MAX_POSITION_PCT")
	setDecimal(&cfg.Risk.MaxRiskPct, "TRADER_RISK_MAX_RISK_PCT")
	setDecimal(&cfg.Risk.MinRR, "TRADER_RISK_MIN_RR")

	setStr(&cfg.Journal.Type, "TRADER_JOURNAL_TYPE")
	setStr(&cfg.Journal.TransactionsFile, "TRADER_JOURNAL_TRANSACTIONS_FILE")
	setStr(&cfg.Journal.OrdersFile, "TRADER_JOURNAL_ORDERS_FILE")
	setStr(&cfg.Journal.EquityFile, "TRADER_JOURNAL_EQUITY_FILE")
	setStr(&cfg.Journal.DBPath, "TRADER_JOURNAL_DB_PATH")

	setInt(&cfg.Run.Ticks, "TRADER_RUN_TICKS")
	setStr(&cfg.Run.Duration, "TRADER_RUN_DURATION")

	setStr(&cfg.LogLevel, "TRADER_LOG_LEVEL")
	setStr(&cfg.LogFormat, "TRADER_LOG_FORMAT")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDecimal(dst *decimal.Decimal, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			*dst = d
		}
	}
}
