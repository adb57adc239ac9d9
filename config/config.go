package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/risk"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete simulation configuration
type Config struct {
	Account  AccountConfig `json:"account" yaml:"account" toml:"account"`
	Market   MarketConfig  `json:"market" yaml:"market" toml:"market"`
	Risk     RiskConfig    `json:"risk" yaml:"risk" toml:"risk"`
	Journal  JournalConfig `json:"journal" yaml:"journal" toml:"journal"`
	Orders   []OrderConfig `json:"orders,omitempty" yaml:"orders,omitempty" toml:"orders,omitempty"`
	Run      RunConfig     `json:"run" yaml:"run" toml:"run"`
	LogLevel string        `json:"log_level" yaml:"log_level" toml:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `json:"log_format" yaml:"log_format" toml:"log_format"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID             string          `json:"id" yaml:"id" toml:"id"`
	Currency       string          `json:"currency" yaml:"currency" toml:"currency"`
	InitialDeposit decimal.Decimal `json:"initial_deposit" yaml:"initial_deposit" toml:"initial_deposit"`
}

// MarketConfig describes the simulated market.
type MarketConfig struct {
	Interval    string         `json:"interval" yaml:"interval" toml:"interval"` // e.g. "1s", "250ms"
	Seed        int64          `json:"seed,omitempty" yaml:"seed,omitempty" toml:"seed,omitempty"`
	HistorySize int            `json:"history_size,omitempty" yaml:"history_size,omitempty" toml:"history_size,omitempty"`
	Symbols     []SymbolConfig `json:"symbols" yaml:"symbols" toml:"symbols"`
}

// TickInterval converts Interval to a time.Duration.
func (m MarketConfig) TickInterval() (time.Duration, error) {
	if m.Interval == "" {
		return time.Second, nil
	}
	return time.ParseDuration(m.Interval)
}

type SymbolConfig struct {
	Symbol     string          `json:"symbol" yaml:"symbol" toml:"symbol"`
	Price      decimal.Decimal `json:"price" yaml:"price" toml:"price"`
	Drift      float64         `json:"drift,omitempty" yaml:"drift,omitempty" toml:"drift,omitempty"`
	Volatility float64         `json:"volatility,omitempty" yaml:"volatility,omitempty" toml:"volatility,omitempty"`
}

// RiskConfig mirrors risk.Policy. Zero disables a limit.
type RiskConfig struct {
	MaxOrderNotional decimal.Decimal `json:"max_order_notional" yaml:"max_order_notional" toml:"max_order_notional"`
	MaxOpenOrders    int             `json:"max_open_orders" yaml:"max_open_orders" toml:"max_open_orders"`
	MaxPositionPct   decimal.Decimal `json:"max_position_pct" yaml:"max_position_pct" toml:"max_position_pct"`
	MaxRiskPct       decimal.Decimal `json:"max_risk_pct" yaml:"max_risk_pct" toml:"max_risk_pct"`
	MinRR            decimal.Decimal `json:"min_rr" yaml:"min_rr" toml:"min_rr"`
}

func (r RiskConfig) Policy() risk.Policy {
	return risk.Policy{
		MaxOrderNotional: r.MaxOrderNotional,
		MaxOpenOrders:    r.MaxOpenOrders,
		MaxPositionPct:   r.MaxPositionPct,
		MaxRiskPct:       r.MaxRiskPct,
		MinRR:            r.MinRR,
	}
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type             string `json:"type" yaml:"type" toml:"type"` // "csv", "sqlite" or "none"
	TransactionsFile string `json:"transactions_file,omitempty" yaml:"transactions_file,omitempty" toml:"transactions_file,omitempty"`
	OrdersFile       string `json:"orders_file,omitempty" yaml:"orders_file,omitempty" toml:"orders_file,omitempty"`
	EquityFile       string `json:"equity_file,omitempty" yaml:"equity_file,omitempty" toml:"equity_file,omitempty"`
	DBPath           string `json:"db_path,omitempty" yaml:"db_path,omitempty" toml:"db_path,omitempty"`
}

// OrderConfig is an order the run command places before ticking. Quantity
// may be left zero when RiskPct and StopLoss are set, in which case the
// order is sized so hitting the stop loses RiskPct of equity.
type OrderConfig struct {
	Symbol     string           `json:"symbol" yaml:"symbol" toml:"symbol"`
	Side       string           `json:"side" yaml:"side" toml:"side"`
	Quantity   decimal.Decimal  `json:"quantity,omitempty" yaml:"quantity,omitempty" toml:"quantity,omitempty"`
	RiskPct    decimal.Decimal  `json:"risk_pct,omitempty" yaml:"risk_pct,omitempty" toml:"risk_pct,omitempty"`
	StopLoss   *decimal.Decimal `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty" toml:"stop_loss,omitempty"`
	TakeProfit *decimal.Decimal `json:"take_profit,omitempty" yaml:"take_profit,omitempty" toml:"take_profit,omitempty"`
	// Bracket buys now and places the stop/target as a protecting sell.
	Bracket bool `json:"bracket,omitempty" yaml:"bracket,omitempty" toml:"bracket,omitempty"`
}

// RunConfig bounds a run: Ticks scripted ticks, or wall-clock Duration on
// the live ticker when Ticks is zero.
type RunConfig struct {
	Ticks    int    `json:"ticks" yaml:"ticks" toml:"ticks"`
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty" toml:"duration,omitempty"`
}

// ParseDuration converts Duration to a time.Duration
func (r RunConfig) ParseDuration() (time.Duration, error) {
	if r.Duration == "" {
		return 0, nil
	}
	return time.ParseDuration(r.Duration)
}

// LoadFromFile loads configuration from a file. ".toml" files are decoded
// as TOML; anything else is tried as YAML, then JSON. A .env file in the
// working directory and TRADER_* variables override file values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse config (TOML): %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		// Try YAML first, fall back to JSON
		*cfg = Config{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	// Missing .env is fine.
	_ = godotenv.Load()
	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration as YAML, TOML or JSON by extension.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	case ".toml":
		var buf bytes.Buffer
		err = toml.NewEncoder(&buf).Encode(c)
		data = buf.Bytes()
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Account.Currency == "" {
		c.Account.Currency = "USD"
	}
	if c.Market.Interval == "" {
		c.Market.Interval = "1s"
	}
	if c.Journal.Type == "" {
		c.Journal.Type = "none"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.InitialDeposit.IsNegative() {
		return fmt.Errorf("account.initial_deposit must not be negative")
	}

	iv, err := c.Market.TickInterval()
	if err != nil {
		return fmt.Errorf("market.interval: %w", err)
	}
	if iv <= 0 {
		return fmt.Errorf("market.interval must be positive")
	}
	if len(c.Market.Symbols) == 0 {
		return fmt.Errorf("market.symbols must list at least one symbol")
	}
	known := make(map[string]bool, len(c.Market.Symbols))
	for i, s := range c.Market.Symbols {
		if s.Symbol == "" {
			return fmt.Errorf("market.symbols[%d].symbol is required", i)
		}
		if known[s.Symbol] {
			return fmt.Errorf("market.symbols[%d]: duplicate symbol %s", i, s.Symbol)
		}
		known[s.Symbol] = true
		if !s.Price.IsPositive() {
			return fmt.Errorf("market.symbols[%d].price must be positive", i)
		}
		if s.Volatility < 0 {
			return fmt.Errorf("market.symbols[%d].volatility must not be negative", i)
		}
		if math.IsNaN(s.Volatility) || math.IsInf(s.Volatility, 0) {
			return fmt.Errorf("market.symbols[%d].volatility must be finite", i)
		}
		if math.IsNaN(s.Drift) || math.IsInf(s.Drift, 0) {
			return fmt.Errorf("market.symbols[%d].drift must be finite", i)
		}
	}

	if c.Risk.MaxOpenOrders < 0 {
		return fmt.Errorf("risk.max_open_orders must not be negative")
	}
	for name, v := range map[string]decimal.Decimal{
		"max_order_notional": c.Risk.MaxOrderNotional,
		"max_position_pct":   c.Risk.MaxPositionPct,
		"max_risk_pct":       c.Risk.MaxRiskPct,
		"min_rr":             c.Risk.MinRR,
	} {
		if v.IsNegative() {
			return fmt.Errorf("risk.%s must not be negative", name)
		}
	}

	switch c.Journal.Type {
	case "none":
	case "csv":
		if c.Journal.TransactionsFile == "" || c.Journal.OrdersFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal transactions_file, orders_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}

	for i, o := range c.Orders {
		if err := o.validate(known); err != nil {
			return fmt.Errorf("orders[%d]: %w", i, err)
		}
	}

	if c.Run.Ticks < 0 {
		return fmt.Errorf("run.ticks must not be negative")
	}
	if _, err := c.Run.ParseDuration(); err != nil {
		return fmt.Errorf("run.duration: %w", err)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json'")
	}
	return nil
}

func (o OrderConfig) validate(known map[string]bool) error {
	if !known[o.Symbol] {
		return fmt.Errorf("unknown symbol: %s", o.Symbol)
	}
	side, err := broker.ParseSide(o.Side)
	if err != nil {
		return err
	}
	if o.Bracket {
		if side != broker.SideBuy {
			return fmt.Errorf("bracket orders must be BUY")
		}
		if o.StopLoss == nil && o.TakeProfit == nil {
			return fmt.Errorf("bracket orders need stop_loss or take_profit")
		}
	}
	if o.Quantity.IsZero() {
		if !o.RiskPct.IsPositive() || o.StopLoss == nil {
			return fmt.Errorf("quantity, or risk_pct with stop_loss, is required")
		}
		return nil
	}
	if o.Quantity.IsNegative() {
		return fmt.Errorf("quantity must be positive")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	sl := decimal.NewFromInt(140)
	tp := decimal.NewFromInt(170)
	return &Config{
		Account: AccountConfig{
			ID:             "SIM-001",
			Currency:       "USD",
			InitialDeposit: decimal.NewFromInt(10000),
		},
		Market: MarketConfig{
			Interval: "1s",
			Seed:     42,
			Symbols: []SymbolConfig{
				{Symbol: "AAPL", Price: decimal.NewFromInt(150), Volatility: 0.01},
				{Symbol: "GOOGL", Price: decimal.NewFromInt(2800), Volatility: 0.015},
				{Symbol: "TSLA", Price: decimal.NewFromInt(700), Drift: 0.0005, Volatility: 0.03},
			},
		},
		Risk: RiskConfig{
			MaxOrderNotional: decimal.NewFromInt(5000),
			MaxOpenOrders:    10,
		},
		Journal: JournalConfig{
			Type:             "csv",
			TransactionsFile: "./transactions.csv",
			OrdersFile:       "./orders.csv",
			EquityFile:       "./equity.csv",
		},
		Orders: []OrderConfig{
			{Symbol: "AAPL", Side: "BUY", Quantity: decimal.NewFromInt(10), StopLoss: &sl, TakeProfit: &tp, Bracket: true},
		},
		Run: RunConfig{
			Ticks: 100,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}
