package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/config"
	"github.com/rustyeddy/papertrade/engine"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/ledger"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/risk"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from a config file",
	Long: `Run a trading simulation using settings from a configuration file.

The config file specifies the account deposit, the simulated symbols, risk
limits, the journal and the orders to place before the market starts moving.
With run.ticks set the market is stepped that many times as fast as possible;
otherwise it ticks on market.interval for run.duration or until interrupted.

Example:
  trader config init -o sim.yaml
  trader run -f sim.yaml --ticks 500`,
	RunE: runRun,
}

var (
	runConfigPath string
	runTicks      int
	runDuration   time.Duration
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML, JSON or TOML) (required)")
	runCmd.Flags().IntVarP(&runTicks, "ticks", "n", 0, "override run.ticks")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "override run.duration (live ticking)")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("ticks") {
		cfg.Run.Ticks = runTicks
	}
	if cmd.Flags().Changed("duration") {
		cfg.Run.Ticks = 0
		cfg.Run.Duration = runDuration.String()
	}

	log, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Running simulation with config: %s\n", runConfigPath)
	fmt.Fprintf(out, "  Account: %s (deposit %s)\n", cfg.Account.ID, formatMoney(cfg.Account.InitialDeposit, cfg.Account.Currency))
	fmt.Fprintf(out, "  Symbols: %d, Orders: %d, Journal: %s\n", len(cfg.Market.Symbols), len(cfg.Orders), cfg.Journal.Type)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	e, err := buildEngine(cfg, j, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Account.InitialDeposit.IsPositive() {
		if _, err := e.Deposit(ctx, cfg.Account.InitialDeposit); err != nil {
			return fmt.Errorf("deposit: %w", err)
		}
	}
	placeConfiguredOrders(ctx, e, cfg.Orders, log)

	if err := drive(ctx, e, cfg); err != nil {
		return err
	}

	r, err := buildReport(e)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	printReport(out, r, cfg.Account.Currency)
	return nil
}

func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.TransactionsFile, jc.OrdersFile, jc.EquityFile)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	default:
		return journal.Nop{}, nil
	}
}

func buildEngine(cfg *config.Config, j journal.Journal, log *slog.Logger) (*engine.Engine, error) {
	fopts := []market.Option{market.WithLogger(log)}
	if cfg.Market.Seed != 0 {
		fopts = append(fopts, market.WithSeed(cfg.Market.Seed))
	}
	if cfg.Market.HistorySize > 0 {
		fopts = append(fopts, market.WithHistory(cfg.Market.HistorySize))
	}
	feed := market.NewFeed(fopts...)

	for _, s := range cfg.Market.Symbols {
		vol := s.Volatility
		if vol == 0 {
			vol = market.DefaultVolatility
		}
		if err := feed.RegisterSymbolParams(s.Symbol, market.Params{
			Price:      s.Price,
			Drift:      s.Drift,
			Volatility: vol,
		}); err != nil {
			return nil, fmt.Errorf("register %s: %w", s.Symbol, err)
		}
	}

	l := ledger.New(ledger.WithJournal(j), ledger.WithLogger(log))
	return engine.New(feed, l,
		engine.WithJournal(j),
		engine.WithPolicy(cfg.Risk.Policy()),
		engine.WithLogger(log),
	), nil
}

// placeConfiguredOrders places each configured order. A rejected order is
// logged and the run continues.
func placeConfiguredOrders(ctx context.Context, e *engine.Engine, ocs []config.OrderConfig, log *slog.Logger) {
	for i, oc := range ocs {
		id, err := placeOne(ctx, e, oc)
		if err != nil {
			log.Warn("order rejected",
				slog.Int("index", i),
				slog.String("symbol", oc.Symbol),
				slog.String("side", oc.Side),
				slog.String("error", err.Error()),
			)
			continue
		}
		log.Debug("order placed", slog.Int("index", i), slog.String("order_id", id))
	}
}

func placeOne(ctx context.Context, e *engine.Engine, oc config.OrderConfig) (string, error) {
	side, err := broker.ParseSide(oc.Side)
	if err != nil {
		return "", err
	}

	qty := oc.Quantity
	if qty.IsZero() && oc.StopLoss != nil {
		price, err := e.GetMarketPrice(ctx, oc.Symbol)
		if err != nil {
			return "", err
		}
		equity, err := e.PortfolioValue(ctx)
		if err != nil {
			return "", err
		}
		qty = risk.SizeForRisk(equity, oc.RiskPct, price, *oc.StopLoss)
		if qty.IsZero() {
			return "", fmt.Errorf("%w: risk_pct %s sizes to zero shares", broker.ErrValidation, oc.RiskPct)
		}
	}

	if oc.Bracket {
		entryID, _, err := e.PlaceBracketOrder(ctx, oc.Symbol, qty, oc.StopLoss, oc.TakeProfit)
		return entryID, err
	}
	return e.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:     oc.Symbol,
		Side:       side,
		Quantity:   qty,
		StopLoss:   oc.StopLoss,
		TakeProfit: oc.TakeProfit,
	})
}

// drive moves the market: a fixed number of immediate ticks, or the live
// ticker until the duration elapses or ctx is cancelled.
func drive(ctx context.Context, e *engine.Engine, cfg *config.Config) error {
	if cfg.Run.Ticks > 0 {
		for i := 0; i < cfg.Run.Ticks; i++ {
			if ctx.Err() != nil {
				break
			}
			e.Feed().Tick()
		}
		return nil
	}

	interval, err := cfg.Market.TickInterval()
	if err != nil {
		return err
	}
	dur, err := cfg.Run.ParseDuration()
	if err != nil {
		return err
	}
	if dur > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dur)
		defer cancel()
	}

	if err := e.Start(ctx, interval); err != nil {
		return err
	}
	<-ctx.Done()
	return e.Stop()
}
