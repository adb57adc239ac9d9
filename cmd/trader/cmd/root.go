package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "A paper-trading engine over a simulated market",
	Long: `Trader runs a paper-trading account against a simulated, randomly
walking market.

It provides tools for:
  - Running simulations from a configuration file
  - Market, stop-loss, take-profit and bracket orders
  - Pre-trade risk limits and risk-based position sizing
  - Journaling transactions, orders and equity to CSV or SQLite
  - Querying the SQLite journal as org-mode tables`,
	SilenceUsage: true,
}

var (
	logLevel  string
	logFormat string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default from config, else info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (default from config, else text)")
}

// newLogger builds the process logger. Flag values win over cfgLevel and
// cfgFormat.
func newLogger(w io.Writer, cfgLevel, cfgFormat string) (*slog.Logger, error) {
	level := firstNonEmpty(logLevel, cfgLevel, "info")
	format := firstNonEmpty(logFormat, cfgFormat, "text")

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("log format %q: want text or json", format)
	}
	return slog.New(h), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
