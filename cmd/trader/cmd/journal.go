package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite journal",
	Long: `Query and display journal records from a SQLite database written by
a run with journal.type = sqlite.

Subcommands:
  order         - Details of one order by ID
  orders        - List orders, optionally by status
  transactions  - List ledger transactions, today or on a given day
  equity        - Print the recorded equity curve

Examples:
  trader journal order 01HV...
  trader journal orders --status FAILED
  trader journal transactions --day 2024-01-15`,
}

var journalOrderCmd = &cobra.Command{
	Use:   "order <order-id>",
	Short: "Get details of a specific order",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalOrder,
}

var journalOrdersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List orders",
	Args:  cobra.NoArgs,
	RunE:  runJournalOrders,
}

var journalTransactionsCmd = &cobra.Command{
	Use:   "transactions",
	Short: "List transactions",
	Args:  cobra.NoArgs,
	RunE:  runJournalTransactions,
}

var journalEquityCmd = &cobra.Command{
	Use:   "equity",
	Short: "Print the equity curve",
	Args:  cobra.NoArgs,
	RunE:  runJournalEquity,
}

var (
	journalDBPath   string
	journalStatus   string
	journalDay      string
	journalAll      bool
	journalCurrency string
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalOrderCmd)
	journalCmd.AddCommand(journalOrdersCmd)
	journalCmd.AddCommand(journalTransactionsCmd)
	journalCmd.AddCommand(journalEquityCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./trader.sqlite", "path to SQLite journal DB")
	journalOrdersCmd.Flags().StringVarP(&journalStatus, "status", "s", "", "only orders in this status (PENDING, FILLED, CANCELLED, FAILED...)")
	journalTransactionsCmd.Flags().StringVar(&journalDay, "day", "", "day to list, YYYY-MM-DD (default today)")
	journalTransactionsCmd.Flags().BoolVarP(&journalAll, "all", "a", false, "list every transaction")
	journalEquityCmd.Flags().StringVar(&journalCurrency, "currency", "USD", "currency for display")
}

func runJournalOrder(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	o, err := j.GetOrder(args[0])
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrderOrg(o))
	return nil
}

func runJournalOrders(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	status := broker.OrderStatus(strings.ToUpper(strings.TrimSpace(journalStatus)))
	recs, err := j.ListOrders(status)
	if err != nil {
		return fmt.Errorf("query orders: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatOrdersOrg(recs))
	return nil
}

func runJournalTransactions(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	var recs []broker.Transaction
	if journalAll {
		recs, err = j.ListTransactions()
	} else {
		loc := time.Local
		day := journalDay
		if day == "" {
			day = time.Now().In(loc).Format("2006-01-02")
		}
		start, end, derr := dayBounds(loc, day)
		if derr != nil {
			return fmt.Errorf("date: %w", derr)
		}
		recs, err = j.ListTransactionsBetween(start, end)
	}
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTransactionsOrg(recs))
	return nil
}

func runJournalEquity(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	pts, err := j.ListEquity()
	if err != nil {
		return fmt.Errorf("query equity: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TICK\tTIME\tBALANCE\tMARKET VALUE\tEQUITY\tP/L")
	for _, p := range pts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.Seq, p.Time.Format(time.RFC3339),
			formatMoney(p.Balance, journalCurrency), formatMoney(p.MarketValue, journalCurrency),
			formatMoney(p.Equity, journalCurrency), formatMoney(p.ProfitLoss, journalCurrency))
	}
	return tw.Flush()
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
