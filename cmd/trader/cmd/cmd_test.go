package cmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/papertrade/config"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"1006", "USD", "$1,006.00"},
		{"-12.345", "USD", "-$12.35"},
		{"1500", "JPY", "¥1,500"},
		{"2.5", "XXQ", "2.50 XXQ"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+tt.currency, func(t *testing.T) {
			assert.Equal(t, tt.want, formatMoney(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}

func TestDayBounds(t *testing.T) {
	start, end, err := dayBounds(time.UTC, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, 24*time.Hour, end.Sub(start))

	_, _, err = dayBounds(time.UTC, "15/01/2024")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

func TestRunThenQueryJournal(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "trader.sqlite")

	cfg := config.Default()
	cfg.Journal = config.JournalConfig{Type: "sqlite", DBPath: db}
	cfg.Run.Ticks = 25
	cfg.LogLevel = "error"
	cfgPath := filepath.Join(dir, "sim.yaml")
	require.NoError(t, cfg.SaveToFile(cfgPath))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	rootCmd.SetArgs([]string{"run", "-f", cfgPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Simulation Complete! (25 ticks)")
	assert.Contains(t, out.String(), "Orders: 2 total")

	j, err := journal.NewSQLite(db)
	require.NoError(t, err)
	txs, err := j.ListTransactions()
	require.NoError(t, err)
	eq, err := j.ListEquity()
	require.NoError(t, err)
	require.NoError(t, j.Close())

	require.GreaterOrEqual(t, len(txs), 2, "deposit and bracket entry")
	assert.Len(t, eq, 25)

	out.Reset()
	rootCmd.SetArgs([]string{"journal", "orders", "--db", db})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "FILLED")

	out.Reset()
	rootCmd.SetArgs([]string{"journal", "transactions", "--all", "--db", db})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "DEPOSIT")
}
