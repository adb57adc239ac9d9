package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func newTestCSV(t *testing.T) (*CSV, string, string, string) {
	t.Helper()
	dir := t.TempDir()
	tp := filepath.Join(dir, "transactions.csv")
	op := filepath.Join(dir, "orders.csv")
	ep := filepath.Join(dir, "equity.csv")

	j, err := NewCSV(tp, op, ep)
	require.NoError(t, err)
	return j, tp, op, ep
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	j, tp, op, ep := newTestCSV(t)
	require.NoError(t, j.Close())

	assert.Equal(t, [][]string{transactionHeader}, readCSV(t, tp))
	assert.Equal(t, [][]string{orderHeader}, readCSV(t, op))
	assert.Equal(t, [][]string{equityHeader}, readCSV(t, ep))
}

func TestCSVJournalRecords(t *testing.T) {
	t.Parallel()

	j, tp, op, ep := newTestCSV(t)

	for _, tx := range sampleTransactions() {
		require.NoError(t, j.RecordTransaction(tx))
	}
	o := sampleOrder()
	require.NoError(t, j.RecordOrder(o))
	o.Status = broker.OrderCancelled
	o.ClosedAt = t1
	require.NoError(t, j.RecordOrder(o))
	require.NoError(t, j.RecordEquity(EquitySnapshot{Seq: 3, Time: t0, Balance: dec("250"), MarketValue: dec("750"), Equity: dec("1000"), ProfitLoss: dec("0")}))
	require.NoError(t, j.Close())

	txs := readCSV(t, tp)
	require.Len(t, txs, 3)
	assert.Equal(t, []string{"01TX0000000000000000000002", "BUY", "AAPL", "5", "150", "750", "01ORDER00000000000000000001", "2024-03-15T11:30:45Z"}, txs[2])

	orders := readCSV(t, op)
	require.Len(t, orders, 3)
	assert.Equal(t, "PENDING", orders[1][6])
	assert.Equal(t, "140", orders[1][4])
	assert.Equal(t, "", orders[1][5])
	assert.Equal(t, "CANCELLED", orders[2][6])
	assert.Equal(t, "2024-03-15T11:30:45Z", orders[2][9])

	eq := readCSV(t, ep)
	require.Len(t, eq, 2)
	assert.Equal(t, []string{"3", "2024-03-15T10:30:45Z", "250", "750", "1000", "0"}, eq[1])
}
