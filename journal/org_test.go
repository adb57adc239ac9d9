package journal

import (
	"strings"
	"testing"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/stretchr/testify/assert"
)

func TestFormatOrderOrg(t *testing.T) {
	t.Parallel()

	o := sampleOrder()
	o.Status = broker.OrderFilled
	o.FillPrice = dec("138")
	o.ClosedAt = t1
	o.Reason = "STOP_LOSS"

	result := FormatOrderOrg(o)

	assert.Contains(t, result, "** Order: SELL 2 AAPL (01ORDER0)")
	assert.Contains(t, result, ":PROPERTIES:")
	assert.Contains(t, result, ":ORDER_ID: 01ORDER00000000000000000002")
	assert.Contains(t, result, ":STOP_LOSS: 140.00")
	assert.NotContains(t, result, ":TAKE_PROFIT:")
	assert.Contains(t, result, ":STATUS: FILLED")
	assert.Contains(t, result, ":CREATED: 2024-03-15T10:30:45Z")
	assert.Contains(t, result, ":CLOSED: 2024-03-15T11:30:45Z")
	assert.Contains(t, result, ":FILL_PRICE: 138.00")
	assert.Contains(t, result, ":REASON: STOP_LOSS")
	assert.Contains(t, result, ":END:")
	assert.Contains(t, result, "*** Thesis")
	assert.Contains(t, result, "*** Review")
}

func TestFormatOrdersOrg(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", FormatOrdersOrg(nil))

	a, b := sampleOrder(), sampleOrder()
	b.ID = "short"
	out := FormatOrdersOrg([]broker.Order{a, b})
	assert.Equal(t, 2, strings.Count(out, "** Order:"))
	assert.Contains(t, out, "(short)")
}

func TestFormatTransactionsOrg(t *testing.T) {
	t.Parallel()

	out := FormatTransactionsOrg(sampleTransactions())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)
	assert.Equal(t, "| 2024-03-15T10:30:45Z | DEPOSIT |  |  |  | 1000.00 |  |", lines[2])
	assert.Equal(t, "| 2024-03-15T11:30:45Z | BUY | AAPL | 5 | 150.00 | 750.00 | 01ORDER0 |", lines[3])
}

func TestMemoryJournal(t *testing.T) {
	t.Parallel()

	m := NewMemory()
	for _, tx := range sampleTransactions() {
		assert.NoError(t, m.RecordTransaction(tx))
	}
	assert.NoError(t, m.RecordOrder(sampleOrder()))
	assert.NoError(t, m.RecordEquity(EquitySnapshot{Seq: 1}))
	assert.NoError(t, m.Close())

	assert.Len(t, m.Transactions(), 2)
	assert.Len(t, m.Orders(), 1)
	assert.Len(t, m.Equity(), 1)
	assert.True(t, m.Closed())

	var j Journal = Nop{}
	assert.NoError(t, j.RecordOrder(sampleOrder()))
}
