package ledger

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/rustyeddy/papertrade/internal/id"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDec(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

type prices map[string]decimal.Decimal

func (p prices) Price(symbol string) (decimal.Decimal, error) {
	v, ok := p[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", broker.ErrUnknownSymbol, symbol)
	}
	return v, nil
}

func newLedger(t *testing.T, opts ...Option) (*Ledger, *journal.Memory) {
	t.Helper()
	fixed := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	j := journal.NewMemory()
	base := []Option{
		WithJournal(j),
		WithClock(func() time.Time { return fixed }),
		WithIDs(id.NewSeeded(1, func() time.Time { return fixed })),
	}
	return New(append(base, opts...)...), j
}

func TestDepositWithdraw(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)

	tx, err := l.Deposit(d("1000"))
	require.NoError(t, err)
	assert.Equal(t, broker.TxDeposit, tx.Kind)
	assertDec(t, "1000", l.Balance())

	_, err = l.Withdraw(d("400"))
	require.NoError(t, err)
	assertDec(t, "600", l.Balance())

	for _, bad := range []string{"0", "-5"} {
		_, err = l.Deposit(d(bad))
		assert.True(t, errors.Is(err, broker.ErrValidation), bad)
		_, err = l.Withdraw(d(bad))
		assert.True(t, errors.Is(err, broker.ErrValidation), bad)
	}

	assert.Len(t, l.Transactions(), 2)
}

func TestWithdrawMoreThanBalanceLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)
	_, err := l.Deposit(d("100"))
	require.NoError(t, err)
	before := l.Snapshot()

	_, err = l.Withdraw(d("100.01"))
	assert.True(t, errors.Is(err, broker.ErrInsufficientFunds))

	after := l.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assertDec(t, "100", after.Balance)
	assert.Len(t, l.Transactions(), 1)

	_, err = l.Withdraw(d("100"))
	require.NoError(t, err)
	assertDec(t, "0", l.Balance())
}

func TestAccountScenario(t *testing.T) {
	t.Parallel()

	l, j := newLedger(t)

	// 1. Deposit 1000, buy 5 AAPL @150.
	_, err := l.Deposit(d("1000"))
	require.NoError(t, err)
	_, err = l.ExecuteBuy("AAPL", d("5"), d("150"))
	require.NoError(t, err)
	assertDec(t, "250", l.Balance())
	assertDec(t, "5", l.Holding("AAPL"))

	// 2. Sell 3 @160.
	_, err = l.ExecuteSell("AAPL", d("3"), d("160"))
	require.NoError(t, err)
	assertDec(t, "730", l.Balance())
	assertDec(t, "2", l.Holding("AAPL"))

	// 3. Oversell fails and changes nothing.
	_, err = l.ExecuteSell("AAPL", d("10"), d("160"))
	assert.True(t, errors.Is(err, broker.ErrInsufficientHoldings))
	snap := l.Snapshot()
	assertDec(t, "730", snap.Balance)
	assert.Len(t, snap.Holdings, 1)
	assertDec(t, "2", snap.Holdings["AAPL"])

	// 4. Sell the rest @138, entry is removed.
	_, err = l.ExecuteSell("AAPL", d("2"), d("138"))
	require.NoError(t, err)
	assertDec(t, "1006", l.Balance())
	_, held := l.Snapshot().Holdings["AAPL"]
	assert.False(t, held)

	// 5. Withdraw 2000 fails.
	_, err = l.Withdraw(d("2000"))
	assert.True(t, errors.Is(err, broker.ErrInsufficientFunds))
	assertDec(t, "1006", l.Balance())

	// Realized P/L: 3*(160-150) + 2*(138-150) = 6.
	assertDec(t, "6", l.RealizedPL())

	txs := l.Transactions()
	require.Len(t, txs, 4)
	assert.Equal(t, []broker.TransactionKind{broker.TxDeposit, broker.TxBuy, broker.TxSell, broker.TxSell},
		[]broker.TransactionKind{txs[0].Kind, txs[1].Kind, txs[2].Kind, txs[3].Kind})
	assertDec(t, "750", txs[1].Amount)
	assertDec(t, "276", txs[3].Amount)

	assert.Equal(t, txs, j.Transactions())
}

func TestBuyValidationAndFunds(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)
	_, err := l.Deposit(d("100"))
	require.NoError(t, err)

	tests := []struct {
		name    string
		symbol  string
		qty     string
		price   string
		wantErr error
	}{
		{"zero quantity", "AAPL", "0", "10", broker.ErrValidation},
		{"negative quantity", "AAPL", "-1", "10", broker.ErrValidation},
		{"zero price", "AAPL", "1", "0", broker.ErrValidation},
		{"no symbol", "", "1", "10", broker.ErrValidation},
		{"too expensive", "AAPL", "11", "10", broker.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ExecuteBuy(tt.symbol, d(tt.qty), d(tt.price))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			_, err = l.ExecuteSell(tt.symbol, d(tt.qty), d(tt.price))
			assert.Error(t, err)
		})
	}

	assertDec(t, "100", l.Balance())
	assert.Empty(t, l.Snapshot().Holdings)

	// Spending the exact balance is allowed.
	_, err = l.ExecuteBuy("AAPL", d("10"), d("10"))
	require.NoError(t, err)
	assertDec(t, "0", l.Balance())
}

func TestAverageCost(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)
	_, _ = l.Deposit(d("10000"))

	_, err := l.ExecuteBuy("AAPL", d("10"), d("100"))
	require.NoError(t, err)
	_, err = l.ExecuteBuyFor("ord-1", "AAPL", d("5"), d("110"))
	require.NoError(t, err)

	pos := l.Snapshot().Positions["AAPL"]
	assertDec(t, "15", pos.Quantity)
	assert.True(t, pos.AvgCost.Round(6).Equal(d("103.333333")), "avg %s", pos.AvgCost)

	un, err := l.UnrealizedPL(prices{"AAPL": d("110")})
	require.NoError(t, err)
	assertDec(t, "100", un.Round(6))

	txs := l.Transactions()
	assert.Equal(t, "ord-1", txs[len(txs)-1].OrderID)
}

func TestPortfolioValueAndProfitLoss(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)
	_, _ = l.Deposit(d("1000"))
	_, _ = l.ExecuteBuy("AAPL", d("5"), d("150"))

	px := prices{"AAPL": d("160")}

	v, err := l.PortfolioValue(px)
	require.NoError(t, err)
	assertDec(t, "1050", v)

	pl, err := l.ProfitOrLoss(px)
	require.NoError(t, err)
	assertDec(t, "50", pl)

	// Deposit then equal withdraw leaves value and P/L untouched.
	_, _ = l.Deposit(d("321.5"))
	_, err = l.Withdraw(d("321.5"))
	require.NoError(t, err)

	v2, _ := l.PortfolioValue(px)
	pl2, _ := l.ProfitOrLoss(px)
	assert.True(t, v.Equal(v2))
	assert.True(t, pl.Equal(pl2))

	// Withdrawing cash is not a loss.
	_, _ = l.Withdraw(d("100"))
	pl3, _ := l.ProfitOrLoss(px)
	assertDec(t, "50", pl3)

	_, err = l.PortfolioValue(prices{})
	assert.True(t, errors.Is(err, broker.ErrUnknownSymbol))
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)
	r := rand.New(rand.NewSource(11))
	symbols := []string{"AAPL", "TSLA", "GOOGL"}

	for i := 0; i < 2000; i++ {
		amt := decimal.NewFromInt(int64(r.Intn(500) - 50))
		qty := decimal.NewFromInt(int64(r.Intn(10) - 1))
		price := decimal.NewFromInt(int64(r.Intn(200) + 1))
		sym := symbols[r.Intn(len(symbols))]

		switch r.Intn(4) {
		case 0:
			_, _ = l.Deposit(amt)
		case 1:
			_, _ = l.Withdraw(amt)
		case 2:
			_, _ = l.ExecuteBuy(sym, qty, price)
		case 3:
			_, _ = l.ExecuteSell(sym, qty, price)
		}

		snap := l.Snapshot()
		require.False(t, snap.Balance.IsNegative(), "step %d", i)
		for s, q := range snap.Holdings {
			require.True(t, q.IsPositive(), "step %d: %s held %s", i, s, q)
		}
	}

	assertHoldingsMatchHistory(t, l)
}

func TestConcurrentWithdrawAndBuyNeverOverdraw(t *testing.T) {
	t.Parallel()

	l, _ := newLedger(t)
	_, _ = l.Deposit(d("1000"))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = l.Withdraw(d("3"))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = l.ExecuteBuy("AAPL", d("1"), d("2"))
				_, _ = l.ExecuteSell("AAPL", d("1"), d("1"))
			}
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.False(t, snap.Balance.IsNegative())
	assert.Equal(t, uint64(len(l.Transactions())), snap.Version)
	assertHoldingsMatchHistory(t, l)
}

func assertHoldingsMatchHistory(t *testing.T, l *Ledger) {
	t.Helper()

	net := map[string]decimal.Decimal{}
	cash := decimal.Zero
	for _, tx := range l.Transactions() {
		switch tx.Kind {
		case broker.TxDeposit, broker.TxSell:
			cash = cash.Add(tx.Amount)
		case broker.TxWithdraw, broker.TxBuy:
			cash = cash.Sub(tx.Amount)
		}
		switch tx.Kind {
		case broker.TxBuy:
			net[tx.Symbol] = net[tx.Symbol].Add(tx.Quantity)
		case broker.TxSell:
			net[tx.Symbol] = net[tx.Symbol].Sub(tx.Quantity)
		}
	}

	snap := l.Snapshot()
	assert.True(t, cash.Equal(snap.Balance), "cash %s balance %s", cash, snap.Balance)
	for sym, q := range net {
		if q.IsZero() {
			_, ok := snap.Holdings[sym]
			assert.False(t, ok, "%s should be removed", sym)
			continue
		}
		assert.True(t, q.Equal(snap.Holdings[sym]), "%s: history %s, held %s", sym, q, snap.Holdings[sym])
	}
}

type failingJournal struct{ journal.Nop }

func (failingJournal) RecordTransaction(broker.Transaction) error {
	return errors.New("disk full")
}

func TestJournalErrorDoesNotRollBack(t *testing.T) {
	l := New(WithJournal(failingJournal{}))

	_, err := l.Deposit(d("100"))
	require.NoError(t, err)
	_, err = l.ExecuteBuy("AAPL", d("1"), d("40"))
	require.NoError(t, err)

	assertDec(t, "60", l.Balance())
	assertDec(t, "1", l.Holding("AAPL"))
	assert.Len(t, l.Transactions(), 2)
}
