package risk

import (
	"errors"
	"testing"

	"github.com/rustyeddy/papertrade/broker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func codes(dec Decision) []string {
	var out []string
	for _, v := range dec.Violations {
		out = append(out, v.Code)
	}
	return out
}

func TestZeroPolicyAllowsEverything(t *testing.T) {
	t.Parallel()

	var p Policy
	assert.False(t, p.Enabled())

	dec := Evaluate(p, Intent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: d("1000000"), Price: d("150")}, AccountSnapshot{})
	assert.True(t, dec.Allowed)
	assert.NoError(t, dec.Err())
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	acct := AccountSnapshot{Balance: d("1000"), Equity: d("1000"), OpenOrders: 2}

	tests := []struct {
		name   string
		policy Policy
		intent Intent
		acct   AccountSnapshot
		want   []string
	}{
		{
			name:   "notional within limit",
			policy: Policy{MaxOrderNotional: d("750")},
			intent: Intent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: d("5"), Price: d("150")},
			acct:   acct,
		},
		{
			name:   "notional too high",
			policy: Policy{MaxOrderNotional: d("749.99")},
			intent: Intent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: d("5"), Price: d("150")},
			acct:   acct,
			want:   []string{CodeNotionalTooHigh},
		},
		{
			name:   "open orders only limits conditional orders",
			policy: Policy{MaxOpenOrders: 2},
			intent: Intent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: d("1"), Price: d("150")},
			acct:   acct,
		},
		{
			name:   "too many open orders",
			policy: Policy{MaxOpenOrders: 2},
			intent: Intent{Symbol: "AAPL", Side: broker.SideSell, Quantity: d("1"), Price: d("150"), StopLoss: dp("140")},
			acct:   acct,
			want:   []string{CodeTooManyOpenOrders},
		},
		{
			name:   "position too large counts existing holding",
			policy: Policy{MaxPositionPct: d("0.5")},
			intent: Intent{Symbol: "AAPL", Side: broker.SideBuy, Quantity: d("2"), Price: d("150")},
			acct:   AccountSnapshot{Equity: d("1000"), Holding: d("2")},
			want:   []string{CodePositionTooLarge},
		},
		{
			name:   "sells never grow a position",
			policy: Policy{MaxPositionPct: d("0.01")},
			intent: Intent{Symbol: "AAPL", Side: broker.SideSell, Quantity: d("2"), Price: d("150")},
			acct:   acct,
		},
		{
			name:   "risk too high",
			policy: Policy{MaxRiskPct: d("0.01")},
			intent: Intent{Symbol: "AAPL", Side: broker.SideSell, Quantity: d("2"), Price: d("150"), StopLoss: dp("140")},
			acct:   acct,
			want:   []string{CodeRiskTooHigh},
		},
		{
			name:   "rr too low",
			policy: Policy{MinRR: d("1.5")},
			intent: Intent{Symbol: "AAPL", Side: broker.SideSell, Quantity: d("1"), Price: d("150"), StopLoss: dp("140"), TakeProfit: dp("160")},
			acct:   acct,
			want:   []string{CodeRRTooLow},
		},
		{
			name: "every violation is reported",
			policy: Policy{
				MaxOrderNotional: d("100"),
				MaxOpenOrders:    1,
				MaxRiskPct:       d("0.001"),
				MinRR:            d("3"),
			},
			intent: Intent{Symbol: "AAPL", Side: broker.SideSell, Quantity: d("1"), Price: d("150"), StopLoss: dp("140"), TakeProfit: dp("160")},
			acct:   acct,
			want:   []string{CodeNotionalTooHigh, CodeTooManyOpenOrders, CodeRiskTooHigh, CodeRRTooLow},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dec := Evaluate(tt.policy, tt.intent, tt.acct)
			assert.Equal(t, tt.want, codes(dec))
			assert.Equal(t, len(tt.want) == 0, dec.Allowed)
			if len(tt.want) > 0 {
				require.Error(t, dec.Err())
				assert.True(t, errors.Is(dec.Err(), broker.ErrValidation))
				assert.Contains(t, dec.Err().Error(), tt.want[0])
			}
		})
	}
}

func TestDecisionReportsPlannedRisk(t *testing.T) {
	t.Parallel()

	dec := Evaluate(Policy{}, Intent{
		Symbol: "AAPL", Side: broker.SideSell, Quantity: d("2"), Price: d("150"),
		StopLoss: dp("140"), TakeProfit: dp("180"),
	}, AccountSnapshot{Equity: d("1000")})

	assert.True(t, dec.PlannedRisk.Equal(d("20")))
	assert.True(t, dec.PlannedRiskPct.Equal(d("0.02")))
	assert.True(t, dec.PlannedRR.Equal(d("3")))
}
