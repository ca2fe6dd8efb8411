package backtest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/rustyeddy/cryptobot/predict"
	"github.com/rustyeddy/cryptobot/risk"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func series(closes ...float64) market.Candles {
	cs := make(market.Candles, len(closes))
	for i, c := range closes {
		cs[i] = market.Candle{Time: t0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return cs
}

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

type predictorFunc func(snap market.Snapshot) int

func (p predictorFunc) Predict(_ context.Context, snap market.Snapshot) (int, error) {
	return p(snap), nil
}

func always(v int) predictorFunc { return func(market.Snapshot) int { return v } }

func policy(decimal.Decimal) risk.Policy {
	return risk.Policy{
		MaxTradeAmount:    d("100"),
		PositionSizeLimit: d("1"),
		Levels:            risk.LevelsFromPercent(5, 5),
	}
}

var noFee = decimal.Zero

func newRunner(p predict.Predictor, closes ...float64) *Runner {
	return &Runner{
		Symbol:         "BTC",
		Candles:        series(closes...),
		Predictor:      p,
		Policy:         policy,
		Cash:           d("1000"),
		SizeIncrement:  8,
		PriceIncrement: 2,
		Options:        RunnerOptions{Warmup: 5, FeeRate: &noFee},
	}
}

func TestRunner_RatchetThenSell(t *testing.T) {
	t.Parallel()
	pred := predictorFunc(func(s market.Snapshot) int {
		if s.LastClose() == 112 {
			return 0
		}
		return 1
	})
	r := newRunner(pred, append(flat(6, 100), 110, 112)...)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Fills, 2)
	assert.Equal(t, broker.Buy, res.Fills[0].Side)
	assert.True(t, res.Fills[0].Size.Equal(d("1")))
	assert.Equal(t, broker.Sell, res.Fills[1].Side)
	assert.Equal(t, "long, prediction down", res.Fills[1].Reason)
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, 1, res.Wins)
	assert.True(t, res.Balance.Equal(d("1012")), res.Balance.String())
	assert.True(t, res.Equity.Equal(res.Balance))
	assert.False(t, res.Final.IsOpen())
	assert.Equal(t, 100.0, res.WinRate())
}

func TestRunner_StopLoss(t *testing.T) {
	t.Parallel()
	r := newRunner(always(1), append(flat(6, 100), 90)...)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Fills, 2)
	assert.Equal(t, "stop loss hit", res.Fills[1].Reason)
	assert.Equal(t, 1, res.Losses)
	assert.True(t, res.Balance.Equal(d("990")))
	assert.True(t, res.NetPL().Equal(d("-10")))
}

func TestRunner_OpenAtEnd(t *testing.T) {
	t.Parallel()

	t.Run("marked to market", func(t *testing.T) {
		t.Parallel()
		res, err := newRunner(always(1), append(flat(6, 100), 101)...).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, res.Trades)
		assert.True(t, res.Balance.Equal(d("900")))
		assert.True(t, res.Equity.Equal(d("1001")))
		assert.True(t, res.Final.IsOpen())
		assert.Equal(t, state.Long, res.Final.Direction)
	})

	t.Run("closed at end", func(t *testing.T) {
		t.Parallel()
		r := newRunner(always(1), append(flat(6, 100), 101)...)
		r.Options.CloseEnd = true
		res, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, res.Trades)
		assert.Equal(t, "end of replay", res.Fills[1].Reason)
		assert.True(t, res.Balance.Equal(d("1001")))
	})
}

func TestRunner_DefaultTakerFee(t *testing.T) {
	t.Parallel()
	r := newRunner(always(1), flat(7, 100)...)
	r.Options.FeeRate = nil

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	assert.True(t, res.Fills[0].Fee.Equal(d("0.8")))
	assert.True(t, res.Balance.Equal(d("899.2")))
	assert.True(t, res.Fees.Equal(d("0.8")))
}

func TestRunner_BalanceBelowMaxTrade(t *testing.T) {
	t.Parallel()
	r := newRunner(always(1), flat(8, 100)...)
	r.Cash = d("50")

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Fills)
	assert.True(t, res.Equity.Equal(d("50")))
}

type predictorErr struct{}

func (predictorErr) Predict(context.Context, market.Snapshot) (int, error) {
	return 0, errors.New("boom")
}

func TestRunner_Validation(t *testing.T) {
	t.Parallel()

	_, err := newRunner(nil, flat(10, 1)...).Run(context.Background())
	assert.ErrorContains(t, err, "Predictor is required")

	_, err = newRunner(always(1), flat(5, 1)...).Run(context.Background())
	assert.ErrorContains(t, err, "need more than 5")

	failing := &Runner{
		Candles:   series(flat(10, 1)...),
		Predictor: predictorErr{},
		Policy:    policy,
		Options:   RunnerOptions{Warmup: 5},
	}
	_, err = failing.Run(context.Background())
	assert.ErrorContains(t, err, "predict at 2026-01-06")
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newRunner(always(1), flat(10, 100)...).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrintResult(t *testing.T) {
	t.Parallel()
	res, err := newRunner(always(1), append(flat(6, 100), 101)...).Run(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintResult(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Symbol:        BTC")
	assert.Contains(t, out, "Equity:        1001.00")
	assert.Contains(t, out, "Return:        0.10%")
	assert.Contains(t, out, "Open:          open LONG")
}
