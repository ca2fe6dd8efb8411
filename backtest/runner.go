// Package backtest replays a candle history through the live decision rules:
// the predictor, the signal table, the ratchet and the sizer. Orders fill at
// the candle close on the bar they are placed.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/journal"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/rustyeddy/cryptobot/predict"
	"github.com/rustyeddy/cryptobot/risk"
	"github.com/rustyeddy/cryptobot/signal"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
)

// RunnerOptions controls how the runner behaves.
type RunnerOptions struct {
	// Warmup is the number of candles the predictor sees before the first
	// decision. Zero means the predictor's default period.
	Warmup int
	// CloseEnd sells an open position at the last close.
	CloseEnd bool
	// FeeRate is charged on every fill's notional. Nil means the journal's
	// taker fee; use decimal.Zero for none.
	FeeRate *decimal.Decimal
}

// Runner replays one symbol.
type Runner struct {
	Symbol         string
	Candles        market.Candles
	Predictor      predict.Predictor
	Policy         func(price decimal.Decimal) risk.Policy
	Cash           decimal.Decimal
	SizeIncrement  int32
	PriceIncrement int32
	Options        RunnerOptions
}

// Fill is one simulated execution.
type Fill struct {
	Time   time.Time
	Side   broker.Side
	Size   decimal.Decimal
	Price  decimal.Decimal
	Fee    decimal.Decimal
	Reason string
}

// Result is a lightweight summary of a backtest run.
type Result struct {
	Symbol       string
	StartBalance decimal.Decimal
	Balance      decimal.Decimal // cash at the end
	Equity       decimal.Decimal // cash plus holdings at the last close
	Fees         decimal.Decimal

	Trades int // closed round trips
	Wins   int
	Losses int

	Fills []Fill
	Final state.Position

	Start time.Time
	End   time.Time
}

// NetPL is equity minus the starting balance.
func (r Result) NetPL() decimal.Decimal { return r.Equity.Sub(r.StartBalance) }

// WinRate is wins over closed trades in percent.
func (r Result) WinRate() float64 {
	if r.Trades == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.Trades) * 100
}

// Run executes the replay loop:
//  1. predict on every candle up to the current one
//  2. evaluate the signal against the simulated position
//  3. ratchet on HOLD, fill BUY and SELL at the close
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Predictor == nil {
		return Result{}, errors.New("backtest: Predictor is required")
	}
	if r.Policy == nil {
		return Result{}, errors.New("backtest: Policy is required")
	}
	warmup := r.Options.Warmup
	if warmup <= 0 {
		warmup = predict.DefaultPeriod
	}
	if len(r.Candles) <= warmup {
		return Result{}, fmt.Errorf("backtest: %d candles, need more than %d", len(r.Candles), warmup)
	}
	feeRate := journal.TakerFeeRate
	if r.Options.FeeRate != nil {
		feeRate = *r.Options.FeeRate
	}

	res := Result{
		Symbol:       r.Symbol,
		StartBalance: r.Cash,
		Start:        r.Candles[0].Time,
		End:          r.Candles[len(r.Candles)-1].Time,
	}
	cash := r.Cash
	pos := state.ClosedPosition()
	var price decimal.Decimal

	sell := func(t time.Time, reason string) {
		notional := pos.Size.Mul(price)
		fee := notional.Mul(feeRate).Round(2)
		cash = cash.Add(notional).Sub(fee)
		res.Fees = res.Fees.Add(fee)
		res.Fills = append(res.Fills, Fill{Time: t, Side: broker.Sell, Size: pos.Size, Price: price, Fee: fee, Reason: reason})
		res.Trades++
		if price.GreaterThan(pos.EntryPrice) {
			res.Wins++
		} else if price.LessThan(pos.EntryPrice) {
			res.Losses++
		}
		pos = state.ClosedPosition()
		pos.UpdatedAt = t
	}

	for i := warmup; i < len(r.Candles); i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		c := r.Candles[i]
		price = decimal.NewFromFloat(c.Close).Round(r.PriceIncrement)
		snap := market.Snapshot{
			Symbol:         r.Symbol,
			Candles:        r.Candles[:i+1],
			SizeIncrement:  r.SizeIncrement,
			PriceIncrement: r.PriceIncrement,
		}
		pred, err := r.Predictor.Predict(ctx, snap)
		if err != nil {
			return Result{}, fmt.Errorf("backtest: predict at %s: %w", c.Time.Format(time.DateOnly), err)
		}

		pol := r.Policy(price)
		dec := signal.Evaluate(pred, pos, price)
		switch dec.Signal {
		case signal.Hold:
			signal.Ratchet(&pos, price, pol.Levels, r.PriceIncrement, c.Time)

		case signal.Buy:
			size := risk.Size(risk.SizeInputs{
				Policy:        pol,
				Balance:       cash,
				Price:         price,
				SizeIncrement: r.SizeIncrement,
				Open:          pos.IsOpen(),
				OpenSize:      pos.Size,
			})
			notional := size.Mul(price)
			fee := notional.Mul(feeRate).Round(2)
			if !size.IsPositive() || notional.Add(fee).GreaterThan(cash) {
				continue
			}
			cash = cash.Sub(notional).Sub(fee)
			res.Fees = res.Fees.Add(fee)
			res.Fills = append(res.Fills, Fill{Time: c.Time, Side: broker.Buy, Size: size, Price: price, Fee: fee, Reason: dec.Reason})
			target, stop := risk.Targets(broker.Buy, price, pol.Levels, r.PriceIncrement)
			pos = state.Position{
				Status:        state.Open,
				Direction:     state.Long,
				EntryPrice:    price,
				Size:          size,
				ProfitTarget:  target,
				StopLossPrice: stop,
				UpdatedAt:     c.Time,
			}

		case signal.Sell:
			if pos.IsOpen() && pos.Direction == state.Long {
				sell(c.Time, dec.Reason)
			}
		}
	}

	if r.Options.CloseEnd && pos.IsOpen() {
		sell(res.End, "end of replay")
	}

	res.Balance = cash
	res.Equity = cash
	if pos.IsOpen() {
		res.Equity = cash.Add(pos.Size.Mul(price))
	}
	res.Final = pos
	return res, nil
}
