package risk

import (
	"github.com/rustyeddy/cryptobot/broker"
	"github.com/shopspring/decimal"
)

// Targets returns the take-profit and stop-loss prices for an order at entry.
// BUY targets sit above entry and stops below; SELL inverts both. Targets
// are rounded to places decimals. Stops are rounded away from entry so a
// stop never sits inside the stop-loss percentage.
func Targets(side broker.Side, entry decimal.Decimal, lv Levels, places int32) (target, stop decimal.Decimal) {
	if side == broker.Sell {
		target = entry.Mul(one.Sub(lv.TakeProfit)).Round(places)
		stop = entry.Mul(one.Add(lv.StopLoss)).RoundCeil(places)
		return target, stop
	}
	target = entry.Mul(one.Add(lv.TakeProfit)).Round(places)
	stop = entry.Mul(one.Sub(lv.StopLoss)).RoundFloor(places)
	return target, stop
}

// Notional is size*price in quote currency.
func Notional(size, price decimal.Decimal) decimal.Decimal {
	return size.Mul(price)
}

// RR is the reward to risk ratio of a trade; zero when risk is zero.
func RR(entry, stop, target decimal.Decimal) decimal.Decimal {
	r := entry.Sub(stop).Abs()
	if r.IsZero() {
		return decimal.Zero
	}
	return target.Sub(entry).Abs().Div(r)
}
