// Package signal turns a prediction and the current position into a trade
// decision, and trails the exit levels of winning LONG positions.
package signal

import (
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/risk"
	"github.com/rustyeddy/cryptobot/state"
	"github.com/shopspring/decimal"
)

type Signal int

const (
	Hold Signal = iota
	Buy
	Sell
)

func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// Side maps BUY and SELL to an order side. HOLD has none.
func (s Signal) Side() (broker.Side, bool) {
	switch s {
	case Buy:
		return broker.Buy, true
	case Sell:
		return broker.Sell, true
	default:
		return "", false
	}
}

// Decision is a signal plus the rule that produced it.
type Decision struct {
	Signal Signal
	Reason string
}

// Evaluate applies the trading rules. A stop-loss breach wins over the
// prediction.
func Evaluate(prediction int, pos state.Position, price decimal.Decimal) Decision {
	if !pos.IsOpen() {
		if prediction == 1 {
			return Decision{Buy, "no position, prediction up"}
		}
		return Decision{Hold, "no position, prediction down"}
	}

	switch pos.Direction {
	case state.Long:
		if price.LessThanOrEqual(pos.StopLossPrice) {
			return Decision{Sell, "stop loss hit"}
		}
		if prediction == 1 {
			return Decision{Hold, "long, prediction up"}
		}
		return Decision{Sell, "long, prediction down"}
	default:
		if price.GreaterThanOrEqual(pos.StopLossPrice) {
			return Decision{Buy, "stop loss hit"}
		}
		if prediction == 1 {
			return Decision{Buy, "flat, prediction up"}
		}
		return Decision{Hold, "flat, prediction down"}
	}
}

// Decide is Evaluate without the reason.
func Decide(prediction int, pos state.Position, price decimal.Decimal) Signal {
	return Evaluate(prediction, pos, price).Signal
}

// Ratchet moves the profit target and stop loss of an open LONG position up
// to price·(1+tp) and price·(1−sl) once price trades above the target.
// Levels never move down. It reports whether pos changed.
func Ratchet(pos *state.Position, price decimal.Decimal, lv risk.Levels, places int32, now time.Time) bool {
	if !pos.IsOpen() || pos.Direction != state.Long || !price.GreaterThan(pos.ProfitTarget) {
		return false
	}
	target, stop := risk.Targets(broker.Buy, price, lv, places)
	changed := false
	if target.GreaterThan(pos.ProfitTarget) {
		pos.ProfitTarget = target
		changed = true
	}
	if stop.GreaterThan(pos.StopLossPrice) {
		pos.StopLossPrice = stop
		changed = true
	}
	if changed {
		pos.UpdatedAt = now
	}
	return changed
}
