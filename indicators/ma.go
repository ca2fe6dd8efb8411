package indicators

import (
	"fmt"

	"github.com/rustyeddy/cryptobot/market"
)

func checkPeriod(n, period int) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %d", period)
	}
	if n < period {
		return fmt.Errorf("not enough candles: need %d, got %d", period, n)
	}
	return nil
}

// MA is the Simple Moving Average of the last period closes.
func MA(candles market.Candles, period int) (float64, error) {
	if err := checkPeriod(len(candles), period); err != nil {
		return 0, err
	}
	v, _ := Run(NewMA(period), candles[len(candles)-period:])
	return v, nil
}

// EMA is the Exponential Moving Average of every close, seeded with the SMA
// of the first period candles.
func EMA(candles market.Candles, period int) (float64, error) {
	if err := checkPeriod(len(candles), period); err != nil {
		return 0, err
	}
	v, _ := Run(NewEMA(period), candles)
	return v, nil
}
