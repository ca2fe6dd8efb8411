// Package indicators provides technical analysis indicators over candle
// closes.
package indicators

import "github.com/rustyeddy/cryptobot/market"

// Indicator folds closed candles into one value. Value is 0 until Warmup
// candles have been seen.
type Indicator interface {
	Name() string // "EMA(15)"
	Warmup() int
	Reset()
	Update(c market.Candle)
	Ready() bool
	Value() float64
}

// Run feeds every candle to ind and returns its final value.
func Run(ind Indicator, candles market.Candles) (float64, bool) {
	ind.Reset()
	for _, c := range candles {
		ind.Update(c)
	}
	return ind.Value(), ind.Ready()
}
