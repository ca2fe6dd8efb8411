package market

import (
	"fmt"
	"sort"
	"time"
)

// Candle is one OHLCV bar. Time is the bar's start.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Candles is a price series ordered oldest first.
type Candles []Candle

// Sort orders the series by start time, oldest first. The brokerage returns
// candles newest first.
func (cs Candles) Sort() {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].Time.Before(cs[j].Time) })
}

// Closes returns the close prices in series order.
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Last returns the newest candle.
func (cs Candles) Last() (Candle, bool) {
	if len(cs) == 0 {
		return Candle{}, false
	}
	return cs[len(cs)-1], true
}

// Validate reports an empty series, a bar with a non-positive close, or a
// series that is not strictly ordered by time.
func (cs Candles) Validate() error {
	if len(cs) == 0 {
		return fmt.Errorf("no candles")
	}
	for i, c := range cs {
		if c.Close <= 0 {
			return fmt.Errorf("candle %d (%s): close must be positive", i, c.Time.Format(time.RFC3339))
		}
		if i > 0 && !cs[i-1].Time.Before(c.Time) {
			return fmt.Errorf("candle %d (%s): out of order", i, c.Time.Format(time.RFC3339))
		}
	}
	return nil
}
