package market

import (
	"fmt"
	"time"
)

// Granularity is a candle width as named by the Coinbase Advanced Trade API.
type Granularity string

const (
	OneMinute     Granularity = "ONE_MINUTE"
	FiveMinute    Granularity = "FIVE_MINUTE"
	FifteenMinute Granularity = "FIFTEEN_MINUTE"
	ThirtyMinute  Granularity = "THIRTY_MINUTE"
	OneHour       Granularity = "ONE_HOUR"
	TwoHour       Granularity = "TWO_HOUR"
	SixHour       Granularity = "SIX_HOUR"
	OneDay        Granularity = "ONE_DAY"
)

var granularities = map[Granularity]time.Duration{
	OneMinute:     time.Minute,
	FiveMinute:    5 * time.Minute,
	FifteenMinute: 15 * time.Minute,
	ThirtyMinute:  30 * time.Minute,
	OneHour:       time.Hour,
	TwoHour:       2 * time.Hour,
	SixHour:       6 * time.Hour,
	OneDay:        24 * time.Hour,
}

// Duration returns the width of one candle.
func (g Granularity) Duration() (time.Duration, error) {
	d, ok := granularities[g]
	if !ok {
		return 0, fmt.Errorf("unsupported granularity: %q", string(g))
	}
	return d, nil
}

// ParseGranularity validates a granularity name.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	if _, err := g.Duration(); err != nil {
		return "", err
	}
	return g, nil
}
