package market

import "github.com/shopspring/decimal"

// Snapshot is everything the signal pipeline reads about one symbol in one
// cycle. It is never persisted.
type Snapshot struct {
	Symbol         string
	Candles        Candles
	Quote          Quote
	SizeIncrement  int32
	PriceIncrement int32
}

// Mid is the limit price for orders placed from this snapshot.
func (s Snapshot) Mid() decimal.Decimal {
	return s.Quote.Mid(s.PriceIncrement)
}

// LastClose returns the newest close, or 0 for an empty series.
func (s Snapshot) LastClose() float64 {
	c, ok := s.Candles.Last()
	if !ok {
		return 0
	}
	return c.Close
}
