package market

import (
	"fmt"
	"strings"
)

// QuoteCurrency is the currency every configured symbol trades against.
const QuoteCurrency = "USD"

// Product describes a spot pair as listed by the exchange.
type Product struct {
	ID             string // "BTC-USD"
	Base           string // "BTC"
	Quote          string // "USD"
	BaseIncrement  string // "0.00000001"
	PriceIncrement string // "0.01"
	Disabled       bool
}

// ProductID maps a configured symbol ("btc") to the exchange product id
// ("BTC-USD").
func ProductID(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol)) + "-" + QuoteCurrency
}

// SplitProductID is the inverse of ProductID for any quote currency.
func SplitProductID(id string) (base, quote string, err error) {
	parts := strings.Split(id, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed product id %q", id)
	}
	return parts[0], parts[1], nil
}

// IncrementPlaces converts an increment string such as "0.00001" into its
// number of decimal places (5). Whole-number increments ("1") yield 0.
func IncrementPlaces(increment string) (int32, error) {
	s := strings.TrimSpace(increment)
	if s == "" {
		return 0, fmt.Errorf("empty increment")
	}
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0, nil
	}
	frac := strings.TrimRight(s[dot+1:], "0")
	if strings.Trim(s[:dot], "0") == "" && frac == "" {
		return 0, fmt.Errorf("zero increment %q", increment)
	}
	return int32(len(frac)), nil
}
