// Package broker defines the brokerage capability surface the trading loop
// consumes. Implementations live in broker/coinbase (live and sandbox REST)
// and broker/paper (simulated account over real market data).
package broker

import (
	"context"
	"time"

	"github.com/rustyeddy/cryptobot/market"
	"github.com/shopspring/decimal"
)

type Gateway interface {
	AccountReader
	MarketData
	OrderRouter
}

// AccountReader returns the quote-currency balance available for trading.
type AccountReader interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

type MarketData interface {
	Candles(ctx context.Context, symbol string, start, end time.Time, g market.Granularity) (market.Candles, error)
	BestBidAsk(ctx context.Context, symbol string) (market.Quote, error)
	// SizeIncrement returns the number of decimal places allowed in the
	// base-asset size.
	SizeIncrement(ctx context.Context, symbol string) (int32, error)
	PriceIncrement(ctx context.Context, symbol string) (int32, error)
}

type OrderRouter interface {
	SubmitLimitOrder(ctx context.Context, req LimitOrder) (OrderAck, error)
	OrderStatus(ctx context.Context, brokerOrderID string) (OrderState, error)
	CancelOrder(ctx context.Context, brokerOrderID string) (bool, error)
}

// ProductLister is implemented by gateways that can enumerate tradable pairs.
type ProductLister interface {
	Products(ctx context.Context, quote string) ([]market.Product, error)
}

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// LimitOrder is a good-til-cancelled limit order request.
type LimitOrder struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Size          decimal.Decimal
	LimitPrice    decimal.Decimal
}

type OrderAck struct {
	Success       bool
	BrokerOrderID string
	// FailureReason is set when Success is false.
	FailureReason string
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusOpen      Status = "OPEN"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusFailed    Status = "FAILED"
	StatusUnknown   Status = "UNKNOWN"
)

// Terminal reports whether the order can no longer fill.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusExpired, StatusFailed:
		return true
	}
	return false
}

type Fill struct {
	Size  decimal.Decimal
	Price decimal.Decimal
	Time  time.Time
}

// OrderState is the brokerage view of one order. Fill is set when Status is
// StatusFilled, and for a cancelled, expired or failed order that filled in
// part before it closed.
type OrderState struct {
	BrokerOrderID string
	Status        Status
	Fill          *Fill
}
