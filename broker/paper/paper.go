// Package paper is a simulated brokerage account. Market data comes from a
// real source; balances, holdings and fills are simulated. Resting limit
// orders fill at their limit price once the book crosses them.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/rustyeddy/cryptobot/pkg/id"
	"github.com/shopspring/decimal"
)

type Config struct {
	Data broker.MarketData
	Cash decimal.Decimal // starting quote currency balance
	// Holdings seeds base currency balances, e.g. for positions opened
	// before switching to paper trading.
	Holdings map[string]decimal.Decimal
	Now      func() time.Time
	Logger   *slog.Logger
}

type order struct {
	req     broker.LimitOrder
	id      string
	status  broker.Status
	fill    *broker.Fill
	created time.Time
}

type Gateway struct {
	broker.MarketData

	mu       sync.Mutex
	cash     decimal.Decimal
	holdings map[string]decimal.Decimal
	orders   map[string]*order
	clients  map[string]string // client order id -> order id
	ids      *id.Generator
	now      func() time.Time
	logger   *slog.Logger
}

func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Data == nil {
		return nil, fmt.Errorf("paper: market data source is required")
	}
	if cfg.Cash.IsNegative() {
		return nil, fmt.Errorf("paper: starting cash must not be negative")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	holdings := make(map[string]decimal.Decimal, len(cfg.Holdings))
	for sym, qty := range cfg.Holdings {
		holdings[sym] = qty
	}
	return &Gateway{
		MarketData: cfg.Data,
		cash:       cfg.Cash,
		holdings:   holdings,
		orders:     make(map[string]*order),
		clients:    make(map[string]string),
		ids:        id.NewGenerator(now),
		now:        now,
		logger:     logger.With(slog.String("component", "paper")),
	}, nil
}

// Balance returns cash not reserved by resting buy orders.
func (g *Gateway) Balance(ctx context.Context) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cash, nil
}

// Holding returns the simulated base currency balance for symbol.
func (g *Gateway) Holding(symbol string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.holdings[symbol]
}

func reject(reason string) broker.OrderAck {
	return broker.OrderAck{Success: false, FailureReason: reason}
}

func (g *Gateway) SubmitLimitOrder(ctx context.Context, req broker.LimitOrder) (broker.OrderAck, error) {
	if req.ClientOrderID == "" {
		return broker.OrderAck{}, fmt.Errorf("client order id is required")
	}
	if req.Side != broker.Buy && req.Side != broker.Sell {
		return broker.OrderAck{}, fmt.Errorf("invalid side %q", req.Side)
	}
	if !req.Size.IsPositive() || !req.LimitPrice.IsPositive() {
		return reject("INVALID_SIZE_OR_PRICE"), nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, dup := g.clients[req.ClientOrderID]; dup {
		return reject("DUPLICATE_CLIENT_ORDER_ID"), nil
	}

	notional := req.Size.Mul(req.LimitPrice)
	switch req.Side {
	case broker.Buy:
		if notional.GreaterThan(g.cash) {
			return reject("INSUFFICIENT_FUND"), nil
		}
		g.cash = g.cash.Sub(notional)
	case broker.Sell:
		if req.Size.GreaterThan(g.holdings[req.Symbol]) {
			return reject("INSUFFICIENT_FUND"), nil
		}
		g.holdings[req.Symbol] = g.holdings[req.Symbol].Sub(req.Size)
	}

	oid, err := g.ids.Next()
	if err != nil {
		return broker.OrderAck{}, err
	}
	g.orders[oid] = &order{req: req, id: oid, status: broker.StatusOpen, created: g.now()}
	g.clients[req.ClientOrderID] = oid

	g.logger.InfoContext(ctx, "order accepted",
		slog.String("broker_order_id", oid),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("size", req.Size.String()),
		slog.String("limit_price", req.LimitPrice.String()),
	)
	return broker.OrderAck{Success: true, BrokerOrderID: oid}, nil
}

// OrderStatus re-checks a resting order against the current book.
func (g *Gateway) OrderStatus(ctx context.Context, brokerOrderID string) (broker.OrderState, error) {
	g.mu.Lock()
	o, ok := g.orders[brokerOrderID]
	if !ok {
		g.mu.Unlock()
		return broker.OrderState{}, fmt.Errorf("paper: order %q not found", brokerOrderID)
	}
	if o.status.Terminal() {
		st := o.state()
		g.mu.Unlock()
		return st, nil
	}
	symbol := o.req.Symbol
	g.mu.Unlock()

	// Quote outside the lock; the source may block on the network.
	q, err := g.MarketData.BestBidAsk(ctx, symbol)
	if err != nil {
		return broker.OrderState{}, fmt.Errorf("paper: quote %s: %w", symbol, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if o.status.Terminal() {
		return o.state(), nil
	}
	if crosses(o.req, q) {
		g.fillLocked(o)
	}
	return o.state(), nil
}

func crosses(req broker.LimitOrder, q market.Quote) bool {
	if req.Side == broker.Buy {
		return q.Ask.IsPositive() && q.Ask.LessThanOrEqual(req.LimitPrice)
	}
	return q.Bid.IsPositive() && q.Bid.GreaterThanOrEqual(req.LimitPrice)
}

func (g *Gateway) fillLocked(o *order) {
	o.status = broker.StatusFilled
	o.fill = &broker.Fill{Size: o.req.Size, Price: o.req.LimitPrice, Time: g.now()}

	switch o.req.Side {
	case broker.Buy:
		g.holdings[o.req.Symbol] = g.holdings[o.req.Symbol].Add(o.req.Size)
	case broker.Sell:
		g.cash = g.cash.Add(o.req.Size.Mul(o.req.LimitPrice))
	}
}

func (o *order) state() broker.OrderState {
	st := broker.OrderState{BrokerOrderID: o.id, Status: o.status}
	if o.fill != nil {
		f := *o.fill
		st.Fill = &f
	}
	return st
}

// CancelOrder cancels a resting order and releases what it reserved.
// Terminal orders cannot be cancelled.
func (g *Gateway) CancelOrder(ctx context.Context, brokerOrderID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	o, ok := g.orders[brokerOrderID]
	if !ok {
		return false, fmt.Errorf("paper: order %q not found", brokerOrderID)
	}
	if o.status.Terminal() {
		return false, nil
	}

	o.status = broker.StatusCancelled
	switch o.req.Side {
	case broker.Buy:
		g.cash = g.cash.Add(o.req.Size.Mul(o.req.LimitPrice))
	case broker.Sell:
		g.holdings[o.req.Symbol] = g.holdings[o.req.Symbol].Add(o.req.Size)
	}
	g.logger.InfoContext(ctx, "order cancelled", slog.String("broker_order_id", brokerOrderID))
	return true, nil
}

var _ broker.Gateway = (*Gateway)(nil)
