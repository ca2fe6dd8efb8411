package coinbase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/shopspring/decimal"
)

type limitGTC struct {
	BaseSize   string `json:"base_size"`
	LimitPrice string `json:"limit_price"`
	PostOnly   bool   `json:"post_only"`
}

type orderConfiguration struct {
	LimitLimitGTC *limitGTC `json:"limit_limit_gtc,omitempty"`
}

type createOrderRequest struct {
	ClientOrderID      string             `json:"client_order_id"`
	ProductID          string             `json:"product_id"`
	Side               string             `json:"side"`
	OrderConfiguration orderConfiguration `json:"order_configuration"`
}

type createOrderResponse struct {
	Success         bool   `json:"success"`
	FailureReason   string `json:"failure_reason"`
	OrderID         string `json:"order_id"`
	SuccessResponse *struct {
		OrderID       string `json:"order_id"`
		ClientOrderID string `json:"client_order_id"`
	} `json:"success_response"`
	ErrorResponse *struct {
		Error                string `json:"error"`
		Message              string `json:"message"`
		ErrorDetails         string `json:"error_details"`
		PreviewFailureReason string `json:"preview_failure_reason"`
	} `json:"error_response"`
}

func (r createOrderResponse) ack() broker.OrderAck {
	if r.Success {
		id := r.OrderID
		if r.SuccessResponse != nil && r.SuccessResponse.OrderID != "" {
			id = r.SuccessResponse.OrderID
		}
		return broker.OrderAck{Success: true, BrokerOrderID: id}
	}

	reason := r.FailureReason
	if e := r.ErrorResponse; e != nil {
		switch {
		case e.Message != "":
			reason = e.Error + ": " + e.Message
		case e.PreviewFailureReason != "":
			reason = e.PreviewFailureReason
		case e.Error != "":
			reason = e.Error
		}
	}
	if reason == "" {
		reason = "rejected"
	}
	return broker.OrderAck{Success: false, FailureReason: reason}
}

// SubmitLimitOrder places a GTC limit order. A rejection by the exchange is
// reported through OrderAck; the error is reserved for requests that could not
// be completed.
func (c *Client) SubmitLimitOrder(ctx context.Context, req broker.LimitOrder) (broker.OrderAck, error) {
	if c.signer == nil {
		return broker.OrderAck{}, ErrNoCredentials
	}
	if req.ClientOrderID == "" {
		return broker.OrderAck{}, fmt.Errorf("client order id is required")
	}
	if req.Side != broker.Buy && req.Side != broker.Sell {
		return broker.OrderAck{}, fmt.Errorf("invalid side %q", req.Side)
	}
	if !req.Size.IsPositive() || !req.LimitPrice.IsPositive() {
		return broker.OrderAck{}, fmt.Errorf("size and limit price must be positive")
	}

	body := createOrderRequest{
		ClientOrderID: req.ClientOrderID,
		ProductID:     market.ProductID(req.Symbol),
		Side:          string(req.Side),
		OrderConfiguration: orderConfiguration{
			LimitLimitGTC: &limitGTC{
				BaseSize:   req.Size.String(),
				LimitPrice: req.LimitPrice.String(),
			},
		},
	}

	var resp createOrderResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/orders", nil, body, &resp); err != nil {
		return broker.OrderAck{}, fmt.Errorf("create order %s: %w", req.ClientOrderID, err)
	}
	return resp.ack(), nil
}

type apiOrder struct {
	OrderID            string `json:"order_id"`
	ProductID          string `json:"product_id"`
	Status             string `json:"status"`
	FilledSize         string `json:"filled_size"`
	AverageFilledPrice string `json:"average_filled_price"`
	LastFillTime       string `json:"last_fill_time"`
}

type getOrderResponse struct {
	Order apiOrder `json:"order"`
}

type apiFill struct {
	TradeID           string `json:"trade_id"`
	OrderID           string `json:"order_id"`
	Price             string `json:"price"`
	Size              string `json:"size"`
	TradeTime         string `json:"trade_time"`
	SequenceTimestamp string `json:"sequence_timestamp"`
}

type fillsResponse struct {
	Fills []apiFill `json:"fills"`
}

func toStatus(s string) broker.Status {
	switch s {
	case "OPEN", "QUEUED", "CANCEL_QUEUED":
		return broker.StatusOpen
	case "PENDING":
		return broker.StatusPending
	case "FILLED":
		return broker.StatusFilled
	case "CANCELLED":
		return broker.StatusCancelled
	case "EXPIRED":
		return broker.StatusExpired
	case "FAILED":
		return broker.StatusFailed
	default:
		return broker.StatusUnknown
	}
}

// OrderStatus queries one order. For filled orders, and for closed orders
// that filled in part, the fill records are fetched and aggregated.
func (c *Client) OrderStatus(ctx context.Context, brokerOrderID string) (broker.OrderState, error) {
	if c.signer == nil {
		return broker.OrderState{}, ErrNoCredentials
	}
	if brokerOrderID == "" {
		return broker.OrderState{}, fmt.Errorf("broker order id is required")
	}

	var resp getOrderResponse
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/orders/historical/"+brokerOrderID, nil, nil, &resp); err != nil {
		return broker.OrderState{}, fmt.Errorf("get order %s: %w", brokerOrderID, err)
	}

	st := broker.OrderState{BrokerOrderID: brokerOrderID, Status: toStatus(resp.Order.Status)}
	switch st.Status {
	case broker.StatusFilled:
	case broker.StatusCancelled, broker.StatusExpired, broker.StatusFailed:
		if !partiallyFilled(resp.Order) {
			return st, nil
		}
	default:
		return st, nil
	}

	fill, err := c.fill(ctx, resp.Order)
	if err != nil {
		return broker.OrderState{}, err
	}
	st.Fill = fill
	return st, nil
}

func partiallyFilled(o apiOrder) bool {
	size, err := decimal.NewFromString(o.FilledSize)
	return err == nil && size.IsPositive()
}

func (c *Client) fill(ctx context.Context, o apiOrder) (*broker.Fill, error) {
	var resp fillsResponse
	q := url.Values{"order_id": {o.OrderID}}
	if err := c.do(ctx, http.MethodGet, apiPrefix+"/orders/historical/fills", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("get fills %s: %w", o.OrderID, err)
	}
	if len(resp.Fills) > 0 {
		return aggregateFills(resp.Fills)
	}

	// No fill records yet; fall back to the order's own summary.
	size, err := decimal.NewFromString(o.FilledSize)
	if err != nil {
		return nil, fmt.Errorf("order %s: parse filled size: %w", o.OrderID, err)
	}
	price, err := decimal.NewFromString(o.AverageFilledPrice)
	if err != nil {
		return nil, fmt.Errorf("order %s: parse average price: %w", o.OrderID, err)
	}
	f := &broker.Fill{Size: size, Price: price}
	if t, err := time.Parse(time.RFC3339Nano, o.LastFillTime); err == nil {
		f.Time = t.UTC()
	}
	return f, nil
}

// aggregateFills sums partial fills into one record at the size-weighted
// average price and the time of the last fill.
func aggregateFills(fills []apiFill) (*broker.Fill, error) {
	var (
		total    decimal.Decimal
		notional decimal.Decimal
		last     time.Time
	)
	for _, f := range fills {
		size, err := decimal.NewFromString(f.Size)
		if err != nil {
			return nil, fmt.Errorf("fill %s: parse size: %w", f.TradeID, err)
		}
		price, err := decimal.NewFromString(f.Price)
		if err != nil {
			return nil, fmt.Errorf("fill %s: parse price: %w", f.TradeID, err)
		}
		total = total.Add(size)
		notional = notional.Add(size.Mul(price))

		ts := f.SequenceTimestamp
		if ts == "" {
			ts = f.TradeTime
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil && t.After(last) {
			last = t.UTC()
		}
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("fills report zero size")
	}
	return &broker.Fill{Size: total, Price: notional.Div(total), Time: last}, nil
}

type cancelRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type cancelResponse struct {
	Results []struct {
		Success       bool   `json:"success"`
		FailureReason string `json:"failure_reason"`
		OrderID       string `json:"order_id"`
	} `json:"results"`
}

// CancelOrder cancels one order through the batch cancel endpoint.
func (c *Client) CancelOrder(ctx context.Context, brokerOrderID string) (bool, error) {
	if c.signer == nil {
		return false, ErrNoCredentials
	}
	if brokerOrderID == "" {
		return false, fmt.Errorf("broker order id is required")
	}

	var resp cancelResponse
	body := cancelRequest{OrderIDs: []string{brokerOrderID}}
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/orders/batch_cancel", nil, body, &resp); err != nil {
		return false, fmt.Errorf("cancel order %s: %w", brokerOrderID, err)
	}
	for _, r := range resp.Results {
		if r.OrderID != brokerOrderID && r.OrderID != "" {
			continue
		}
		if !r.Success {
			c.logger.WarnContext(ctx, "cancel rejected",
				slog.String("broker_order_id", brokerOrderID),
				slog.String("reason", r.FailureReason),
			)
		}
		return r.Success, nil
	}
	return false, fmt.Errorf("cancel order %s: no result returned", brokerOrderID)
}
