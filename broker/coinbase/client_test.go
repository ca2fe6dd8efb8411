package coinbase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyName = "organizations/org-1/apiKeys/key-1"

func testKey(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})), key
}

// newTestClient points an authenticated client at a mock server. Retries
// are immediate.
func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *ecdsa.PrivateKey) {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	secret, key := testKey(t)
	c, err := NewClient(Config{
		BaseURL:   server.URL,
		APIKey:    testKeyName,
		APISecret: secret,
		Timeout:   5 * time.Second,
		Retry:     RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
	})
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, key
}

func newPublicClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	c, err := NewClient(Config{BaseURL: server.URL, Retry: RetryPolicy{MaxAttempts: 1}})
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestNewClient(t *testing.T) {
	t.Run("live mode", func(t *testing.T) {
		c, err := NewClient(Config{})
		require.NoError(t, err)
		assert.Equal(t, LiveURL, c.baseURL)
		assert.Equal(t, "api.coinbase.com", c.host)
		assert.False(t, c.Authenticated())
		assert.NotNil(t, c.httpClient)
	})

	t.Run("sandbox mode", func(t *testing.T) {
		c, err := NewClient(Config{Sandbox: true})
		require.NoError(t, err)
		assert.Equal(t, SandboxURL, c.baseURL)
	})

	t.Run("credentials", func(t *testing.T) {
		secret, _ := testKey(t)
		c, err := NewClient(Config{APIKey: testKeyName, APISecret: strings.ReplaceAll(secret, "\n", `\n`)})
		require.NoError(t, err)
		assert.True(t, c.Authenticated())
	})

	t.Run("bad secret", func(t *testing.T) {
		_, err := NewClient(Config{APIKey: testKeyName, APISecret: "not a key"})
		assert.Error(t, err)
	})

	t.Run("secret without key name", func(t *testing.T) {
		secret, _ := testKey(t)
		_, err := NewClient(Config{APISecret: secret})
		assert.Error(t, err)
	})
}

func TestBalance_Paginated(t *testing.T) {
	var calls atomic.Int32
	var client *Client
	var key *ecdsa.PrivateKey

	client, key = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v3/brokerage/accounts", r.URL.Path)

		// Verify the bearer token is bound to this request.
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return &key.PublicKey, nil })
		require.NoError(t, err)
		claims := tok.Claims.(jwt.MapClaims)
		assert.Equal(t, testKeyName, claims["sub"])
		assert.Equal(t, "cdp", claims["iss"])
		assert.Equal(t, "GET "+client.host+"/api/v3/brokerage/accounts", claims["uri"])
		assert.Equal(t, testKeyName, tok.Header["kid"])
		assert.NotEmpty(t, tok.Header["nonce"])

		if r.URL.Query().Get("cursor") == "" {
			writeJSON(t, w, accountsResponse{
				Accounts: []apiAccount{{Currency: "BTC", AvailableBalance: money{Value: "0.5", Currency: "BTC"}}},
				HasNext:  true,
				Cursor:   "page-2",
			})
			return
		}
		assert.Equal(t, "page-2", r.URL.Query().Get("cursor"))
		writeJSON(t, w, accountsResponse{
			Accounts: []apiAccount{{Currency: "USD", AvailableBalance: money{Value: "1000.50", Currency: "USD"}}},
		})
	})

	bal, err := client.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000.5", bal.String())
	assert.Equal(t, int32(2), calls.Load())
}

func TestBalance_NoUSDAccount(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, accountsResponse{})
	})

	_, err := client.Balance(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no USD account")
}

func TestBalance_NoCredentials(t *testing.T) {
	client := newPublicClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.Balance(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestCandles_SortsNewestFirstResponse(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 3)

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/brokerage/products/BTC-USD/candles", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "ONE_DAY", q.Get("granularity"))
		assert.Equal(t, "1704067200", q.Get("start"))
		assert.Equal(t, "1704326400", q.Get("end"))

		writeJSON(t, w, candlesResponse{Candles: []apiCandle{
			{Start: "1704240000", Low: "41000", High: "43000", Open: "42000", Close: "42500", Volume: "12.5"},
			{Start: "1704153600", Low: "40000", High: "42500", Open: "41000", Close: "42000", Volume: "10"},
			{Start: "1704067200", Low: "39000", High: "41500", Open: "40000", Close: "41000", Volume: "8"},
		}})
	})

	candles, err := client.Candles(context.Background(), "BTC", start, end, market.OneDay)
	require.NoError(t, err)
	require.Len(t, candles, 3)
	require.NoError(t, candles.Validate())

	assert.Equal(t, start, candles[0].Time)
	assert.Equal(t, 40000.0, candles[0].Open)
	assert.Equal(t, 41500.0, candles[0].High)
	assert.Equal(t, 39000.0, candles[0].Low)
	assert.Equal(t, 41000.0, candles[0].Close)
	assert.Equal(t, 8.0, candles[0].Volume)
	assert.Equal(t, 42500.0, candles[2].Close)
}

func TestCandles_SplitsLongRanges(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 400)
	var calls atomic.Int32

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		from := r.URL.Query().Get("start")
		// Each window echoes its own start plus a boundary duplicate.
		writeJSON(t, w, candlesResponse{Candles: []apiCandle{
			{Start: from, Low: "1", High: "1", Open: "1", Close: "1", Volume: "1"},
			{Start: from, Low: "1", High: "1", Open: "1", Close: "1", Volume: "1"},
		}})
	})

	candles, err := client.Candles(context.Background(), "ETH", start, end, market.OneDay)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, candles, 2)
	assert.NoError(t, candles.Validate())
}

func TestCandles_BadInput(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	now := time.Now()

	_, err := client.Candles(context.Background(), "BTC", now, now, market.OneDay)
	assert.Error(t, err)

	_, err = client.Candles(context.Background(), "BTC", now.Add(-time.Hour), now, market.Granularity("D"))
	assert.Error(t, err)
}

func TestBestBidAsk(t *testing.T) {
	t.Run("authenticated", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/brokerage/best_bid_ask", r.URL.Path)
			assert.Equal(t, "BTC-USD", r.URL.Query().Get("product_ids"))
			writeJSON(t, w, bestBidAskResponse{Pricebooks: []pricebook{{
				ProductID: "BTC-USD",
				Bids:      []bookLevel{{Price: "49999.99", Size: "1"}},
				Asks:      []bookLevel{{Price: "50000.01", Size: "2"}},
				Time:      "2024-01-02T03:04:05.123456Z",
			}}})
		})

		q, err := client.BestBidAsk(context.Background(), "BTC")
		require.NoError(t, err)
		assert.Equal(t, "BTC", q.Symbol)
		assert.Equal(t, "49999.99", q.Bid.String())
		assert.Equal(t, "50000.01", q.Ask.String())
		assert.Equal(t, "50000", q.Mid(2).String())
		assert.Equal(t, 2024, q.Time.Year())
	})

	t.Run("public", func(t *testing.T) {
		client := newPublicClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v3/brokerage/market/product_book", r.URL.Path)
			assert.Equal(t, "ETH-USD", r.URL.Query().Get("product_id"))
			assert.Empty(t, r.Header.Get("Authorization"))
			writeJSON(t, w, productBookResponse{Pricebook: pricebook{
				ProductID: "ETH-USD",
				Bids:      []bookLevel{{Price: "3000"}},
				Asks:      []bookLevel{{Price: "3001"}},
			}})
		})

		q, err := client.BestBidAsk(context.Background(), "eth")
		require.NoError(t, err)
		assert.Equal(t, "3000.5", q.Mid(2).String())
	})

	t.Run("empty book", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, bestBidAskResponse{Pricebooks: []pricebook{{ProductID: "BTC-USD"}}})
		})

		_, err := client.BestBidAsk(context.Background(), "BTC")
		assert.Error(t, err)
	})
}

func TestIncrements_Cached(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v3/brokerage/products/BTC-USD", r.URL.Path)
		writeJSON(t, w, apiProduct{
			ProductID:      "BTC-USD",
			BaseIncrement:  "0.00000001",
			QuoteIncrement: "0.01",
			PriceIncrement: "0.01",
		})
	})

	size, err := client.SizeIncrement(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, int32(8), size)

	price, err := client.PriceIncrement(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, int32(2), price)

	assert.Equal(t, int32(1), calls.Load())
}

func TestProducts_FiltersQuoteAndDisabled(t *testing.T) {
	client := newPublicClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/brokerage/market/products", r.URL.Path)
		assert.Equal(t, "SPOT", r.URL.Query().Get("product_type"))
		writeJSON(t, w, productsResponse{Products: []apiProduct{
			{ProductID: "SOL-USD", BaseCurrencyID: "SOL", QuoteCurrencyID: "USD"},
			{ProductID: "BTC-EUR", BaseCurrencyID: "BTC", QuoteCurrencyID: "EUR"},
			{ProductID: "BTC-USD", BaseCurrencyID: "BTC", QuoteCurrencyID: "USD"},
			{ProductID: "DEAD-USD", BaseCurrencyID: "DEAD", QuoteCurrencyID: "USD", TradingDisabled: true},
		}})
	})

	products, err := client.Products(context.Background(), "USD")
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "BTC-USD", products[0].ID)
	assert.Equal(t, "SOL", products[1].Base)
}

func TestSubmitLimitOrder(t *testing.T) {
	order := broker.LimitOrder{
		ClientOrderID: "01HX0000000000000000000000",
		Symbol:        "BTC",
		Side:          broker.Buy,
		Size:          decimal.RequireFromString("0.002"),
		LimitPrice:    decimal.RequireFromString("50000.00"),
	}

	t.Run("success", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v3/brokerage/orders", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body createOrderRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, order.ClientOrderID, body.ClientOrderID)
			assert.Equal(t, "BTC-USD", body.ProductID)
			assert.Equal(t, "BUY", body.Side)
			require.NotNil(t, body.OrderConfiguration.LimitLimitGTC)
			assert.Equal(t, "0.002", body.OrderConfiguration.LimitLimitGTC.BaseSize)
			assert.Equal(t, "50000", body.OrderConfiguration.LimitLimitGTC.LimitPrice)

			w.Write([]byte(`{"success":true,"success_response":{"order_id":"ord-1","client_order_id":"x"}}`))
		})

		ack, err := client.SubmitLimitOrder(context.Background(), order)
		require.NoError(t, err)
		assert.True(t, ack.Success)
		assert.Equal(t, "ord-1", ack.BrokerOrderID)
	})

	t.Run("rejected", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"success":false,"error_response":{"error":"INSUFFICIENT_FUND","message":"Insufficient balance in source account"}}`))
		})

		ack, err := client.SubmitLimitOrder(context.Background(), order)
		require.NoError(t, err)
		assert.False(t, ack.Success)
		assert.Empty(t, ack.BrokerOrderID)
		assert.Contains(t, ack.FailureReason, "INSUFFICIENT_FUND")
	})

	t.Run("invalid", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		bad := order
		bad.Size = decimal.Zero
		_, err := client.SubmitLimitOrder(context.Background(), bad)
		assert.Error(t, err)

		bad = order
		bad.Side = "HOLD"
		_, err = client.SubmitLimitOrder(context.Background(), bad)
		assert.Error(t, err)

		bad = order
		bad.ClientOrderID = ""
		_, err = client.SubmitLimitOrder(context.Background(), bad)
		assert.Error(t, err)
	})
}

func TestOrderStatus(t *testing.T) {
	t.Run("filled aggregates fills", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/v3/brokerage/orders/historical/ord-1":
				writeJSON(t, w, getOrderResponse{Order: apiOrder{OrderID: "ord-1", Status: "FILLED"}})
			case "/api/v3/brokerage/orders/historical/fills":
				assert.Equal(t, "ord-1", r.URL.Query().Get("order_id"))
				writeJSON(t, w, fillsResponse{Fills: []apiFill{
					{TradeID: "t1", Price: "100", Size: "1", SequenceTimestamp: "2024-01-01T00:00:01Z"},
					{TradeID: "t2", Price: "110", Size: "3", SequenceTimestamp: "2024-01-01T00:00:05Z"},
				}})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

		st, err := client.OrderStatus(context.Background(), "ord-1")
		require.NoError(t, err)
		assert.Equal(t, broker.StatusFilled, st.Status)
		require.NotNil(t, st.Fill)
		assert.Equal(t, "4", st.Fill.Size.String())
		assert.Equal(t, "107.5", st.Fill.Price.String())
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC), st.Fill.Time)
	})

	t.Run("filled falls back to order summary", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/fills") {
				writeJSON(t, w, fillsResponse{})
				return
			}
			writeJSON(t, w, getOrderResponse{Order: apiOrder{
				OrderID:            "ord-2",
				Status:             "FILLED",
				FilledSize:         "0.002",
				AverageFilledPrice: "50000",
				LastFillTime:       "2024-01-01T00:00:00Z",
			}})
		})

		st, err := client.OrderStatus(context.Background(), "ord-2")
		require.NoError(t, err)
		require.NotNil(t, st.Fill)
		assert.Equal(t, "0.002", st.Fill.Size.String())
		assert.Equal(t, "50000", st.Fill.Price.String())
	})

	t.Run("cancelled after a partial fill reports the fill", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/v3/brokerage/orders/historical/ord-4":
				writeJSON(t, w, getOrderResponse{Order: apiOrder{
					OrderID:            "ord-4",
					Status:             "CANCELLED",
					FilledSize:         "0.0008",
					AverageFilledPrice: "49995",
				}})
			case "/api/v3/brokerage/orders/historical/fills":
				writeJSON(t, w, fillsResponse{Fills: []apiFill{
					{TradeID: "t1", Price: "49990", Size: "0.0004", TradeTime: "2024-01-01T00:00:01Z"},
					{TradeID: "t2", Price: "50000", Size: "0.0004", TradeTime: "2024-01-01T00:00:02Z"},
				}})
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

		st, err := client.OrderStatus(context.Background(), "ord-4")
		require.NoError(t, err)
		assert.Equal(t, broker.StatusCancelled, st.Status)
		require.NotNil(t, st.Fill)
		assert.Equal(t, "0.0008", st.Fill.Size.String())
		assert.Equal(t, "49995", st.Fill.Price.String())
	})

	t.Run("cancelled with zero filled size skips the fills call", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasSuffix(r.URL.Path, "/fills") {
				t.Errorf("fills fetched for an unfilled order")
			}
			writeJSON(t, w, getOrderResponse{Order: apiOrder{OrderID: "ord-5", Status: "CANCELLED", FilledSize: "0"}})
		})

		st, err := client.OrderStatus(context.Background(), "ord-5")
		require.NoError(t, err)
		assert.Equal(t, broker.StatusCancelled, st.Status)
		assert.Nil(t, st.Fill)
	})

	tests := []struct {
		apiStatus string
		want      broker.Status
	}{
		{"OPEN", broker.StatusOpen},
		{"QUEUED", broker.StatusOpen},
		{"PENDING", broker.StatusPending},
		{"CANCELLED", broker.StatusCancelled},
		{"EXPIRED", broker.StatusExpired},
		{"FAILED", broker.StatusFailed},
		{"UNKNOWN_ORDER_STATUS", broker.StatusUnknown},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.apiStatus, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, getOrderResponse{Order: apiOrder{OrderID: "ord-3", Status: tt.apiStatus}})
			})

			st, err := client.OrderStatus(context.Background(), "ord-3")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Status)
			assert.Nil(t, st.Fill)
		})
	}
}

func TestCancelOrder(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/brokerage/orders/batch_cancel", r.URL.Path)
		var body cancelRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.OrderIDs, 1)

		ok := body.OrderIDs[0] == "ord-1"
		w.Write([]byte(`{"results":[{"success":` + map[bool]string{true: "true", false: "false"}[ok] +
			`,"failure_reason":"UNKNOWN_CANCEL_ORDER","order_id":"` + body.OrderIDs[0] + `"}]}`))
	})

	ok, err := client.CancelOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.CancelOrder(context.Background(), "ord-9")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRetry(t *testing.T) {
	t.Run("recovers from 5xx", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(t, w, accountsResponse{Accounts: []apiAccount{{Currency: "USD", AvailableBalance: money{Value: "5"}}}})
		})

		bal, err := client.Balance(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "5", bal.String())
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusTooManyRequests)
		})

		_, err := client.Balance(context.Background())
		require.Error(t, err)
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"INVALID_ARGUMENT"}`))
		})

		_, err := client.OrderStatus(context.Background(), "ord-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "INVALID_ARGUMENT")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled context stops retries", func(t *testing.T) {
		var calls atomic.Int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		})
		ctx, cancel := context.WithCancel(context.Background())
		client.sleep = func(context.Context, time.Duration) error {
			cancel()
			return context.Canceled
		}

		_, err := client.Balance(ctx)
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond}
	for n := 1; n <= 6; n++ {
		for i := 0; i < 50; i++ {
			d := p.Backoff(n)
			assert.Greater(t, d, time.Duration(0))
			assert.LessOrEqual(t, d, 400*time.Millisecond)
		}
	}
	for i := 0; i < 50; i++ {
		assert.LessOrEqual(t, p.Backoff(1), 100*time.Millisecond)
	}

	assert.Equal(t, 1, RetryPolicy{}.attempts())
	assert.Equal(t, time.Duration(0), RetryPolicy{}.Backoff(1))
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.True(t, retryable(ctx, &APIError{StatusCode: 500}))
	assert.True(t, retryable(ctx, &APIError{StatusCode: 429}))
	assert.False(t, retryable(ctx, &APIError{StatusCode: 404}))
	assert.True(t, retryable(ctx, &url.Error{Op: "Get", URL: "x", Err: errTransport}))
	assert.False(t, retryable(ctx, errors.New("decode response")))
	assert.False(t, retryable(ctx, nil))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, retryable(cancelled, &APIError{StatusCode: 500}))
}
