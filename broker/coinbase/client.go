// Package coinbase implements broker.Gateway over the Coinbase Advanced Trade
// REST API. Every request carries a timeout and is retried with jittered
// exponential backoff on transport errors, 429 and 5xx responses.
package coinbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/cryptobot/broker"
	"github.com/rustyeddy/cryptobot/market"
)

const (
	// LiveURL is the production Advanced Trade API.
	LiveURL = "https://api.coinbase.com"
	// SandboxURL serves static responses for integration testing.
	SandboxURL = "https://api-sandbox.coinbase.com"

	apiPrefix = "/api/v3/brokerage"

	// maxCandlesPerRequest stays under the API's 350 candle limit with
	// inclusive window ends.
	maxCandlesPerRequest = 300
)

// ErrNoCredentials is returned by account and order calls on a client built
// without an API key. Such a client can still read public market data.
var ErrNoCredentials = errors.New("coinbase: api credentials required")

type Config struct {
	BaseURL   string // overrides Sandbox when set
	Sandbox   bool
	APIKey    string // CDP key name, "organizations/.../apiKeys/..."
	APISecret string // PEM encoded EC private key
	Timeout   time.Duration
	Retry     RetryPolicy
	Logger    *slog.Logger
}

// Client represents a Coinbase Advanced Trade API client
type Client struct {
	baseURL    string
	host       string
	httpClient *http.Client
	signer     *signer
	retry      RetryPolicy
	sleep      func(context.Context, time.Duration) error
	logger     *slog.Logger

	mu       sync.Mutex
	products map[string]market.Product
}

// NewClient creates a new API client. Without an APIKey the client only
// reaches the public market endpoints.
func NewClient(cfg Config) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = LiveURL
		if cfg.Sandbox {
			base = SandboxURL
		}
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("coinbase: invalid base url %q", base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(base, "/"),
		host:       u.Host,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
		sleep:      sleepCtx,
		logger:     logger.With(slog.String("component", "coinbase")),
		products:   make(map[string]market.Product),
	}

	if cfg.APIKey != "" || cfg.APISecret != "" {
		s, err := newSigner(cfg.APIKey, cfg.APISecret)
		if err != nil {
			return nil, err
		}
		c.signer = s
	}
	return c, nil
}

// Authenticated reports whether account and order calls are available.
func (c *Client) Authenticated() bool { return c.signer != nil }

// marketPath routes market data through the unauthenticated /market endpoints
// when the client has no credentials.
func (c *Client) marketPath(p string) string {
	if c.signer == nil {
		return apiPrefix + "/market" + p
	}
	return apiPrefix + p
}

// do sends one logical request, retrying per the client's policy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%s %s: marshal request: %w", method, path, err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.attempts(); attempt++ {
		if attempt > 1 {
			d := c.retry.Backoff(attempt - 1)
			c.logger.WarnContext(ctx, "retrying request",
				slog.String("method", method),
				slog.String("path", path),
				slog.Int("attempt", attempt),
				slog.Duration("backoff", d),
				slog.String("error", lastErr.Error()),
			)
			if err := c.sleep(ctx, d); err != nil {
				break
			}
		}
		lastErr = c.send(ctx, method, path, query, body, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(ctx, lastErr) {
			break
		}
	}
	return fmt.Errorf("%s %s: %w", method, path, lastErr)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	apiURL := c.baseURL + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, apiURL, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.signer != nil {
		tok, err := c.signer.token(method, c.host, path)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %w", errTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var _ broker.Gateway = (*Client)(nil)
var _ broker.ProductLister = (*Client)(nil)
