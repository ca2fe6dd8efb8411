package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rustyeddy/cryptobot/market"
	"github.com/shopspring/decimal"
)

type money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type apiAccount struct {
	UUID             string `json:"uuid"`
	Currency         string `json:"currency"`
	AvailableBalance money  `json:"available_balance"`
}

type accountsResponse struct {
	Accounts []apiAccount `json:"accounts"`
	HasNext  bool         `json:"has_next"`
	Cursor   string       `json:"cursor"`
}

// Balance returns the available USD balance, walking every accounts page.
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	if c.signer == nil {
		return decimal.Zero, ErrNoCredentials
	}

	q := url.Values{"limit": {"250"}}
	for {
		var resp accountsResponse
		if err := c.do(ctx, http.MethodGet, apiPrefix+"/accounts", q, nil, &resp); err != nil {
			return decimal.Zero, fmt.Errorf("get accounts: %w", err)
		}
		for _, a := range resp.Accounts {
			if a.Currency != market.QuoteCurrency {
				continue
			}
			v, err := decimal.NewFromString(a.AvailableBalance.Value)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse %s balance %q: %w", a.Currency, a.AvailableBalance.Value, err)
			}
			return v, nil
		}
		if !resp.HasNext || resp.Cursor == "" {
			break
		}
		q.Set("cursor", resp.Cursor)
	}
	return decimal.Zero, fmt.Errorf("coinbase: no %s account", market.QuoteCurrency)
}
