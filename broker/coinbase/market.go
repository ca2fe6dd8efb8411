package coinbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rustyeddy/cryptobot/market"
	"github.com/shopspring/decimal"
)

// apiCandle is a single candle as returned by the API; all fields are strings.
type apiCandle struct {
	Start  string `json:"start"`
	Low    string `json:"low"`
	High   string `json:"high"`
	Open   string `json:"open"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

type candlesResponse struct {
	Candles []apiCandle `json:"candles"`
}

func (ac apiCandle) candle() (market.Candle, error) {
	start, err := strconv.ParseInt(ac.Start, 10, 64)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse start %q: %w", ac.Start, err)
	}
	var vals [5]float64
	for i, s := range []string{ac.Open, ac.High, ac.Low, ac.Close, ac.Volume} {
		if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
			return market.Candle{}, fmt.Errorf("parse candle %s: %w", ac.Start, err)
		}
	}
	return market.Candle{
		Time:   time.Unix(start, 0).UTC(),
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}

// Candles fetches [start, end] in windows of at most 300 candles and returns
// them oldest first.
func (c *Client) Candles(ctx context.Context, symbol string, start, end time.Time, g market.Granularity) (market.Candles, error) {
	width, err := g.Duration()
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, fmt.Errorf("candles %s: end %s not after start %s", symbol, end, start)
	}

	pid := market.ProductID(symbol)
	path := c.marketPath("/products/" + pid + "/candles")
	step := width * maxCandlesPerRequest

	var out market.Candles
	for from := start; from.Before(end); from = from.Add(step) {
		to := from.Add(step)
		if to.After(end) {
			to = end
		}
		q := url.Values{
			"start":       {strconv.FormatInt(from.Unix(), 10)},
			"end":         {strconv.FormatInt(to.Unix(), 10)},
			"granularity": {string(g)},
		}
		var resp candlesResponse
		if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, fmt.Errorf("get candles %s: %w", pid, err)
		}
		for _, ac := range resp.Candles {
			cd, err := ac.candle()
			if err != nil {
				return nil, fmt.Errorf("candles %s: %w", pid, err)
			}
			out = append(out, cd)
		}
	}

	out.Sort()
	return dedupe(out), nil
}

// dedupe drops repeated start times at window boundaries.
func dedupe(cs market.Candles) market.Candles {
	if len(cs) < 2 {
		return cs
	}
	out := cs[:1]
	for _, cd := range cs[1:] {
		if cd.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, cd)
	}
	return out
}

type bookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type pricebook struct {
	ProductID string      `json:"product_id"`
	Bids      []bookLevel `json:"bids"`
	Asks      []bookLevel `json:"asks"`
	Time      string      `json:"time"`
}

type bestBidAskResponse struct {
	Pricebooks []pricebook `json:"pricebooks"`
}

type productBookResponse struct {
	Pricebook pricebook `json:"pricebook"`
}

// BestBidAsk returns the top of book for symbol.
func (c *Client) BestBidAsk(ctx context.Context, symbol string) (market.Quote, error) {
	pid := market.ProductID(symbol)

	var book pricebook
	if c.signer != nil {
		var resp bestBidAskResponse
		q := url.Values{"product_ids": {pid}}
		if err := c.do(ctx, http.MethodGet, apiPrefix+"/best_bid_ask", q, nil, &resp); err != nil {
			return market.Quote{}, fmt.Errorf("get best bid/ask %s: %w", pid, err)
		}
		if len(resp.Pricebooks) == 0 {
			return market.Quote{}, fmt.Errorf("best bid/ask %s: empty response", pid)
		}
		book = resp.Pricebooks[0]
	} else {
		var resp productBookResponse
		q := url.Values{"product_id": {pid}, "limit": {"1"}}
		if err := c.do(ctx, http.MethodGet, apiPrefix+"/market/product_book", q, nil, &resp); err != nil {
			return market.Quote{}, fmt.Errorf("get product book %s: %w", pid, err)
		}
		book = resp.Pricebook
	}

	return book.quote(symbol)
}

func (b pricebook) quote(symbol string) (market.Quote, error) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return market.Quote{}, fmt.Errorf("book %s: missing bid or ask", b.ProductID)
	}
	bid, err := decimal.NewFromString(b.Bids[0].Price)
	if err != nil {
		return market.Quote{}, fmt.Errorf("book %s: parse bid: %w", b.ProductID, err)
	}
	ask, err := decimal.NewFromString(b.Asks[0].Price)
	if err != nil {
		return market.Quote{}, fmt.Errorf("book %s: parse ask: %w", b.ProductID, err)
	}
	q := market.Quote{Symbol: symbol, Bid: bid, Ask: ask}
	if t, err := time.Parse(time.RFC3339Nano, b.Time); err == nil {
		q.Time = t.UTC()
	}
	return q, nil
}

type apiProduct struct {
	ProductID       string `json:"product_id"`
	BaseIncrement   string `json:"base_increment"`
	QuoteIncrement  string `json:"quote_increment"`
	PriceIncrement  string `json:"price_increment"`
	BaseCurrencyID  string `json:"base_currency_id"`
	QuoteCurrencyID string `json:"quote_currency_id"`
	TradingDisabled bool   `json:"trading_disabled"`
	IsDisabled      bool   `json:"is_disabled"`
}

type productsResponse struct {
	Products []apiProduct `json:"products"`
}

func (p apiProduct) product() market.Product {
	priceInc := p.PriceIncrement
	if priceInc == "" {
		priceInc = p.QuoteIncrement
	}
	base, quote := p.BaseCurrencyID, p.QuoteCurrencyID
	if base == "" || quote == "" {
		base, quote, _ = market.SplitProductID(p.ProductID)
	}
	return market.Product{
		ID:             p.ProductID,
		Base:           base,
		Quote:          quote,
		BaseIncrement:  p.BaseIncrement,
		PriceIncrement: priceInc,
		Disabled:       p.TradingDisabled || p.IsDisabled,
	}
}

// product returns exchange metadata for symbol, cached for the life of the
// client.
func (c *Client) product(ctx context.Context, symbol string) (market.Product, error) {
	pid := market.ProductID(symbol)

	c.mu.Lock()
	p, ok := c.products[pid]
	c.mu.Unlock()
	if ok {
		return p, nil
	}

	var resp apiProduct
	if err := c.do(ctx, http.MethodGet, c.marketPath("/products/"+pid), nil, nil, &resp); err != nil {
		return market.Product{}, fmt.Errorf("get product %s: %w", pid, err)
	}
	p = resp.product()

	c.mu.Lock()
	c.products[pid] = p
	c.mu.Unlock()
	return p, nil
}

func (c *Client) SizeIncrement(ctx context.Context, symbol string) (int32, error) {
	p, err := c.product(ctx, symbol)
	if err != nil {
		return 0, err
	}
	places, err := market.IncrementPlaces(p.BaseIncrement)
	if err != nil {
		return 0, fmt.Errorf("product %s base increment: %w", p.ID, err)
	}
	return places, nil
}

func (c *Client) PriceIncrement(ctx context.Context, symbol string) (int32, error) {
	p, err := c.product(ctx, symbol)
	if err != nil {
		return 0, err
	}
	places, err := market.IncrementPlaces(p.PriceIncrement)
	if err != nil {
		return 0, fmt.Errorf("product %s price increment: %w", p.ID, err)
	}
	return places, nil
}

// Products lists enabled spot products quoted in quote, sorted by id.
func (c *Client) Products(ctx context.Context, quote string) ([]market.Product, error) {
	var resp productsResponse
	q := url.Values{"product_type": {"SPOT"}}
	if err := c.do(ctx, http.MethodGet, c.marketPath("/products"), q, nil, &resp); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	var out []market.Product
	for _, ap := range resp.Products {
		p := ap.product()
		if p.Disabled || p.Quote != quote {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
