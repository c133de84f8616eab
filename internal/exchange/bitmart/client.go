// Package bitmart implements the exchange capability against the Bitmart
// spot REST API. Signed requests carry X-BM-KEY / X-BM-TIMESTAMP / X-BM-SIGN
// headers where the signature covers "{ts}#{memo}#{body}".
package bitmart

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"mmbot/internal/exchange"
)

const (
	okCode         = 1000
	defaultTimeout = 5 * time.Second
)

type authLevel int

const (
	authNone authLevel = iota
	authKeyed
	authSigned
)

// Client is a Bitmart spot REST client implementing exchange.Exchange.
type Client struct {
	key    string
	secret string
	memo   string
	base   string
	rest   *resty.Client
}

// NewClient creates a Client. timeout <= 0 falls back to 5s.
func NewClient(baseURL, key, secret, memo string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(defaultTimeout)
	}
	return &Client{key: key, secret: secret, memo: memo, base: baseURL, rest: r}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) errMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

// request issues one call and unwraps Bitmart's {code, message, data}
// envelope. body must already be marshalled when auth is authSigned so the
// signature covers the exact bytes sent.
func (c *Client) request(ctx context.Context, method, path string, query map[string]string, body any, auth authLevel) (json.RawMessage, error) {
	req := c.rest.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	if auth >= authKeyed {
		req.SetHeader("X-BM-KEY", c.key)
	}
	if auth == authSigned {
		raw := "{}"
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("marshal body: %w", err)
			}
			raw = string(data)
		}
		ts := time.Now().UnixMilli()
		req.SetHeader("X-BM-TIMESTAMP", strconv.FormatInt(ts, 10))
		req.SetHeader("X-BM-SIGN", Sign(c.secret, c.memo, raw, ts))
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(raw)
	} else if body != nil {
		req.SetBody(body)
	}

	var env envelope
	req.SetResult(&env).SetError(&env)

	resp, err := req.Execute(method, c.base+path)
	if err != nil {
		return nil, fmt.Errorf("bitmart %s %s: %w", method, path, err)
	}
	if resp.StatusCode() >= 400 || env.Code != okCode {
		return nil, fmt.Errorf("bitmart %s %s: status %d code %d: %s", method, path, resp.StatusCode(), env.Code, env.errMessage())
	}
	return env.Data, nil
}

// GetMidPrice fetches the top of book and derives the mid.
func (c *Client) GetMidPrice(ctx context.Context, symbol string) (exchange.MidPrice, error) {
	data, err := c.request(ctx, resty.MethodGet, "/spot/quotation/v3/ticker",
		map[string]string{"symbol": NormalizeSymbol(symbol)}, nil, authNone)
	if err != nil {
		return exchange.MidPrice{}, err
	}

	var t struct {
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	}
	if err := json.Unmarshal(data, &t); err != nil {
		return exchange.MidPrice{}, fmt.Errorf("decode ticker: %w", err)
	}

	bid := parseFloat(t.BestBid)
	ask := parseFloat(t.BestAsk)
	if bid <= 0 || ask <= 0 {
		return exchange.MidPrice{}, fmt.Errorf("ticker %s: empty book (bid=%q ask=%q)", symbol, t.BestBid, t.BestAsk)
	}
	return exchange.MidPrice{Bid: bid, Ask: ask, Mid: (bid + ask) / 2, Ts: time.Now()}, nil
}

// GetBalances returns all wallet entries.
func (c *Client) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	data, err := c.request(ctx, resty.MethodGet, "/account/v1/wallet", nil, nil, authKeyed)
	if err != nil {
		return nil, err
	}

	var wrap struct {
		Wallet []struct {
			ID        string `json:"id"`
			Available string `json:"available"`
			Frozen    string `json:"frozen"`
		} `json:"wallet"`
	}
	if err := json.Unmarshal(data, &wrap); err != nil {
		return nil, fmt.Errorf("decode wallet: %w", err)
	}

	balances := make([]exchange.Balance, 0, len(wrap.Wallet))
	for _, w := range wrap.Wallet {
		balances = append(balances, exchange.Balance{
			Asset:  w.ID,
			Free:   parseFloat(w.Available),
			Locked: parseFloat(w.Frozen),
		})
	}
	return balances, nil
}

// PlaceOrder submits a limit or market order.
func (c *Client) PlaceOrder(ctx context.Context, q exchange.Quote) (exchange.Order, error) {
	body := map[string]any{
		"symbol": NormalizeSymbol(q.Symbol),
		"side":   string(q.Side),
		"type":   string(q.Type),
		"size":   formatFloat(q.Qty),
	}
	if q.Type == exchange.Limit {
		body["price"] = formatFloat(q.Price)
	}
	if q.PostOnly {
		body["post_only"] = true
	}
	if q.ClientOrderID != "" {
		body["client_order_id"] = q.ClientOrderID
	}

	data, err := c.request(ctx, resty.MethodPost, "/spot/v2/submit_order", nil, body, authSigned)
	if err != nil {
		return exchange.Order{}, err
	}

	var resp struct {
		OrderID json.Number `json:"order_id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return exchange.Order{}, fmt.Errorf("decode submit_order: %w", err)
	}

	return exchange.Order{
		ID:            resp.OrderID.String(),
		Symbol:        NormalizeSymbol(q.Symbol),
		Side:          q.Side,
		Price:         q.Price,
		Qty:           q.Qty,
		Status:        "open",
		ClientOrderID: q.ClientOrderID,
	}, nil
}

// CancelOrder cancels one order. An already-filled or already-cancelled
// order is not an error at this layer; the venue reports it via the
// envelope and callers treat cancellation as best-effort.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]any{
		"symbol":   NormalizeSymbol(symbol),
		"order_id": orderID,
	}
	_, err := c.request(ctx, resty.MethodPost, "/spot/v3/cancel_order", nil, body, authSigned)
	return err
}

// CancelAll cancels every open order on the symbol.
func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	body := map[string]any{"symbol": NormalizeSymbol(symbol)}
	_, err := c.request(ctx, resty.MethodPost, "/spot/v4/cancel_all", nil, body, authSigned)
	return err
}

// GetOpenOrders lists currently open orders for the symbol.
func (c *Client) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	s := NormalizeSymbol(symbol)
	body := map[string]any{
		"symbol":     s,
		"orderMode":  "spot",
		"limit":      50,
		"recvWindow": 5000,
	}
	data, err := c.request(ctx, resty.MethodPost, "/spot/v4/query/open-orders", nil, body, authSigned)
	if err != nil {
		return nil, err
	}

	var list []wireOrder
	if err := json.Unmarshal(data, &list); err != nil {
		// Some deployments wrap the list in an object.
		var wrap struct {
			Orders []wireOrder `json:"orders"`
		}
		if err2 := json.Unmarshal(data, &wrap); err2 != nil {
			return nil, fmt.Errorf("decode open orders: %w", err)
		}
		list = wrap.Orders
	}

	out := make([]exchange.Order, 0, len(list))
	for _, o := range list {
		out = append(out, o.toOrder(s))
	}
	return out, nil
}

// GetMyTrades returns account fills for the symbol since the given time.
func (c *Client) GetMyTrades(ctx context.Context, symbol string, since time.Time) ([]exchange.Trade, error) {
	s := NormalizeSymbol(symbol)
	body := map[string]any{
		"symbol":    s,
		"orderMode": "spot",
		"limit":     200,
	}
	if !since.IsZero() {
		body["startTime"] = since.UnixMilli()
	}
	data, err := c.request(ctx, resty.MethodPost, "/spot/v4/query/trades", nil, body, authSigned)
	if err != nil {
		return nil, err
	}

	var list []struct {
		TradeID       json.Number `json:"tradeId"`
		OrderID       json.Number `json:"orderId"`
		ClientOrderID string      `json:"clientOrderId"`
		Side          string      `json:"side"`
		Price         string      `json:"price"`
		Size          string      `json:"size"`
		Notional      string      `json:"notional"`
		CreateTime    int64       `json:"createTime"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}

	out := make([]exchange.Trade, 0, len(list))
	for _, t := range list {
		out = append(out, exchange.Trade{
			ID:            t.TradeID.String(),
			OrderID:       t.OrderID.String(),
			ClientOrderID: t.ClientOrderID,
			Symbol:        s,
			Side:          exchange.Side(t.Side),
			Price:         parseFloat(t.Price),
			Qty:           parseFloat(t.Size),
			QuoteQty:      parseFloat(t.Notional),
			Ts:            time.UnixMilli(t.CreateTime),
		})
	}
	return out, nil
}

type wireOrder struct {
	OrderID       json.Number `json:"orderId"`
	ClientOrderID string      `json:"clientOrderId"`
	Side          string      `json:"side"`
	Price         string      `json:"price"`
	Size          string      `json:"size"`
	State         string      `json:"state"`
}

func (o wireOrder) toOrder(symbol string) exchange.Order {
	side := exchange.Sell
	if o.Side == "buy" || o.Side == "BUY" {
		side = exchange.Buy
	}
	status := o.State
	if status == "" {
		status = "open"
	}
	return exchange.Order{
		ID:            o.OrderID.String(),
		Symbol:        symbol,
		Side:          side,
		Price:         parseFloat(o.Price),
		Qty:           parseFloat(o.Size),
		Status:        status,
		ClientOrderID: o.ClientOrderID,
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
