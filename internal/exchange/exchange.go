// Package exchange defines the venue capability consumed by the run loop and
// the wire-neutral types it trades in. Concrete venues (see the bitmart
// subpackage) implement Exchange; the core never sees wire-level JSON.
package exchange

import (
	"context"
	"strings"
	"time"
)

// Side is an order direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType distinguishes resting quotes from immediate executions.
type OrderType string

const (
	Limit  OrderType = "limit"
	Market OrderType = "market"
)

// MidPrice is a top-of-book snapshot. Mid is always (Bid+Ask)/2; Ts is when
// the snapshot was taken, not when the venue formed the book.
type MidPrice struct {
	Bid float64
	Ask float64
	Mid float64
	Ts  time.Time
}

// Balance is one asset's wallet entry.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Order is an open or historical exchange order.
type Order struct {
	ID            string
	Symbol        string
	Side          Side
	Price         float64
	Qty           float64
	Status        string
	ClientOrderID string
}

// Quote is a desired order. Price is ignored for market orders.
type Quote struct {
	Symbol        string
	Side          Side
	Type          OrderType
	Price         float64
	Qty           float64
	PostOnly      bool
	ClientOrderID string
}

// Trade is a single fill from the account's trade history.
type Trade struct {
	ID            string
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         float64
	Qty           float64
	QuoteQty      float64
	Ts            time.Time
}

// Notional returns the fill's quote-asset value, preferring the venue-reported
// quote quantity when present.
func (t Trade) Notional() float64 {
	if t.QuoteQty > 0 {
		return t.QuoteQty
	}
	return t.Price * t.Qty
}

// Exchange is the single venue capability the core depends on. Implementations
// own their timeouts; CancelOrder must tolerate already-filled or
// already-cancelled orders as a no-op.
type Exchange interface {
	GetMidPrice(ctx context.Context, symbol string) (MidPrice, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	PlaceOrder(ctx context.Context, q Quote) (Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAll(ctx context.Context, symbol string) error
	GetMyTrades(ctx context.Context, symbol string, since time.Time) ([]Trade, error)
}

// FindFree returns the free balance for an asset, matching case-insensitively.
func FindFree(balances []Balance, asset string) float64 {
	for _, b := range balances {
		if strings.EqualFold(b.Asset, asset) {
			return b.Free
		}
	}
	return 0
}

// SplitSymbol splits a BASE_QUOTE (or BASE/QUOTE) pair into its assets.
func SplitSymbol(symbol string) (base, quote string) {
	s := strings.ReplaceAll(symbol, "/", "_")
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s, ""
	}
	return parts[0], parts[1]
}
