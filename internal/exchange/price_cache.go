package exchange

import (
	"context"
	"sync"
	"time"
)

// priceCacheMaxAge bounds how old a streamed price may be before GetMidPrice
// falls back to the wrapped venue's REST call. Matches the risk evaluator's
// staleness gate so a cached price never trips it on its own.
const priceCacheMaxAge = 2 * time.Second

// PriceCache decorates an Exchange with a streamed top-of-book cache. All
// calls pass through except GetMidPrice, which serves the cached value while
// it is fresh. Safe for one writer (the feed consumer) and one reader (the
// run loop).
type PriceCache struct {
	Exchange

	mu   sync.RWMutex
	last MidPrice
}

// NewPriceCache wraps inner.
func NewPriceCache(inner Exchange) *PriceCache {
	return &PriceCache{Exchange: inner}
}

// Update stores a streamed observation.
func (p *PriceCache) Update(bid, ask float64, ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = MidPrice{Bid: bid, Ask: ask, Mid: (bid + ask) / 2, Ts: ts}
}

// GetMidPrice returns the cached mid while fresh, otherwise the venue's.
func (p *PriceCache) GetMidPrice(ctx context.Context, symbol string) (MidPrice, error) {
	p.mu.RLock()
	last := p.last
	p.mu.RUnlock()

	if !last.Ts.IsZero() && time.Since(last.Ts) <= priceCacheMaxAge {
		return last, nil
	}
	return p.Exchange.GetMidPrice(ctx, symbol)
}
