package fills

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmbot/internal/exchange"
	"mmbot/internal/store"
)

var syncNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type tradesExchange struct {
	trades []exchange.Trade
}

func (f *tradesExchange) GetMyTrades(context.Context, string, time.Time) ([]exchange.Trade, error) {
	return f.trades, nil
}

func (f *tradesExchange) GetMidPrice(context.Context, string) (exchange.MidPrice, error) {
	return exchange.MidPrice{}, nil
}
func (f *tradesExchange) GetBalances(context.Context) ([]exchange.Balance, error) { return nil, nil }
func (f *tradesExchange) GetOpenOrders(context.Context, string) ([]exchange.Order, error) {
	return nil, nil
}
func (f *tradesExchange) PlaceOrder(context.Context, exchange.Quote) (exchange.Order, error) {
	return exchange.Order{}, nil
}
func (f *tradesExchange) CancelOrder(context.Context, string, string) error { return nil }
func (f *tradesExchange) CancelAll(context.Context, string) error           { return nil }

func newTestSynchronizer(t *testing.T, ex exchange.Exchange) (*Synchronizer, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := NewSynchronizer("bot-1", "BTC_USDT", ex, st)
	s.now = func() time.Time { return syncNow }
	return s, st
}

func TestSync_AccumulatesVolumeFills(t *testing.T) {
	t.Parallel()

	ex := &tradesExchange{trades: []exchange.Trade{
		{ID: "t-1", ClientOrderID: "vol-100", QuoteQty: 100, Ts: syncNow.Add(-2 * time.Hour)},
		{ID: "t-2", ClientOrderID: "vol-200", Price: 2, Qty: 25, Ts: syncNow.Add(-1 * time.Hour)},
		{ID: "t-3", ClientOrderID: "mmb0", QuoteQty: 999, Ts: syncNow.Add(-1 * time.Hour)},       // quote fill, not volume
		{ID: "t-4", ClientOrderID: "vol-50", QuoteQty: 500, Ts: syncNow.Add(-30 * time.Hour)},    // previous day
	}}
	s, st := newTestSynchronizer(t, ex)

	res, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2025-06-01", res.DayKey)
	assert.InDelta(t, 150, res.TradedNotionalToday, 1e-9) // 100 + 2*25
	assert.Equal(t, "t-2", res.LastTradeID)

	cur, err := st.LoadCursor("bot-1", "BTC_USDT", "2025-06-01")
	require.NoError(t, err)
	assert.InDelta(t, 150, cur.TradedNotionalToday, 1e-9)
}

func TestSync_ReplayDoesNotDoubleCount(t *testing.T) {
	t.Parallel()

	ex := &tradesExchange{trades: []exchange.Trade{
		{ID: "t-1", ClientOrderID: "vol-100", QuoteQty: 100, Ts: syncNow.Add(-1 * time.Hour)},
	}}
	s, _ := newTestSynchronizer(t, ex)

	for i := 0; i < 3; i++ {
		res, err := s.Sync(context.Background())
		require.NoError(t, err)
		assert.InDelta(t, 100, res.TradedNotionalToday, 1e-9, "pass %d", i)
	}
}

func TestSync_PicksUpNewTrades(t *testing.T) {
	t.Parallel()

	ex := &tradesExchange{trades: []exchange.Trade{
		{ID: "t-1", ClientOrderID: "vol-100", QuoteQty: 100, Ts: syncNow.Add(-2 * time.Hour)},
	}}
	s, _ := newTestSynchronizer(t, ex)

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	ex.trades = append(ex.trades, exchange.Trade{
		ID: "t-2", ClientOrderID: "vol-200", QuoteQty: 40, Ts: syncNow.Add(-1 * time.Hour),
	})

	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 140, res.TradedNotionalToday, 1e-9)
	assert.Equal(t, "t-2", res.LastTradeID)
}

func TestSync_NoTrades(t *testing.T) {
	t.Parallel()

	s, _ := newTestSynchronizer(t, &tradesExchange{})
	res, err := s.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.TradedNotionalToday)
	assert.Empty(t, res.LastTradeID)
}
