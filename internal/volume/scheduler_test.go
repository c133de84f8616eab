package volume

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmbot/internal/exchange"
)

// fracSource feeds rand.Rand a scripted sequence of Float64 outcomes.
type fracSource struct {
	fracs []float64
	i     int
}

func (s *fracSource) Int63() int64 {
	f := s.fracs[s.i%len(s.fracs)]
	s.i++
	return int64(f * (1 << 63))
}

func (s *fracSource) Seed(int64) {}

var noon = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newScheduler(cfg Config, at time.Time, fracs ...float64) *Scheduler {
	s := NewScheduler(cfg)
	s.now = func() time.Time { return at }
	if len(fracs) > 0 {
		s.rng = rand.New(&fracSource{fracs: fracs})
	}
	return s
}

func defaultCfg() Config {
	return Config{
		DailyNotional: 1000,
		MinTradeUsdt:  10,
		MaxTradeUsdt:  20,
		Mode:          ModePassive,
	}
}

func freshState(at time.Time) *State {
	return &State{DayKey: DayKey(at)}
}

func TestMaybeCreateTrade_Emits(t *testing.T) {
	t.Parallel()

	// Draws: gate 0.05 (<= 0.12, emit), notional 0.5 (midpoint), side 0.9 (buy).
	s := newScheduler(defaultCfg(), noon, 0.05, 0.5, 0.9)
	st := freshState(noon)

	q := s.MaybeCreateTrade("BTC_USDT", 100, st)
	require.NotNil(t, q)

	assert.Equal(t, exchange.Buy, q.Side)
	assert.InDelta(t, 0.15, q.Qty, 1e-9) // 15 USDT at mid 100
	assert.Equal(t, fmt.Sprintf("vol-%d", noon.UnixMilli()), q.ClientOrderID)
	assert.Equal(t, exchange.Limit, q.Type)
	assert.True(t, q.PostOnly)
	assert.Equal(t, 100.0, q.Price)

	assert.InDelta(t, 15, st.TradedNotional, 1e-9)
	assert.Equal(t, noon.UnixMilli(), st.LastActionMs)
}

func TestMaybeCreateTrade_MixedModeIsMarket(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.Mode = ModeMixed
	s := newScheduler(cfg, noon, 0.05, 0.5, 0.1)

	q := s.MaybeCreateTrade("BTC_USDT", 100, freshState(noon))
	require.NotNil(t, q)
	assert.Equal(t, exchange.Market, q.Type)
	assert.Equal(t, exchange.Sell, q.Side)
	assert.Zero(t, q.Price)
	assert.False(t, q.PostOnly)
}

func TestMaybeCreateTrade_ProbabilityGate(t *testing.T) {
	t.Parallel()

	s := newScheduler(defaultCfg(), noon, 0.5)
	st := freshState(noon)

	assert.Nil(t, s.MaybeCreateTrade("BTC_USDT", 100, st))
	assert.Zero(t, st.TradedNotional)
	assert.Zero(t, st.LastActionMs)
}

func TestMaybeCreateTrade_MinSpacing(t *testing.T) {
	t.Parallel()

	s := newScheduler(defaultCfg(), noon, 0.01, 0.5, 0.9)
	st := freshState(noon)
	st.LastActionMs = noon.Add(-1 * time.Second).UnixMilli()

	assert.Nil(t, s.MaybeCreateTrade("BTC_USDT", 100, st))

	// One more second and the gap reaches the 2s minimum.
	st.LastActionMs = noon.Add(-2 * time.Second).UnixMilli()
	assert.NotNil(t, s.MaybeCreateTrade("BTC_USDT", 100, st))
}

func TestMaybeCreateTrade_BudgetExhausted(t *testing.T) {
	t.Parallel()

	s := newScheduler(defaultCfg(), noon, 0.01, 0.5, 0.9)
	st := freshState(noon)
	st.TradedNotional = 1000

	assert.Nil(t, s.MaybeCreateTrade("BTC_USDT", 100, st))
}

func TestMaybeCreateTrade_ClipsToRemaining(t *testing.T) {
	t.Parallel()

	s := newScheduler(defaultCfg(), noon, 0.01, 0.99, 0.9)
	st := freshState(noon)
	st.TradedNotional = 995 // 5 USDT left, draw wants ~19.9

	q := s.MaybeCreateTrade("BTC_USDT", 100, st)
	require.NotNil(t, q)
	assert.InDelta(t, 0.05, q.Qty, 1e-9)
	assert.InDelta(t, 1000, st.TradedNotional, 1e-9)
}

func TestMaybeCreateTrade_ActiveWindow(t *testing.T) {
	t.Parallel()

	cfg := defaultCfg()
	cfg.ActiveFrom = "10:00"
	cfg.ActiveTo = "11:00"

	s := newScheduler(cfg, noon, 0.01, 0.5, 0.9)
	assert.Nil(t, s.MaybeCreateTrade("BTC_USDT", 100, freshState(noon)))

	inside := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	s = newScheduler(cfg, inside, 0.01, 0.5, 0.9)
	assert.NotNil(t, s.MaybeCreateTrade("BTC_USDT", 100, freshState(inside)))

	// End of window is exclusive.
	atEnd := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	s = newScheduler(cfg, atEnd, 0.01, 0.5, 0.9)
	assert.Nil(t, s.MaybeCreateTrade("BTC_USDT", 100, freshState(atEnd)))
}

func TestResetIfNewDay(t *testing.T) {
	t.Parallel()

	s := newScheduler(defaultCfg(), noon)
	st := &State{DayKey: "2025-05-31", TradedNotional: 800, LastActionMs: 123}

	s.ResetIfNewDay(st)
	assert.Equal(t, "2025-06-01", st.DayKey)
	assert.Zero(t, st.TradedNotional)

	// Same day again: nothing changes.
	st.TradedNotional = 50
	s.ResetIfNewDay(st)
	assert.InDelta(t, 50, st.TradedNotional, 1e-9)
}

func TestDayKey_UTC(t *testing.T) {
	t.Parallel()

	// 23:30 in UTC+2 is 21:30 UTC, still the same UTC day.
	loc := time.FixedZone("CEST", 2*3600)
	assert.Equal(t, "2025-06-01", DayKey(time.Date(2025, 6, 1, 23, 30, 0, 0, loc)))

	// 01:30 in UTC+2 is 23:30 UTC of the previous day.
	assert.Equal(t, "2025-05-31", DayKey(time.Date(2025, 6, 1, 1, 30, 0, 0, loc)))
}

func TestParseClientID(t *testing.T) {
	t.Parallel()

	ms, ok := ParseClientID("vol-1748779200000")
	assert.True(t, ok)
	assert.Equal(t, int64(1748779200000), ms)

	_, ok = ParseClientID("mmb0")
	assert.False(t, ok)

	_, ok = ParseClientID("vol-notanumber")
	assert.False(t, ok)
}
