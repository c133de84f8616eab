// Package volume paces auxiliary trades against a daily notional budget.
// The scheduler emits at most one order per call, gated by a time window,
// minimum spacing and a probability draw so the resulting flow does not look
// mechanical.
package volume

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"mmbot/internal/exchange"
)

// ClientIDPrefix tags volume orders; the suffix is the emission time in epoch
// milliseconds, which the run loop later uses to expire resting orders.
const ClientIDPrefix = "vol-"

// Mode selects how volume orders hit the book.
type Mode string

const (
	// ModePassive posts a maker-only limit at the mid; fills rely on the
	// market crossing it and unfilled orders are expired by the loop's TTL.
	ModePassive Mode = "PASSIVE"
	// ModeMixed takes liquidity with a market order.
	ModeMixed Mode = "MIXED"
)

const (
	minSpacing   = 2 * time.Second
	emitChance   = 0.12
	hhmmLayout   = "15:04"
	dayKeyLayout = "2006-01-02"
)

// Config bounds the volume stream.
type Config struct {
	DailyNotional float64 `json:"dailyNotional" yaml:"dailyNotional"`
	MinTradeUsdt  float64 `json:"minTradeUsdt" yaml:"minTradeUsdt"`
	MaxTradeUsdt  float64 `json:"maxTradeUsdt" yaml:"maxTradeUsdt"`
	ActiveFrom    string  `json:"activeFrom" yaml:"activeFrom"` // local HH:MM inclusive
	ActiveTo      string  `json:"activeTo" yaml:"activeTo"`     // local HH:MM exclusive
	Mode          Mode    `json:"mode" yaml:"mode"`
}

// State is the scheduler's persistent-per-run memory. TradedNotional resets
// when the UTC day key changes.
type State struct {
	DayKey         string
	TradedNotional float64
	LastActionMs   int64
}

// Scheduler draws volume orders under Config. Not safe for concurrent use;
// each bot instance owns one.
type Scheduler struct {
	cfg Config
	now func() time.Time
	rng *rand.Rand
}

// NewScheduler creates a Scheduler using wall-clock time and its own rand
// source.
func NewScheduler(cfg Config) *Scheduler {
	return &Scheduler{
		cfg: cfg,
		now: time.Now,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DayKey returns the UTC date key for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayKeyLayout)
}

// ResetIfNewDay zeroes the accumulated notional when the UTC day rolled over.
func (s *Scheduler) ResetIfNewDay(st *State) {
	dayKey := DayKey(s.now())
	if st.DayKey != dayKey {
		st.DayKey = dayKey
		st.TradedNotional = 0
	}
}

// MaybeCreateTrade returns one volume order, or nil when any gate (window,
// budget, spacing, probability) declines this call. On emission the state's
// notional and last-action time advance.
func (s *Scheduler) MaybeCreateTrade(symbol string, mid float64, st *State) *exchange.Quote {
	s.ResetIfNewDay(st)

	now := s.now()
	if !withinWindow(now.Format(hhmmLayout), s.cfg.ActiveFrom, s.cfg.ActiveTo) {
		return nil
	}

	remaining := s.cfg.DailyNotional - st.TradedNotional
	if remaining <= 0 {
		return nil
	}

	nowMs := now.UnixMilli()
	if nowMs-st.LastActionMs < minSpacing.Milliseconds() {
		return nil
	}

	if s.rng.Float64() > emitChance {
		return nil
	}

	notional := s.cfg.MinTradeUsdt + s.rng.Float64()*(s.cfg.MaxTradeUsdt-s.cfg.MinTradeUsdt)
	if notional > remaining {
		notional = remaining
	}

	side := exchange.Buy
	if s.rng.Float64() < 0.5 {
		side = exchange.Sell
	}

	st.LastActionMs = nowMs
	st.TradedNotional += notional

	q := &exchange.Quote{
		Symbol:        symbol,
		Side:          side,
		Qty:           notional / mid,
		ClientOrderID: fmt.Sprintf("%s%d", ClientIDPrefix, nowMs),
	}
	if s.cfg.Mode == ModePassive {
		q.Type = exchange.Limit
		q.Price = mid
		q.PostOnly = true
	} else {
		q.Type = exchange.Market
	}
	return q
}

// withinWindow reports whether now falls in [from, to). HH:MM strings compare
// lexicographically; an empty window means always active.
func withinWindow(now, from, to string) bool {
	if from == "" || to == "" {
		return true
	}
	return now >= from && now < to
}

// ParseClientID extracts the epoch-millisecond timestamp from a volume
// client order id; ok is false for ids that are not volume-tagged.
func ParseClientID(clientOrderID string) (ms int64, ok bool) {
	if !strings.HasPrefix(clientOrderID, ClientIDPrefix) {
		return 0, false
	}
	ms, err := strconv.ParseInt(clientOrderID[len(ClientIDPrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}
