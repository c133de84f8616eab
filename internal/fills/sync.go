// Package fills reconciles exchange trade history into the daily volume
// ledger. Synchronization is idempotent: every trade id passes through the
// store's seen-set once, so replays never double-count notional.
package fills

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mmbot/internal/exchange"
	"mmbot/internal/metrics"
	"mmbot/internal/store"
	"mmbot/internal/volume"
)

// Result is the ledger position after a sync pass.
type Result struct {
	DayKey              string
	TradedNotionalToday float64
	LastTradeID         string
}

// Synchronizer attributes account fills to the current UTC trading day and
// accumulates the notional of volume-tagged trades.
type Synchronizer struct {
	botID    string
	symbol   string
	exchange exchange.Exchange
	store    *store.Store
	now      func() time.Time
}

// NewSynchronizer creates a Synchronizer for one bot and symbol.
func NewSynchronizer(botID, symbol string, ex exchange.Exchange, st *store.Store) *Synchronizer {
	return &Synchronizer{botID: botID, symbol: symbol, exchange: ex, store: st, now: time.Now}
}

// Sync fetches trade history and folds unseen volume fills into today's
// cursor. A trade already in the seen-set is a benign no-op.
func (s *Synchronizer) Sync(ctx context.Context) (Result, error) {
	dayKey := volume.DayKey(s.now())

	cursor, err := s.store.LoadCursor(s.botID, s.symbol, dayKey)
	if err != nil {
		return Result{}, fmt.Errorf("load cursor: %w", err)
	}

	since := s.now().UTC().Truncate(24 * time.Hour)
	trades, err := s.exchange.GetMyTrades(ctx, s.symbol, since)
	if err != nil {
		return Result{}, fmt.Errorf("fetch trades: %w", err)
	}

	var (
		added    float64
		newest   exchange.Trade
		hasNew   bool
		newestTs time.Time
	)

	for _, t := range trades {
		if volume.DayKey(t.Ts) != dayKey {
			continue
		}
		if !strings.HasPrefix(t.ClientOrderID, volume.ClientIDPrefix) {
			continue
		}

		if err := s.store.MarkTradeSeen(s.botID, s.symbol, t.ID); err != nil {
			if errors.Is(err, store.ErrTradeSeen) {
				continue
			}
			return Result{}, fmt.Errorf("mark trade seen: %w", err)
		}

		added += t.Notional()
		if !hasNew || t.Ts.After(newestTs) {
			newest = t
			newestTs = t.Ts
			hasNew = true
		}
	}

	if hasNew {
		cursor.TradedNotionalToday += added
		cursor.LastTradeID = newest.ID
		if err := s.store.SaveCursor(s.botID, s.symbol, dayKey, cursor); err != nil {
			return Result{}, fmt.Errorf("save cursor: %w", err)
		}
		log.Debug().
			Str("botId", s.botID).
			Str("symbol", s.symbol).
			Float64("added", added).
			Float64("total", cursor.TradedNotionalToday).
			Msg("fills synced")
	}

	return Result{
		DayKey:              dayKey,
		TradedNotionalToday: cursor.TradedNotionalToday,
		LastTradeID:         cursor.LastTradeID,
	}, nil
}

// RunPeriodic syncs on a fixed cadence until ctx is cancelled, updating the
// traded-notional gauge when metrics are provided. Individual sync failures
// are logged and retried on the next interval.
func (s *Synchronizer) RunPeriodic(ctx context.Context, interval time.Duration, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sync(ctx)
			if err != nil {
				log.Warn().Err(err).Str("botId", s.botID).Msg("fills sync failed")
				continue
			}
			if m != nil {
				m.TradedNotionalDay.Set(res.TradedNotionalToday)
			}
		}
	}
}
