// Package store persists bot configuration, runtime snapshots and the fills
// ledger in BoltDB. The run loop reads bot records (status + trading configs)
// every tick, overwrites one runtime snapshot per tick, and the fills
// synchronizer keeps a day-scoped cursor plus a seen-set for idempotent
// notional accounting.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"mmbot/internal/risk"
	"mmbot/internal/strategy"
	"mmbot/internal/volume"
)

const (
	botsBucket    = "bots"         // bot records keyed by bot id
	runtimeBucket = "runtime"      // latest snapshot keyed by bot id
	cursorsBucket = "fill_cursors" // day cursors keyed by botId_symbol_dayKey
	seenBucket    = "fills_seen"   // dedup markers keyed by botId_symbol_tradeId
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrTradeSeen is returned by MarkTradeSeen when the trade id was already
// recorded. Callers treat it as a benign no-op.
var ErrTradeSeen = errors.New("store: trade already seen")

// BotRecord is the persisted bot: desired status plus the three trading
// configs. The core only ever writes Status through operator tooling or
// seeding; during a run it is read-only input.
type BotRecord struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Status    string          `json:"status"`
	MM        strategy.Config `json:"mm"`
	Vol       volume.Config   `json:"vol"`
	Risk      risk.Config     `json:"risk"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Snapshot is the latest-wins observable state written once per tick.
type Snapshot struct {
	BotID             string    `json:"botId"`
	RunID             string    `json:"runId"`
	Status            string    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	Mid               float64   `json:"mid,omitempty"`
	Bid               float64   `json:"bid,omitempty"`
	Ask               float64   `json:"ask,omitempty"`
	OpenOrders        int       `json:"openOrders"`
	OpenOrdersMM      int       `json:"openOrdersMm"`
	OpenOrdersVol     int       `json:"openOrdersVol"`
	LastVolClientID   string    `json:"lastVolClientOrderId,omitempty"`
	FreeQuote         float64   `json:"freeQuote"`
	FreeBase          float64   `json:"freeBase"`
	TradedNotionalDay float64   `json:"tradedNotionalToday"`
	Ts                time.Time `json:"ts"`
}

// FillCursor accumulates volume-trade notional for one (bot, symbol, day).
type FillCursor struct {
	TradedNotionalToday float64 `json:"tradedNotionalToday"`
	LastTradeID         string  `json:"lastTradeId,omitempty"`
}

// Store wraps a BoltDB database holding all persisted bot state.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if necessary) the database under dataPath and ensures
// all buckets exist.
func Open(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "mmbot.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{botsBucket, runtimeBucket, cursorsBucket, seenBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadBot returns the bot record for id, or ErrNotFound.
func (s *Store) LoadBot(id string) (BotRecord, error) {
	var rec BotRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(botsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("bot %s: %w", id, ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// SaveBot writes a bot record. Used by seeding and operator tooling, not by
// the run loop.
func (s *Store) SaveBot(rec BotRecord) error {
	rec.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal bot: %w", err)
		}
		return tx.Bucket([]byte(botsBucket)).Put([]byte(rec.ID), data)
	})
}

// SetBotStatus updates only the desired status of a bot record.
func (s *Store) SetBotStatus(id, status string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(botsBucket))
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("bot %s: %w", id, ErrNotFound)
		}
		var rec BotRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal bot: %w", err)
		}
		rec.Status = status
		rec.UpdatedAt = time.Now().UTC()
		out, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal bot: %w", err)
		}
		return b.Put([]byte(id), out)
	})
}

// WriteSnapshot overwrites the runtime snapshot for snap.BotID.
func (s *Store) WriteSnapshot(snap Snapshot) error {
	snap.Ts = time.Now().UTC()
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		return tx.Bucket([]byte(runtimeBucket)).Put([]byte(snap.BotID), data)
	})
}

// LoadSnapshot returns the latest snapshot for a bot, or ErrNotFound.
func (s *Store) LoadSnapshot(botID string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(runtimeBucket)).Get([]byte(botID))
		if data == nil {
			return fmt.Errorf("snapshot %s: %w", botID, ErrNotFound)
		}
		return json.Unmarshal(data, &snap)
	})
	return snap, err
}

func cursorKey(botID, symbol, dayKey string) []byte {
	return []byte(fmt.Sprintf("%s_%s_%s", botID, symbol, dayKey))
}

// LoadCursor returns the fill cursor for (bot, symbol, day). A missing cursor
// is a zero cursor, not an error.
func (s *Store) LoadCursor(botID, symbol, dayKey string) (FillCursor, error) {
	var cur FillCursor
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(cursorsBucket)).Get(cursorKey(botID, symbol, dayKey))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &cur)
	})
	return cur, err
}

// SaveCursor overwrites the fill cursor for (bot, symbol, day).
func (s *Store) SaveCursor(botID, symbol, dayKey string, cur FillCursor) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(cur)
		if err != nil {
			return fmt.Errorf("marshal cursor: %w", err)
		}
		return tx.Bucket([]byte(cursorsBucket)).Put(cursorKey(botID, symbol, dayKey), data)
	})
}

// MarkTradeSeen inserts a dedup marker for a trade id. Returns ErrTradeSeen
// if the marker already exists; the optimistic insert is the deduplication
// mechanism, no locking involved.
func (s *Store) MarkTradeSeen(botID, symbol, tradeID string) error {
	key := []byte(fmt.Sprintf("%s_%s_%s", botID, symbol, tradeID))
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(seenBucket))
		if b.Get(key) != nil {
			return ErrTradeSeen
		}
		return b.Put(key, []byte(time.Now().UTC().Format(time.RFC3339)))
	})
}
