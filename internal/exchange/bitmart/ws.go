package bitmart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Feed streams ticker updates from Bitmart's public websocket. Connection
// drops are retried with exponential backoff; consumers just read mids from
// the output channel.
type Feed struct {
	url string
}

// NewFeed creates a Feed for the given websocket endpoint.
func NewFeed(url string) *Feed {
	return &Feed{url: url}
}

type tickerMsg struct {
	Table string `json:"table"`
	Data  []struct {
		Symbol  string `json:"symbol"`
		BidPx   string `json:"bid_px"`
		AskPx   string `json:"ask_px"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"data"`
}

// TickerUpdate is one top-of-book observation from the stream.
type TickerUpdate struct {
	Symbol string
	Bid    float64
	Ask    float64
	Ts     time.Time
}

// Stream pushes ticker updates until ctx is cancelled. It reconnects on
// failure and only returns with ctx's error.
func (f *Feed) Stream(ctx context.Context, symbol string, out chan<- TickerUpdate, ping time.Duration) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := f.streamOnce(ctx, symbol, out, ping); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Dur("backoff", backoff).Msg("ticker stream failed, reconnecting")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

func (f *Feed) streamOnce(ctx context.Context, symbol string, out chan<- TickerUpdate, ping time.Duration) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	conn.SetReadLimit(512 * 1024)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	sub := map[string]any{
		"op":   "subscribe",
		"args": []string{"spot/ticker:" + NormalizeSymbol(symbol)},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info().Str("symbol", symbol).Str("url", f.url).Msg("ticker stream subscribed")

	if ping <= 0 {
		ping = 15 * time.Second
	}
	pinger := time.NewTicker(ping)
	defer pinger.Stop()

	msgs := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("read: %w", err)
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		case data := <-msgs:
			var msg tickerMsg
			if err := json.Unmarshal(data, &msg); err != nil || msg.Table != "spot/ticker" {
				continue
			}
			for _, d := range msg.Data {
				bid := parseFloat(firstNonEmpty(d.BidPx, d.BestBid))
				ask := parseFloat(firstNonEmpty(d.AskPx, d.BestAsk))
				if bid <= 0 || ask <= 0 {
					continue
				}
				select {
				case out <- TickerUpdate{Symbol: d.Symbol, Bid: bid, Ask: ask, Ts: time.Now()}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
