package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"mmbot/internal/alert"
	"mmbot/internal/bot"
	"mmbot/internal/cfg"
	"mmbot/internal/exchange"
	"mmbot/internal/exchange/bitmart"
	"mmbot/internal/fills"
	"mmbot/internal/metrics"
	"mmbot/internal/store"
)

func main() {
	_ = godotenv.Load()
	setupLogging()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	st, err := store.Open(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("store open failed")
	}
	defer st.Close()

	rec, err := seedBot(st, c)
	if err != nil {
		log.Fatal().Err(err).Msg("bot record unavailable")
	}

	m := metrics.New()
	startMetricsServer(ctx, c.MetricsPort)

	rest := bitmart.NewClient(c.BaseURL, c.Key, c.Secret, c.Memo, c.RESTTimeout)
	ex := wirePriceFeed(ctx, rest, c, rec.Symbol)

	notifier := alert.NewNotifier(c.TelegramToken, c.TelegramChatID, 0)

	sync := fills.NewSynchronizer(c.BotID, rec.Symbol, ex, st)
	go sync.RunPeriodic(ctx, c.FillsSyncInterval, m)

	loop := bot.New(c.BotID, ex, st, m, notifier, c.Tick)
	log.Info().Str("botId", c.BotID).Str("symbol", rec.Symbol).Dur("tick", c.Tick).Msg("starting runner")

	if err := loop.Run(ctx); err != nil {
		log.Error().Err(err).Msg("runner exited with error")
		os.Exit(1)
	}
	log.Info().Str("status", string(loop.State().Status())).Str("reason", loop.State().Reason()).Msg("runner exited")
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
}

// seedBot loads the bot record, creating it from the bot file on first run.
func seedBot(st *store.Store, c cfg.Settings) (store.BotRecord, error) {
	rec, err := st.LoadBot(c.BotID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.BotRecord{}, err
	}
	if c.BotFile == "" {
		return store.BotRecord{}, fmt.Errorf("bot %s not found and no bot file configured", c.BotID)
	}

	rec, err = cfg.LoadBotSeed(c.BotFile, c.BotID)
	if err != nil {
		return store.BotRecord{}, err
	}
	if err := st.SaveBot(rec); err != nil {
		return store.BotRecord{}, fmt.Errorf("seed bot: %w", err)
	}
	log.Info().Str("botId", rec.ID).Str("symbol", rec.Symbol).Msg("bot record seeded from file")
	return rec, nil
}

// wirePriceFeed wraps the REST client with a websocket-fed price cache when a
// stream endpoint is configured.
func wirePriceFeed(ctx context.Context, rest *bitmart.Client, c cfg.Settings, symbol string) exchange.Exchange {
	if c.WsURL == "" {
		return rest
	}

	cache := exchange.NewPriceCache(rest)
	updates := make(chan bitmart.TickerUpdate, 16)
	feed := bitmart.NewFeed(c.WsURL)

	go func() {
		if err := feed.Stream(ctx, symbol, updates, 15*time.Second); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("ticker stream ended")
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u := <-updates:
				cache.Update(u.Bid, u.Ask, u.Ts)
			}
		}
	}()

	return cache
}

// startMetricsServer serves Prometheus metrics and a health probe.
func startMetricsServer(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
