// Package bot runs the market-making control loop: one cooperative task per
// bot that observes the control-plane status, quotes, reconciles, paces
// volume orders and persists a runtime snapshot every tick.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mmbot/internal/exchange"
	"mmbot/internal/metrics"
	"mmbot/internal/orders"
	"mmbot/internal/risk"
	"mmbot/internal/store"
	"mmbot/internal/strategy"
	"mmbot/internal/volume"
)

const (
	defaultTick   = 800 * time.Millisecond
	reloadEvery   = 5 * time.Second
	pausedPoll    = 1500 * time.Millisecond
	volOrderTTL   = 90 * time.Second
	fallbackQuote = "USDT"
)

// Store is the slice of the persistence layer the loop needs: the bot record
// it polls for control status and the snapshot sink it writes each tick.
type Store interface {
	LoadBot(id string) (store.BotRecord, error)
	WriteSnapshot(snap store.Snapshot) error
}

// Notifier delivers best-effort operator alerts. Implementations must never
// block the tick.
type Notifier interface {
	Notify(level, title, body string)
}

// Loop drives one bot. Not safe for concurrent use; run exactly one Loop per
// bot id.
type Loop struct {
	botID  string
	runID  string
	ex     exchange.Exchange
	store  Store
	sm     *StateMachine
	m      *metrics.Metrics
	notify Notifier

	tick      time.Duration
	pausePoll time.Duration

	symbol     string
	baseAsset  string
	quoteAsset string

	builder    *strategy.Builder
	evaluator  *risk.Evaluator
	scheduler  *volume.Scheduler
	reconciler *orders.Reconciler

	volState   volume.State
	lastReload time.Time
}

// New creates a Loop. metrics and notifier may be nil.
func New(botID string, ex exchange.Exchange, st Store, m *metrics.Metrics, notify Notifier, tick time.Duration) *Loop {
	if tick <= 0 {
		tick = defaultTick
	}
	return &Loop{
		botID:      botID,
		runID:      uuid.NewString(),
		ex:         ex,
		store:      st,
		sm:         NewStateMachine(),
		m:          m,
		notify:     notify,
		tick:       tick,
		pausePoll:  pausedPoll,
		reconciler: orders.NewReconciler(orders.DefaultPriceEpsPct, orders.DefaultQtyEpsPct),
		volState:   volume.State{DayKey: "init"},
	}
}

// State exposes the loop's state machine for observation.
func (l *Loop) State() *StateMachine { return l.sm }

// Run executes the control loop until the bot is stopped, a risk veto or
// fatal error ends the run, or ctx is cancelled. Cancellation is cooperative:
// in-flight exchange calls complete before the loop re-checks ctx.
func (l *Loop) Run(ctx context.Context) error {
	rec, err := l.store.LoadBot(l.botID)
	if err != nil {
		return fmt.Errorf("load bot: %w", err)
	}
	l.applyConfig(rec)

	l.sm.Set(StatusRunning, "")
	l.writeSnapshot(store.Snapshot{Status: string(StatusRunning)})
	log.Info().Str("botId", l.botID).Str("runId", l.runID).Str("symbol", l.symbol).Msg("run loop started")

	for {
		if ctx.Err() != nil {
			return l.shutdown(ctx, "shutdown requested")
		}

		rec, err := l.store.LoadBot(l.botID)
		if err != nil {
			return l.fail(ctx, fmt.Errorf("load bot: %w", err))
		}

		switch Status(rec.Status) {
		case StatusStopped:
			l.cancelAllQuiet(ctx)
			l.sm.Set(StatusStopped, "stopped from control plane")
			l.writeSnapshot(store.Snapshot{Status: string(StatusStopped), Reason: l.sm.Reason()})
			log.Info().Str("botId", l.botID).Msg("run loop stopped")
			return nil
		case StatusPaused:
			if done, err := l.pause(ctx); done {
				return err
			}
			continue
		}

		l.maybeReload()

		t0 := time.Now()
		exit, tickErr := l.tickOnce(ctx, rec)
		if tickErr != nil {
			return l.fail(ctx, tickErr)
		}
		if l.m != nil {
			l.m.TicksTotal.Inc()
			l.m.TickDuration.Observe(time.Since(t0).Seconds())
		}
		if exit {
			return nil
		}

		if !sleepCtx(ctx, l.tick-time.Since(t0)) {
			return l.shutdown(ctx, "shutdown requested")
		}
	}
}

// pause cancels everything and blocks polling the control status until it
// flips back to RUNNING (resume) or to STOPPED / ctx cancellation (done).
func (l *Loop) pause(ctx context.Context) (done bool, err error) {
	l.cancelAllQuiet(ctx)
	l.sm.Set(StatusPaused, "paused from control plane")
	l.writeSnapshot(store.Snapshot{Status: string(StatusPaused), Reason: l.sm.Reason()})
	log.Info().Str("botId", l.botID).Msg("paused, waiting for resume")

	for {
		if !sleepCtx(ctx, l.pausePoll) {
			return true, l.shutdown(ctx, "shutdown requested while paused")
		}
		rec, err := l.store.LoadBot(l.botID)
		if err != nil {
			return true, l.fail(ctx, fmt.Errorf("load bot: %w", err))
		}
		switch Status(rec.Status) {
		case StatusRunning:
			l.sm.Set(StatusRunning, "")
			l.writeSnapshot(store.Snapshot{Status: string(StatusRunning)})
			log.Info().Str("botId", l.botID).Msg("resumed")
			return false, nil
		case StatusStopped:
			l.sm.Set(StatusStopped, "stopped while paused")
			l.writeSnapshot(store.Snapshot{Status: string(StatusStopped), Reason: l.sm.Reason()})
			return true, nil
		}
	}
}

// tickOnce runs one tick body. A returned error is tick-fatal; exit=true
// ends the run without error (risk veto path).
func (l *Loop) tickOnce(ctx context.Context, rec store.BotRecord) (exit bool, err error) {
	mid, err := l.ex.GetMidPrice(ctx, l.symbol)
	if err != nil {
		return false, fmt.Errorf("fetch mid price: %w", err)
	}
	balances, err := l.ex.GetBalances(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch balances: %w", err)
	}
	open, err := l.ex.GetOpenOrders(ctx, l.symbol)
	if err != nil {
		return false, fmt.Errorf("fetch open orders: %w", err)
	}

	var openMM, openOther []exchange.Order
	for _, o := range open {
		if orders.IsManaged(o.ClientOrderID) {
			openMM = append(openMM, o)
		} else {
			openOther = append(openOther, o)
		}
	}

	openVol, lastVolID := l.expireVolumeOrders(ctx, openOther)

	if l.m != nil {
		l.m.OpenOrders.Set(float64(len(open)))
		l.m.OpenOrdersMM.Set(float64(len(openMM)))
		l.m.OpenOrdersVol.Set(float64(openVol))
	}

	freeQuote := exchange.FindFree(balances, l.quoteAsset)
	freeBase := exchange.FindFree(balances, l.baseAsset)

	invRatio := inventoryRatio(balances, l.baseAsset, rec.MM.BudgetBase)
	desired := l.builder.Build(l.symbol, mid.Mid, invRatio)

	decision := l.evaluator.Evaluate(risk.Context{
		Balances:        balances,
		Mid:             mid,
		QuoteAsset:      l.quoteAsset,
		OpenOrdersCount: len(open),
	})

	snap := store.Snapshot{
		BotID:             l.botID,
		RunID:             l.runID,
		Mid:               mid.Mid,
		Bid:               mid.Bid,
		Ask:               mid.Ask,
		OpenOrders:        len(open),
		OpenOrdersMM:      len(openMM),
		OpenOrdersVol:     openVol,
		LastVolClientID:   lastVolID,
		FreeQuote:         freeQuote,
		FreeBase:          freeBase,
		TradedNotionalDay: l.volState.TradedNotional,
	}

	if !decision.OK {
		log.Warn().Str("botId", l.botID).Str("action", string(decision.Action)).Str("reason", decision.Reason).Msg("risk veto")
		if l.m != nil {
			l.m.RiskTriggers.Inc()
		}
		l.cancelAllQuiet(ctx)

		next := StatusError
		switch decision.Action {
		case risk.ActionStop:
			next = StatusStopped
		case risk.ActionPause:
			next = StatusPaused
		}
		l.sm.Set(next, decision.Reason)
		snap.Status = string(next)
		snap.Reason = decision.Reason
		l.writeSnapshot(snap)
		l.alert("warn", "risk veto", decision.Reason)
		return true, nil
	}

	diff := l.reconciler.Reconcile(desired, openMM)
	for _, o := range diff.Cancel {
		if err := l.ex.CancelOrder(ctx, l.symbol, o.ID); err != nil {
			log.Warn().Err(err).Str("orderId", o.ID).Msg("cancel failed")
			l.countError()
			continue
		}
		if l.m != nil {
			l.m.OrdersCancelled.Inc()
		}
	}
	for _, q := range diff.Place {
		if _, err := l.ex.PlaceOrder(ctx, q); err != nil {
			log.Warn().Err(err).Str("clientOrderId", q.ClientOrderID).Msg("place failed")
			l.countError()
			continue
		}
		if l.m != nil {
			l.m.OrdersPlaced.Inc()
		}
	}

	if vq := l.scheduler.MaybeCreateTrade(l.symbol, mid.Mid, &l.volState); vq != nil {
		if _, err := l.ex.PlaceOrder(ctx, *vq); err != nil {
			log.Warn().Err(err).Str("clientOrderId", vq.ClientOrderID).Msg("volume order failed")
			l.countError()
		} else {
			log.Info().Str("clientOrderId", vq.ClientOrderID).Str("side", string(vq.Side)).Float64("qty", vq.Qty).Msg("volume order submitted")
			if l.m != nil {
				l.m.VolumeOrders.Inc()
			}
			snap.LastVolClientID = vq.ClientOrderID
		}
		snap.TradedNotionalDay = l.volState.TradedNotional
	}
	if l.m != nil {
		l.m.TradedNotionalDay.Set(l.volState.TradedNotional)
	}

	snap.Status = string(StatusRunning)
	l.writeSnapshot(snap)
	return false, nil
}

// expireVolumeOrders cancels volume orders older than the TTL and returns the
// open volume-order count plus the newest volume client order id.
func (l *Loop) expireVolumeOrders(ctx context.Context, openOther []exchange.Order) (count int, lastID string) {
	nowMs := time.Now().UnixMilli()
	var lastTs int64 = -1

	for _, o := range openOther {
		ts, ok := volume.ParseClientID(o.ClientOrderID)
		if !ok {
			continue
		}
		count++
		if ts > lastTs {
			lastTs = ts
			lastID = o.ClientOrderID
		}
		if nowMs-ts > volOrderTTL.Milliseconds() {
			if err := l.ex.CancelOrder(ctx, l.symbol, o.ID); err != nil {
				log.Warn().Err(err).Str("orderId", o.ID).Msg("stale volume order cancel failed")
				l.countError()
				continue
			}
			log.Info().Str("orderId", o.ID).Str("clientOrderId", o.ClientOrderID).Msg("stale volume order cancelled")
			if l.m != nil {
				l.m.OrdersCancelled.Inc()
			}
		}
	}
	return count, lastID
}

// maybeReload re-reads the bot record on the reload cadence and rebuilds the
// decision components so config changes apply without a restart.
func (l *Loop) maybeReload() {
	if time.Since(l.lastReload) < reloadEvery {
		return
	}
	l.lastReload = time.Now()

	rec, err := l.store.LoadBot(l.botID)
	if err != nil {
		log.Warn().Err(err).Str("botId", l.botID).Msg("config reload failed, keeping previous")
		return
	}
	l.applyConfig(rec)
}

func (l *Loop) applyConfig(rec store.BotRecord) {
	l.symbol = rec.Symbol
	l.baseAsset, l.quoteAsset = exchange.SplitSymbol(rec.Symbol)
	if l.quoteAsset == "" {
		l.quoteAsset = fallbackQuote
	}
	l.builder = strategy.NewBuilder(rec.MM, nil)
	l.evaluator = risk.NewEvaluator(rec.Risk)
	l.scheduler = volume.NewScheduler(rec.Vol)
}

// fail is the tick-fatal path: best-effort cancel-all, ERROR status, terminal
// snapshot. The loop does not restart itself; supervision is external.
func (l *Loop) fail(ctx context.Context, err error) error {
	log.Error().Err(err).Str("botId", l.botID).Msg("tick failed")
	l.cancelAllQuiet(ctx)
	l.sm.Set(StatusError, err.Error())
	l.writeSnapshot(store.Snapshot{Status: string(StatusError), Reason: err.Error()})
	l.alert("error", "bot run failed", err.Error())
	return err
}

// shutdown handles cooperative cancellation: cancel resting orders and leave
// a STOPPED snapshot behind.
func (l *Loop) shutdown(ctx context.Context, reason string) error {
	l.cancelAllQuiet(context.WithoutCancel(ctx))
	l.sm.Set(StatusStopped, reason)
	l.writeSnapshot(store.Snapshot{Status: string(StatusStopped), Reason: reason})
	log.Info().Str("botId", l.botID).Str("reason", reason).Msg("run loop shut down")
	return nil
}

func (l *Loop) cancelAllQuiet(ctx context.Context) {
	if err := l.ex.CancelAll(ctx, l.symbol); err != nil {
		log.Warn().Err(err).Str("symbol", l.symbol).Msg("cancel all failed")
		l.countError()
	}
}

func (l *Loop) writeSnapshot(snap store.Snapshot) {
	snap.BotID = l.botID
	snap.RunID = l.runID
	if err := l.store.WriteSnapshot(snap); err != nil {
		log.Warn().Err(err).Str("botId", l.botID).Msg("snapshot write failed")
		l.countError()
	}
}

func (l *Loop) countError() {
	if l.m != nil {
		l.m.ErrorsTotal.Inc()
	}
}

func (l *Loop) alert(level, title, body string) {
	if l.notify != nil {
		l.notify.Notify(level, title, body)
	}
}

// inventoryRatio is current base holdings over the configured base budget.
// A non-positive budget means no target, treated as perfectly balanced.
func inventoryRatio(balances []exchange.Balance, baseAsset string, targetBase float64) float64 {
	if targetBase <= 0 {
		return 1
	}
	return exchange.FindFree(balances, baseAsset) / targetBase
}

// sleepCtx sleeps for d (no-op when d <= 0) and reports false if ctx was
// cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
