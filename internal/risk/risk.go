// Package risk gates each tick of the run loop. Evaluation is a pure
// function over the tick's observed state; checks run in a fixed order and
// short-circuit on the first violation.
package risk

import (
	"fmt"
	"math"
	"time"

	"mmbot/internal/exchange"
)

// Action is what the orchestrator should do about a violation.
type Action string

const (
	ActionPause Action = "PAUSE"
	ActionStop  Action = "STOP"
	ActionError Action = "ERROR"
)

// staleAfter is how old a mid-price snapshot may be before quoting pauses.
const staleAfter = 2 * time.Second

// Config holds the risk thresholds.
type Config struct {
	MinQuoteBalance float64 `json:"minQuoteBalance" yaml:"minQuoteBalance"`
	MaxDeviationPct float64 `json:"maxDeviationPct" yaml:"maxDeviationPct"`
	MaxOpenOrders   int     `json:"maxOpenOrders" yaml:"maxOpenOrders"`
	MaxDailyLoss    float64 `json:"maxDailyLoss" yaml:"maxDailyLoss"`
}

// Context is one tick's input. DeviationPct and DailyPnl are optional feeds
// (master/slave price deviation, PnL accounting) that the current
// orchestrator does not compute; their checks are skipped when nil.
type Context struct {
	Balances        []exchange.Balance
	Mid             exchange.MidPrice
	QuoteAsset      string
	OpenOrdersCount int
	DeviationPct    *float64
	DailyPnl        *float64
}

// Decision is the evaluation outcome. OK means proceed with the tick.
type Decision struct {
	OK     bool
	Action Action
	Reason string
}

func proceed() Decision { return Decision{OK: true} }

func veto(a Action, reason string) Decision {
	return Decision{OK: false, Action: a, Reason: reason}
}

// Evaluator applies Config to a tick Context.
type Evaluator struct {
	cfg Config
	now func() time.Time
}

// NewEvaluator creates an Evaluator using wall-clock time.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg, now: time.Now}
}

// Evaluate runs the ordered checks; the first violation wins.
func (e *Evaluator) Evaluate(ctx Context) Decision {
	free := exchange.FindFree(ctx.Balances, ctx.QuoteAsset)
	if free < e.cfg.MinQuoteBalance {
		return veto(ActionStop, fmt.Sprintf("%s below minimum: %.4f < %.4f", ctx.QuoteAsset, free, e.cfg.MinQuoteBalance))
	}

	if ctx.OpenOrdersCount > e.cfg.MaxOpenOrders {
		return veto(ActionPause, fmt.Sprintf("too many open orders: %d > %d", ctx.OpenOrdersCount, e.cfg.MaxOpenOrders))
	}

	if ctx.DeviationPct != nil && *ctx.DeviationPct > e.cfg.MaxDeviationPct {
		return veto(ActionPause, fmt.Sprintf("price deviation too high: %.4f%%", *ctx.DeviationPct))
	}

	if ctx.DailyPnl != nil && *ctx.DailyPnl < -math.Abs(e.cfg.MaxDailyLoss) {
		return veto(ActionStop, fmt.Sprintf("daily loss limit reached: %.4f", *ctx.DailyPnl))
	}

	if e.now().Sub(ctx.Mid.Ts) > staleAfter {
		return veto(ActionPause, "stale market data")
	}

	return proceed()
}
