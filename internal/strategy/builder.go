// Package strategy builds the desired quote ladder for one tick: an
// inventory-skewed mid, distribution-weighted sizes per level and
// deterministic client order ids so the reconciler can match levels across
// ticks without extra bookkeeping.
package strategy

import (
	"fmt"
	"math/rand"

	"mmbot/internal/exchange"
)

// Client order id prefixes. The reconciler only manages orders carrying
// ManagedPrefix; the buy/sell forms embed the level index so an unchanged
// level keeps its identity across ticks.
const (
	ManagedPrefix = "mm"
	buyIDFormat   = "mmb%d"
	sellIDFormat  = "mms%d"
)

// Config drives the quote ladder shape.
type Config struct {
	SpreadPct    float64      `json:"spreadPct" yaml:"spreadPct"`       // total spread at the innermost level
	StepPct      float64      `json:"stepPct" yaml:"stepPct"`           // fallback level step when maxSpreadPct is not usable
	MaxSpreadPct float64      `json:"maxSpreadPct" yaml:"maxSpreadPct"` // total spread at the outermost level
	LevelsUp     int          `json:"levelsUp" yaml:"levelsUp"`
	LevelsDown   int          `json:"levelsDown" yaml:"levelsDown"`
	BudgetQuote  float64      `json:"budgetQuote" yaml:"budgetQuote"` // quote asset spent across buy levels
	BudgetBase   float64      `json:"budgetBase" yaml:"budgetBase"`   // base asset offered across sell levels
	Distribution Distribution `json:"distribution" yaml:"distribution"`
	JitterPct    float64      `json:"jitterPct" yaml:"jitterPct"`
	SkewFactor   float64      `json:"skewFactor" yaml:"skewFactor"`
	MaxSkew      float64      `json:"maxSkew" yaml:"maxSkew"`
}

// Builder produces desired quotes from a mid price and inventory ratio.
type Builder struct {
	cfg Config
	rng *rand.Rand
}

// NewBuilder creates a Builder. rng is only consulted for jitter and the
// RANDOM distribution; it may be nil when neither is configured.
func NewBuilder(cfg Config, rng *rand.Rand) *Builder {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Builder{cfg: cfg, rng: rng}
}

// Skew returns the clamped multiplicative price adjustment for an inventory
// ratio. Excess base holdings (ratio > 1) push prices down to favour selling.
func (b *Builder) Skew(inventoryRatio float64) float64 {
	return clamp((inventoryRatio-1)*b.cfg.SkewFactor, -b.cfg.MaxSkew, b.cfg.MaxSkew)
}

// Build returns levelsDown buy quotes followed by levelsUp sell quotes, all
// post-only limits. With jitterPct = 0 the output is fully deterministic for
// LINEAR and VALLEY distributions.
func (b *Builder) Build(symbol string, mid, inventoryRatio float64) []exchange.Quote {
	skewedMid := mid * (1 + b.Skew(inventoryRatio))

	buyW := weights(b.cfg.LevelsDown, b.cfg.Distribution, b.rng)
	sellW := weights(b.cfg.LevelsUp, b.cfg.Distribution, b.rng)

	quotes := make([]exchange.Quote, 0, b.cfg.LevelsDown+b.cfg.LevelsUp)

	for i := 0; i < b.cfg.LevelsDown; i++ {
		price := skewedMid * (1 - b.levelOffset(i, b.cfg.LevelsDown)) * b.jitter()
		notional := b.cfg.BudgetQuote * buyW[i]
		quotes = append(quotes, exchange.Quote{
			Symbol:        symbol,
			Side:          exchange.Buy,
			Type:          exchange.Limit,
			Price:         price,
			Qty:           notional / price,
			PostOnly:      true,
			ClientOrderID: fmt.Sprintf(buyIDFormat, i),
		})
	}

	for i := 0; i < b.cfg.LevelsUp; i++ {
		price := skewedMid * (1 + b.levelOffset(i, b.cfg.LevelsUp)) * b.jitter()
		quotes = append(quotes, exchange.Quote{
			Symbol:        symbol,
			Side:          exchange.Sell,
			Type:          exchange.Limit,
			Price:         price,
			Qty:           b.cfg.BudgetBase * sellW[i],
			PostOnly:      true,
			ClientOrderID: fmt.Sprintf(sellIDFormat, i),
		})
	}

	return quotes
}

// levelOffset is the fractional distance of level i from the skewed mid. It
// interpolates from half the spread (innermost) to half the max spread
// (outermost). When maxSpreadPct is not wider than spreadPct the fixed
// stepPct ladder is used instead.
func (b *Builder) levelOffset(i, n int) float64 {
	half := b.cfg.SpreadPct / 2
	if b.cfg.MaxSpreadPct <= b.cfg.SpreadPct {
		return half + float64(i)*b.cfg.StepPct
	}
	halfMax := b.cfg.MaxSpreadPct / 2
	den := n - 1
	if den < 1 {
		den = 1
	}
	return half + (halfMax-half)*float64(i)/float64(den)
}

func (b *Builder) jitter() float64 {
	if b.cfg.JitterPct <= 0 {
		return 1
	}
	return 1 + randBetween(b.rng, -b.cfg.JitterPct, b.cfg.JitterPct)
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}

func randBetween(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}
