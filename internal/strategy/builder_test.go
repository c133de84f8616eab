package strategy

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmbot/internal/exchange"
)

func baseConfig() Config {
	return Config{
		SpreadPct:    0.01,
		StepPct:      0.005,
		MaxSpreadPct: 0.02,
		LevelsUp:     2,
		LevelsDown:   2,
		BudgetQuote:  1000,
		BudgetBase:   10,
		Distribution: DistLinear,
	}
}

func TestBuild_LinearLadder(t *testing.T) {
	t.Parallel()

	b := NewBuilder(baseConfig(), nil)
	quotes := b.Build("BTC_USDT", 100, 1)
	require.Len(t, quotes, 4)

	buys := quotes[:2]
	sells := quotes[2:]

	// Offsets interpolate from spread/2 to maxSpread/2.
	assert.InDelta(t, 99.5, buys[0].Price, 1e-9)
	assert.InDelta(t, 99.0, buys[1].Price, 1e-9)
	assert.InDelta(t, 100.5, sells[0].Price, 1e-9)
	assert.InDelta(t, 101.0, sells[1].Price, 1e-9)

	// LINEAR splits the quote budget evenly: 500 notional per buy level.
	assert.InDelta(t, 500/99.5, buys[0].Qty, 1e-9)
	assert.InDelta(t, 500/99.0, buys[1].Qty, 1e-9)
	assert.InDelta(t, 5.0, sells[0].Qty, 1e-9)
	assert.InDelta(t, 5.0, sells[1].Qty, 1e-9)

	assert.Equal(t, "mmb0", buys[0].ClientOrderID)
	assert.Equal(t, "mmb1", buys[1].ClientOrderID)
	assert.Equal(t, "mms0", sells[0].ClientOrderID)
	assert.Equal(t, "mms1", sells[1].ClientOrderID)

	for _, q := range quotes {
		assert.True(t, q.PostOnly)
		assert.Equal(t, exchange.Limit, q.Type)
	}
}

func TestBuild_LevelCounts(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.LevelsDown = 3
	cfg.LevelsUp = 1
	quotes := NewBuilder(cfg, nil).Build("BTC_USDT", 100, 1)
	require.Len(t, quotes, 4)

	var buys, sells int
	for _, q := range quotes {
		if q.Side == exchange.Buy {
			buys++
		} else {
			sells++
		}
	}
	assert.Equal(t, 3, buys)
	assert.Equal(t, 1, sells)
}

func TestBuild_ZeroLevelsSide(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.LevelsDown = 0
	quotes := NewBuilder(cfg, nil).Build("BTC_USDT", 100, 1)
	require.Len(t, quotes, 2)
	for _, q := range quotes {
		assert.Equal(t, exchange.Sell, q.Side)
	}
}

func TestBuild_SingleLevelUsesFullBudget(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.LevelsDown = 1
	cfg.LevelsUp = 1
	quotes := NewBuilder(cfg, nil).Build("BTC_USDT", 100, 1)
	require.Len(t, quotes, 2)

	// Weight 1.0 at N=1: the whole budget lands on the single level.
	assert.InDelta(t, 1000/quotes[0].Price, quotes[0].Qty, 1e-9)
	assert.InDelta(t, 10.0, quotes[1].Qty, 1e-9)
}

func TestSkew_Clamped(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SkewFactor = 0.5
	cfg.MaxSkew = 0.01
	b := NewBuilder(cfg, nil)

	assert.InDelta(t, 0.01, b.Skew(100), 1e-12)
	assert.InDelta(t, -0.01, b.Skew(-100), 1e-12)
	assert.InDelta(t, 0.0, b.Skew(1), 1e-12)
}

func TestBuild_SkewShiftsPrices(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.SkewFactor = 0.1
	cfg.MaxSkew = 0.05

	neutral := NewBuilder(cfg, nil).Build("BTC_USDT", 100, 1)
	heavy := NewBuilder(cfg, nil).Build("BTC_USDT", 100, 2) // excess base inventory

	// Ratio 2 with factor 0.1 wants a +10% shift, clamped to maxSkew 0.05,
	// so the skewed mid is 105.
	assert.Greater(t, heavy[0].Price, neutral[0].Price)
	assert.InDelta(t, 105*(1-0.005), heavy[0].Price, 1e-9)
}

func TestBuild_JitterBounded(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.JitterPct = 0.01
	b := NewBuilder(cfg, rand.New(rand.NewSource(7)))

	quotes := b.Build("BTC_USDT", 100, 1)
	expected := []float64{99.5, 99.0, 100.5, 101.0}
	for i, q := range quotes {
		assert.InEpsilon(t, expected[i], q.Price, 0.011, "level %d outside jitter band", i)
	}
}

func TestBuild_DeterministicWithoutJitter(t *testing.T) {
	t.Parallel()

	a := NewBuilder(baseConfig(), nil).Build("BTC_USDT", 100, 1)
	b := NewBuilder(baseConfig(), nil).Build("BTC_USDT", 100, 1)
	assert.Equal(t, a, b)
}

func TestBuild_StepFallbackWhenMaxSpreadNarrow(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.MaxSpreadPct = 0 // not usable, fixed step ladder applies
	quotes := NewBuilder(cfg, nil).Build("BTC_USDT", 100, 1)

	assert.InDelta(t, 100*(1-0.005), quotes[0].Price, 1e-9)
	assert.InDelta(t, 100*(1-0.005-0.005), quotes[1].Price, 1e-9)
}
