package strategy

import "math/rand"

// Distribution selects how notional is weighted across the levels of a side.
type Distribution string

const (
	DistLinear Distribution = "LINEAR"
	DistValley Distribution = "VALLEY"
	DistRandom Distribution = "RANDOM"
)

// weights returns n per-level weights summing to 1. A single level always
// carries weight 1 regardless of distribution.
func weights(n int, kind Distribution, rng *rand.Rand) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{1}
	}

	ws := make([]float64, n)
	switch kind {
	case DistValley:
		// Heavier at the edges of the ladder, lightest at the center.
		center := float64(n-1) / 2
		for i := range ws {
			d := float64(i) - center
			if d < 0 {
				d = -d
			}
			ws[i] = 1 + d
		}
	case DistRandom:
		for i := range ws {
			ws[i] = 0.5 + rng.Float64()
		}
	default: // LINEAR
		for i := range ws {
			ws[i] = 1
		}
	}
	return normalize(ws)
}

func normalize(ws []float64) []float64 {
	var sum float64
	for _, w := range ws {
		sum += w
	}
	if sum <= 0 {
		for i := range ws {
			ws[i] = 1 / float64(len(ws))
		}
		return ws
	}
	for i := range ws {
		ws[i] /= sum
	}
	return ws
}
