// Package simmath holds the shared numeric helpers used by the simulation
// engines. Every function is pure and total over float64 inputs.
package simmath

// Clamp bounds v to the inclusive range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to [0, 1].
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}

// Smoothstep is the Hermite interpolation t^2*(3-2t) over t clamped to [0,1].
// Monotonically non-decreasing on the whole real line.
func Smoothstep(t float64) float64 {
	t = Clamp01(t)
	return t * t * (3 - 2*t)
}

// SafeRatio returns num/den, or fallback when den is zero.
func SafeRatio(num, den, fallback float64) float64 {
	if den == 0 {
		return fallback
	}
	return num / den
}

// Weighted is a single observation with its weight.
type Weighted struct {
	Value  float64
	Weight float64
}

// WeightedMean returns the weight-normalized mean of the observations and the
// total weight. A zero or negative total weight yields (0, 0).
func WeightedMean(obs []Weighted) (mean, totalWeight float64) {
	var sum float64
	for _, o := range obs {
		sum += o.Value * o.Weight
		totalWeight += o.Weight
	}
	if totalWeight <= 0 {
		return 0, 0
	}
	return sum / totalWeight, totalWeight
}
