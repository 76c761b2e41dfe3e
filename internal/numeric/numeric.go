// Package numeric holds the small float64 helpers shared by the indicator
// library, the fusion engine and the ledger.
package numeric

import "math"

// Mean returns the arithmetic mean of xs. Returns 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// PopStdDev returns the population standard deviation of xs around mean.
func PopStdDev(xs []float64, mean float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// Clamp bounds v to [lo, hi]. NaN clamps to 0 when 0 is inside the range.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		if lo <= 0 && hi >= 0 {
			return 0
		}
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SafeDiv divides a by b, returning fallback when b is zero or the result is
// not finite.
func SafeDiv(a, b, fallback float64) float64 {
	if b == 0 {
		return fallback
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return fallback
	}
	return r
}

// Sign returns -1, 0 or +1.
func Sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// MinMax returns the smallest and largest values of xs. Both are 0 for an
// empty slice.
func MinMax(xs []float64) (lo, hi float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}

// Finite reports whether v is neither NaN nor ±Inf.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Tail returns the last n elements of xs (all of xs when shorter).
func Tail(xs []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
