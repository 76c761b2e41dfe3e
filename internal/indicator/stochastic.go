package indicator

import "forecast-engine/internal/numeric"

// StochasticResult holds the latest %K and %D.
type StochasticResult struct {
	K     float64 `json:"k"`
	D     float64 `json:"d"`
	Valid bool    `json:"valid"`
}

// Stochastic computes %K over the trailing kPeriod window (50 when the window
// is flat) and %D as the simple moving average of %K over dPeriod. Highs and
// lows that do not line up with closes are replaced by the closes.
func Stochastic(highs, lows, closes []float64, kPeriod, dPeriod int) StochasticResult {
	n := len(closes)
	if n == 0 {
		return StochasticResult{K: NeutralStochastic, D: NeutralStochastic}
	}
	if len(highs) != n || len(lows) != n {
		highs, lows = closes, closes
	}
	if kPeriod < 1 {
		kPeriod = 1
	}
	if dPeriod < 1 {
		dPeriod = 1
	}

	// Only the last dPeriod %K values feed %D.
	start := n - dPeriod
	if start < 0 {
		start = 0
	}
	d := NewSMA(dPeriod)
	var k float64
	for i := start; i < n; i++ {
		k = percentK(highs, lows, closes, i, kPeriod)
		d.Update(k)
	}

	return StochasticResult{
		K:     k,
		D:     d.Partial(),
		Valid: n >= kPeriod+dPeriod-1,
	}
}

// percentK evaluates %K at index i over the window ending at i.
func percentK(highs, lows, closes []float64, i, kPeriod int) float64 {
	from := i - kPeriod + 1
	if from < 0 {
		from = 0
	}
	_, hh := numeric.MinMax(highs[from : i+1])
	ll, _ := numeric.MinMax(lows[from : i+1])
	return numeric.SafeDiv(closes[i]-ll, hh-ll, NeutralStochastic/100) * 100
}
