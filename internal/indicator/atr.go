package indicator

import "math"

// ATR returns the EMA-smoothed true range. True range is
// max(high-low, |high-prevClose|, |low-prevClose|); the first element uses
// high[0]-low[0]. Highs and lows that do not line up with closes are
// replaced by the closes, which degrades to an EMA of absolute close moves.
func ATR(highs, lows, closes []float64, period int) float64 {
	return lastEMA(TrueRange(highs, lows, closes), period)
}

// TrueRange returns the per-bar true range series.
func TrueRange(highs, lows, closes []float64) []float64 {
	n := len(closes)
	if n == 0 {
		return nil
	}
	if len(highs) != n || len(lows) != n {
		highs, lows = closes, closes
	}

	tr := make([]float64, n)
	tr[0] = highs[0] - lows[0]
	for i := 1; i < n; i++ {
		prev := closes[i-1]
		tr[i] = math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-prev), math.Abs(lows[i]-prev)))
	}
	return tr
}
