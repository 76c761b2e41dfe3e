package indicator

import "forecast-engine/internal/numeric"

// BollingerResult holds the latest band values.
type BollingerResult struct {
	Mid            float64 `json:"mid"`
	Upper          float64 `json:"upper"`
	Lower          float64 `json:"lower"`
	BandwidthRatio float64 `json:"bandwidth_ratio"` // (upper-lower)/mid
	PercentB       float64 `json:"percent_b"`       // (last-lower)/(upper-lower)
	Valid          bool    `json:"valid"`           // false when the fallback band was used
}

// Bollinger computes Bollinger Bands over the trailing period window using
// the rolling mean ± mult × population standard deviation.
//
// With fewer than period points the band falls back to +0.2% / −0.5% of the
// last price around a mid equal to the last price. A zero-width band yields
// %B = 0.5.
func Bollinger(series []float64, period int, mult float64) BollingerResult {
	if len(series) == 0 {
		return BollingerResult{PercentB: 0.5}
	}
	last := series[len(series)-1]

	var res BollingerResult
	if period > 0 && len(series) >= period {
		window := series[len(series)-period:]
		mid := numeric.Mean(window)
		sd := numeric.PopStdDev(window, mid)
		res = BollingerResult{
			Mid:   mid,
			Upper: mid + mult*sd,
			Lower: mid - mult*sd,
			Valid: true,
		}
	} else {
		res = BollingerResult{
			Mid:   last,
			Upper: last * (1 + bbFallbackUpperPct),
			Lower: last * (1 - bbFallbackLowerPct),
		}
	}

	width := res.Upper - res.Lower
	res.PercentB = numeric.SafeDiv(last-res.Lower, width, 0.5)
	res.BandwidthRatio = numeric.SafeDiv(width, res.Mid, 0)
	return res
}
