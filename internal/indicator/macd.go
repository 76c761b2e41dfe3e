package indicator

// MACDResult is the latest MACD line, signal and histogram.
type MACDResult struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// MACD computes MACD(12,26,9) over series, read from the latest element.
func MACD(series []float64) MACDResult {
	return MACDWith(series, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
}

// MACDWith computes MACD with explicit periods. The difference line is
// EMA(fast) − EMA(slow) at every index; the signal is the EMA of that line.
// An empty series yields all zeros.
func MACDWith(series []float64, fast, slow, signal int) MACDResult {
	if len(series) == 0 {
		return MACDResult{}
	}

	fastEMA := NewEMA(fast)
	slowEMA := NewEMA(slow)
	sigEMA := NewEMA(signal)

	var line float64
	for _, v := range series {
		fastEMA.Update(v)
		slowEMA.Update(v)
		line = fastEMA.Value() - slowEMA.Value()
		sigEMA.Update(line)
	}

	sig := sigEMA.Value()
	return MACDResult{
		Line:      line,
		Signal:    sig,
		Histogram: line - sig,
	}
}
