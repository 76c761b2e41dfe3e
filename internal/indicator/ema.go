package indicator

// EMA calculates Exponential Moving Average.
// O(1) per update with no window storage. The first observation seeds
// the average, so Value is defined from the first Update onwards.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(v float64) {
	e.count++
	if e.count == 1 {
		e.current = v
		return
	}
	// EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// EMASeries returns the EMA of series at every index. The output has the same
// length as the input and out[0] == series[0].
func EMASeries(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	ema := NewEMA(period)
	for i, v := range series {
		ema.Update(v)
		out[i] = ema.Value()
	}
	return out
}

// lastEMA returns the final EMA value, or 0 for an empty series.
func lastEMA(series []float64, period int) float64 {
	if len(series) == 0 {
		return 0
	}
	return feed(NewEMA(period), series)
}
