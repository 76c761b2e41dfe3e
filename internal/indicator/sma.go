package indicator

import "math"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer for zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(v float64) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

// Value returns the trailing-window mean, or 0 before the window is full.
func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Partial returns the mean of the observations seen so far when the window
// is not yet full, and the window mean otherwise.
func (s *SMA) Partial() float64 {
	if s.count == 0 {
		return 0
	}
	if s.count < s.period {
		return s.sum / float64(s.count)
	}
	return s.current
}

// SMASeries returns the trailing-window SMA at every index. The first
// period-1 entries have no full window and are NaN.
func SMASeries(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	sma := NewSMA(period)
	for i, v := range series {
		sma.Update(v)
		if sma.Ready() {
			out[i] = sma.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
