// Package indicator provides technical indicator calculations over price
// sequences.
//
// Two layers are exposed. Streaming indicators (EMA, SMA, RSI) fold one
// observation at a time and are O(1) per update. The batch functions
// (EMASeries, SMASeries, RSI, MACD, Bollinger, Stochastic, ATR) run the
// streaming types over a whole ordered window and are total: short or empty
// input resolves to a documented neutral value instead of an error, so the
// fusion stage never has to special-case missing history.
package indicator

// Default periods used by the forecasting engine.
const (
	DefaultRSIPeriod   = 14
	DefaultMACDFast    = 12
	DefaultMACDSlow    = 26
	DefaultMACDSignal  = 9
	DefaultBBPeriod    = 20
	DefaultBBMult      = 2.0
	DefaultStochK      = 14
	DefaultStochD      = 3
	DefaultATRPeriod   = 14
	NeutralRSI         = 50.0
	NeutralStochastic  = 50.0
	bbFallbackUpperPct = 0.002
	bbFallbackLowerPct = 0.005
)

// Streaming is the interface for indicators updated one observation at a time.
type Streaming interface {
	// Name returns the indicator name (e.g., "EMA", "RSI").
	Name() string

	// Update feeds the next observation and recalculates.
	Update(v float64)

	// Value returns the current calculated value.
	Value() float64

	// Ready returns true once the indicator has its natural minimum history.
	Ready() bool
}

var (
	_ Streaming = (*EMA)(nil)
	_ Streaming = (*SMA)(nil)
	_ Streaming = (*RSI)(nil)
)

// feed runs every value of series through s and returns its final value.
func feed(s Streaming, series []float64) float64 {
	for _, v := range series {
		s.Update(v)
	}
	return s.Value()
}
