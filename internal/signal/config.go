package signal

import (
	"fmt"

	"forecast-engine/internal/numeric"
)

// Weights are the fixed per-indicator blend weights of one horizon.
type Weights struct {
	EMA           float64 `yaml:"ema" json:"ema"`
	RSI           float64 `yaml:"rsi" json:"rsi"`
	MACD          float64 `yaml:"macd" json:"macd"`
	Bollinger     float64 `yaml:"bollinger" json:"bollinger"`
	Stochastic    float64 `yaml:"stochastic" json:"stochastic"`
	MeanReversion float64 `yaml:"mean_reversion" json:"mean_reversion"`
}

// Horizon scales a composite score into a price delta:
// delta = clamp(raw) * clamp(atrPct * ATRMultiplier, 0, Cap).
type Horizon struct {
	Weights       Weights `yaml:"weights" json:"weights"`
	ATRMultiplier float64 `yaml:"atr_multiplier" json:"atr_multiplier"`
	Cap           float64 `yaml:"cap" json:"cap"`
}

// Config holds every hand-tuned constant of the fusion model. Tuning is a
// data change: load a different Config, don't edit formulas.
type Config struct {
	Short Horizon `yaml:"short" json:"short"`
	Long  Horizon `yaml:"long" json:"long"`

	// EMA trend signal: FastBlend*(ema[fast]-ema[mid])/p + SlowBlend*(ema[mid]-ema[slow])/p
	EMAFast      int     `yaml:"ema_fast" json:"ema_fast"`
	EMAMid       int     `yaml:"ema_mid" json:"ema_mid"`
	EMASlow      int     `yaml:"ema_slow" json:"ema_slow"`
	EMAFastBlend float64 `yaml:"ema_fast_blend" json:"ema_fast_blend"`
	EMASlowBlend float64 `yaml:"ema_slow_blend" json:"ema_slow_blend"`

	// RSI piecewise mapping.
	RSIStrongHigh   float64 `yaml:"rsi_strong_high" json:"rsi_strong_high"`
	RSIMildHigh     float64 `yaml:"rsi_mild_high" json:"rsi_mild_high"`
	RSIMildLow      float64 `yaml:"rsi_mild_low" json:"rsi_mild_low"`
	RSIStrongLow    float64 `yaml:"rsi_strong_low" json:"rsi_strong_low"`
	RSIStrongSignal float64 `yaml:"rsi_strong_signal" json:"rsi_strong_signal"`
	RSIMildSignal   float64 `yaml:"rsi_mild_signal" json:"rsi_mild_signal"`

	// Bollinger %B mapping.
	BBUpper      float64 `yaml:"bb_upper" json:"bb_upper"`
	BBLower      float64 `yaml:"bb_lower" json:"bb_lower"`
	BBEdgeSignal float64 `yaml:"bb_edge_signal" json:"bb_edge_signal"`
	BBSlope      float64 `yaml:"bb_slope" json:"bb_slope"`

	// Stochastic cross-region mapping.
	StochHigh   float64 `yaml:"stoch_high" json:"stoch_high"`
	StochLow    float64 `yaml:"stoch_low" json:"stoch_low"`
	StochSignal float64 `yaml:"stoch_signal" json:"stoch_signal"`

	// |signal| at which a reading's strength reaches 100.
	StrengthScale float64 `yaml:"strength_scale" json:"strength_scale"`
}

// DefaultConfig returns the stock weights and caps.
func DefaultConfig() Config {
	return Config{
		Short: Horizon{
			Weights: Weights{
				EMA:           0.30,
				RSI:           0.10,
				MACD:          0.25,
				Bollinger:     0.15,
				Stochastic:    0.10,
				MeanReversion: 0.05,
			},
			ATRMultiplier: 8,
			Cap:           0.03,
		},
		Long: Horizon{
			Weights: Weights{
				EMA:           0.20,
				RSI:           0.15,
				MACD:          0.15,
				Bollinger:     0.15,
				Stochastic:    0.10,
				MeanReversion: 0.20,
			},
			ATRMultiplier: 80,
			Cap:           0.15,
		},

		EMAFast:      8,
		EMAMid:       21,
		EMASlow:      50,
		EMAFastBlend: 0.6,
		EMASlowBlend: 0.4,

		RSIStrongHigh:   75,
		RSIMildHigh:     60,
		RSIMildLow:      40,
		RSIStrongLow:    25,
		RSIStrongSignal: 0.005,
		RSIMildSignal:   0.002,

		BBUpper:      0.95,
		BBLower:      0.05,
		BBEdgeSignal: 0.004,
		BBSlope:      0.004,

		StochHigh:   80,
		StochLow:    20,
		StochSignal: 0.02,

		StrengthScale: 0.01,
	}
}

// Validate rejects configurations that would break the forecast bounds.
func (c Config) Validate() error {
	for name, h := range map[string]Horizon{"short": c.Short, "long": c.Long} {
		if !numeric.Finite(h.Cap) || h.Cap < 0 || h.Cap >= 1 {
			return fmt.Errorf("%s horizon cap %v must be in [0, 1)", name, h.Cap)
		}
		if !numeric.Finite(h.ATRMultiplier) || h.ATRMultiplier < 0 {
			return fmt.Errorf("%s horizon atr multiplier %v must be >= 0", name, h.ATRMultiplier)
		}
		w := h.Weights
		for _, v := range []float64{w.EMA, w.RSI, w.MACD, w.Bollinger, w.Stochastic, w.MeanReversion} {
			if !numeric.Finite(v) {
				return fmt.Errorf("%s horizon has a non-finite weight", name)
			}
		}
	}
	if c.EMAFast < 1 || c.EMAMid < 1 || c.EMASlow < 1 {
		return fmt.Errorf("ema periods must be positive (got %d/%d/%d)", c.EMAFast, c.EMAMid, c.EMASlow)
	}
	if c.RSIMildHigh > c.RSIStrongHigh || c.RSIStrongLow > c.RSIMildLow {
		return fmt.Errorf("rsi thresholds out of order")
	}
	if c.StrengthScale <= 0 {
		return fmt.Errorf("strength scale must be positive")
	}
	return nil
}
