package model

import (
	"encoding/json"
	"time"
)

// Direction is the directional reading of a signal.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// DirectionOf maps the sign of a signal to a Direction; exactly 0 is neutral.
func DirectionOf(signal float64) Direction {
	switch {
	case signal > 0:
		return Bullish
	case signal < 0:
		return Bearish
	default:
		return Neutral
	}
}

// IndicatorKind identifies one of the fused indicators. The set is closed;
// IndicatorKinds lists every member in a fixed order.
type IndicatorKind string

const (
	KindEMA           IndicatorKind = "ema"
	KindRSI           IndicatorKind = "rsi"
	KindMACD          IndicatorKind = "macd"
	KindBollinger     IndicatorKind = "bollinger"
	KindStochastic    IndicatorKind = "stochastic"
	KindATR           IndicatorKind = "atr"
	KindMeanReversion IndicatorKind = "mean_reversion"
)

// IndicatorKinds is every indicator kind in fusion order.
var IndicatorKinds = []IndicatorKind{
	KindEMA,
	KindRSI,
	KindMACD,
	KindBollinger,
	KindStochastic,
	KindATR,
	KindMeanReversion,
}

// IndicatorReading is the uniform output shape of every indicator kind.
// Components holds the kind-specific raw values (e.g. "line", "signal",
// "histogram" for MACD). Readings are created fresh every computation and
// never mutated afterwards.
type IndicatorReading struct {
	Kind       IndicatorKind      `json:"kind"`
	Value      float64            `json:"value"`  // headline value (RSI level, %B, ATR, ...)
	Signal     float64            `json:"signal"` // fractional directional signal fed to the fusion
	Direction  Direction          `json:"direction"`
	Strength   float64            `json:"strength"` // 0..100
	Valid      bool               `json:"valid"`    // false when a short-history fallback was used
	Components map[string]float64 `json:"components,omitempty"`
}

// ForecastInput is the per-asset, per-refresh input contract.
type ForecastInput struct {
	AssetID      string    `json:"asset_id"`
	CurrentPrice float64   `json:"current_price"`
	HourlyCloses []float64 `json:"hourly_closes"` // ascending time order
	HourlyHighs  []float64 `json:"hourly_highs"`  // same length/order as HourlyCloses
	HourlyLows   []float64 `json:"hourly_lows"`
	DailyCloses  []float64 `json:"daily_closes"` // ascending time order, ~30 points
}

// Forecast is the fused output of one refresh cycle for one asset.
type Forecast struct {
	AssetID           string                             `json:"asset_id"`
	ObservedPrice     float64                            `json:"observed_price"`
	ShortHorizonPrice float64                            `json:"short_horizon_price"`
	LongHorizonPrice  float64                            `json:"long_horizon_price"`
	ShortRaw          float64                            `json:"short_raw"`
	LongRaw           float64                            `json:"long_raw"`
	Readings          map[IndicatorKind]IndicatorReading `json:"readings"`
	Sentiment         Direction                          `json:"sentiment"`
	ComputedAt        time.Time                          `json:"computed_at"`
}

// FlatForecast is the flat display/logging record of a Forecast.
type FlatForecast struct {
	AssetID           string    `json:"asset_id"`
	ObservedPrice     float64   `json:"observed_price"`
	ShortHorizonPrice float64   `json:"short_horizon_price"`
	LongHorizonPrice  float64   `json:"long_horizon_price"`
	Sentiment         Direction `json:"sentiment"`
	EMASignal         float64   `json:"ema_signal"`
	RSI               float64   `json:"rsi"`
	MACDHistogram     float64   `json:"macd_histogram"`
	PercentB          float64   `json:"percent_b"`
	StochK            float64   `json:"stoch_k"`
	ATRPct            float64   `json:"atr_pct"`
	MeanReversion     float64   `json:"mean_reversion"`
	ComputedAt        time.Time `json:"computed_at"`
}

// Flat projects the forecast onto a FlatForecast.
func (f *Forecast) Flat() FlatForecast {
	return FlatForecast{
		AssetID:           f.AssetID,
		ObservedPrice:     f.ObservedPrice,
		ShortHorizonPrice: f.ShortHorizonPrice,
		LongHorizonPrice:  f.LongHorizonPrice,
		Sentiment:         f.Sentiment,
		EMASignal:         f.Readings[KindEMA].Signal,
		RSI:               f.Readings[KindRSI].Value,
		MACDHistogram:     f.Readings[KindMACD].Value,
		PercentB:          f.Readings[KindBollinger].Value,
		StochK:            f.Readings[KindStochastic].Value,
		ATRPct:            f.Readings[KindATR].Components["atr_pct"],
		MeanReversion:     f.Readings[KindMeanReversion].Signal,
		ComputedAt:        f.ComputedAt,
	}
}

// JSON returns the JSON-encoded forecast (ignoring errors for hot-path usage).
func (f *Forecast) JSON() []byte {
	b, _ := json.Marshal(f)
	return b
}
