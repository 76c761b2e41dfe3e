// Package signal fuses the indicator library's outputs into two
// horizon-bounded price forecasts and a consensus sentiment.
//
// The engine is a pure function of its input: it holds no per-asset state and
// can be called for many assets in parallel.
package signal

import (
	"time"

	"forecast-engine/internal/indicator"
	"forecast-engine/internal/model"
	"forecast-engine/internal/numeric"
)

// Engine computes forecasts from windowed price arrays.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine with the given configuration. Callers are
// expected to Validate configs loaded from outside the process.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute runs one fusion pass stamped with the wall clock.
func (e *Engine) Compute(in model.ForecastInput) model.Forecast {
	return e.ComputeAt(in, time.Now().UTC())
}

// ComputeAt runs one fusion pass. It never fails: short or degenerate
// histories fall back to neutral readings and the forecasts stay within the
// configured caps of the observed price.
func (e *Engine) ComputeAt(in model.ForecastInput, at time.Time) model.Forecast {
	price := in.CurrentPrice
	closes := in.HourlyCloses
	if len(closes) == 0 {
		closes = []float64{price}
	}

	readings := make(map[model.IndicatorKind]model.IndicatorReading, len(model.IndicatorKinds))
	put := func(r model.IndicatorReading) {
		r.Value = finiteOrZero(r.Value)
		r.Signal = finiteOrZero(r.Signal)
		for k, v := range r.Components {
			r.Components[k] = finiteOrZero(v)
		}
		r.Direction = model.DirectionOf(r.Signal)
		r.Strength = numeric.Clamp(numeric.SafeDiv(abs(r.Signal), e.cfg.StrengthScale, 0)*100, 0, 100)
		readings[r.Kind] = r
	}

	put(e.emaReading(closes, price))
	put(e.rsiReading(closes))
	put(e.macdReading(closes, price))
	put(e.bollingerReading(closes))
	put(e.stochasticReading(in.HourlyHighs, in.HourlyLows, closes))
	atr := e.atrReading(in.HourlyHighs, in.HourlyLows, closes, price)
	put(atr)
	put(e.meanReversionReading(in.DailyCloses, price))

	atrPct := atr.Components["atr_pct"]
	shortRaw := e.composite(e.cfg.Short.Weights, readings)
	longRaw := e.composite(e.cfg.Long.Weights, readings)

	return model.Forecast{
		AssetID:           in.AssetID,
		ObservedPrice:     price,
		ShortHorizonPrice: project(price, shortRaw, atrPct, e.cfg.Short),
		LongHorizonPrice:  project(price, longRaw, atrPct, e.cfg.Long),
		ShortRaw:          shortRaw,
		LongRaw:           longRaw,
		Readings:          readings,
		Sentiment:         Consensus(readings),
		ComputedAt:        at,
	}
}

// composite blends the directional signals with fixed weights. The result is
// clamped to [-1, 1] so the horizon cap bounds the forecast move.
func (e *Engine) composite(w Weights, r map[model.IndicatorKind]model.IndicatorReading) float64 {
	raw := w.EMA*r[model.KindEMA].Signal +
		w.RSI*r[model.KindRSI].Signal +
		w.MACD*r[model.KindMACD].Signal +
		w.Bollinger*r[model.KindBollinger].Signal +
		w.Stochastic*r[model.KindStochastic].Signal +
		w.MeanReversion*r[model.KindMeanReversion].Signal
	return numeric.Clamp(raw, -1, 1)
}

// project applies price * (1 + raw * clamp(atrPct*mult, 0, cap)).
func project(price, raw, atrPct float64, h Horizon) float64 {
	mult := numeric.Clamp(atrPct*h.ATRMultiplier, 0, h.Cap)
	return price * (1 + raw*mult)
}

// ── Per-indicator readings ──

func (e *Engine) emaReading(closes []float64, price float64) model.IndicatorReading {
	fast := last(indicator.EMASeries(closes, e.cfg.EMAFast))
	mid := last(indicator.EMASeries(closes, e.cfg.EMAMid))
	slow := mid
	if len(closes) >= e.cfg.EMASlow {
		slow = last(indicator.EMASeries(closes, e.cfg.EMASlow))
	}
	sig := e.cfg.EMAFastBlend*numeric.SafeDiv(fast-mid, price, 0) +
		e.cfg.EMASlowBlend*numeric.SafeDiv(mid-slow, price, 0)
	return model.IndicatorReading{
		Kind:   model.KindEMA,
		Value:  fast,
		Signal: sig,
		Valid:  len(closes) >= e.cfg.EMASlow,
		Components: map[string]float64{
			"fast": fast,
			"mid":  mid,
			"slow": slow,
		},
	}
}

func (e *Engine) rsiReading(closes []float64) model.IndicatorReading {
	rsi := indicator.RSIValue(closes, indicator.DefaultRSIPeriod)
	return model.IndicatorReading{
		Kind:   model.KindRSI,
		Value:  rsi,
		Signal: e.rsiSignal(rsi),
		Valid:  len(closes) > indicator.DefaultRSIPeriod,
	}
}

// rsiSignal maps an RSI level onto a contrarian signal.
func (e *Engine) rsiSignal(rsi float64) float64 {
	c := e.cfg
	switch {
	case rsi > c.RSIStrongHigh:
		return -c.RSIStrongSignal
	case rsi >= c.RSIMildHigh:
		return -c.RSIMildSignal
	case rsi < c.RSIStrongLow:
		return c.RSIStrongSignal
	case rsi <= c.RSIMildLow:
		return c.RSIMildSignal
	default:
		return 0
	}
}

func (e *Engine) macdReading(closes []float64, price float64) model.IndicatorReading {
	m := indicator.MACD(closes)
	return model.IndicatorReading{
		Kind:   model.KindMACD,
		Value:  m.Histogram,
		Signal: numeric.SafeDiv(m.Histogram, price, 0),
		Valid:  len(closes) >= indicator.DefaultMACDSlow,
		Components: map[string]float64{
			"line":      m.Line,
			"signal":    m.Signal,
			"histogram": m.Histogram,
		},
	}
}

func (e *Engine) bollingerReading(closes []float64) model.IndicatorReading {
	bb := indicator.Bollinger(closes, indicator.DefaultBBPeriod, indicator.DefaultBBMult)
	return model.IndicatorReading{
		Kind:   model.KindBollinger,
		Value:  bb.PercentB,
		Signal: e.bbSignal(bb.PercentB),
		Valid:  bb.Valid,
		Components: map[string]float64{
			"mid":       bb.Mid,
			"upper":     bb.Upper,
			"lower":     bb.Lower,
			"bandwidth": bb.BandwidthRatio,
		},
	}
}

// bbSignal expects reversion from the band edges and a mild pull toward the
// mid band inside them.
func (e *Engine) bbSignal(pctB float64) float64 {
	c := e.cfg
	switch {
	case pctB > c.BBUpper:
		return -c.BBEdgeSignal
	case pctB < c.BBLower:
		return c.BBEdgeSignal
	default:
		return (0.5 - pctB) * c.BBSlope
	}
}

func (e *Engine) stochasticReading(highs, lows, closes []float64) model.IndicatorReading {
	st := indicator.Stochastic(highs, lows, closes, indicator.DefaultStochK, indicator.DefaultStochD)
	var sig float64
	switch {
	case st.K > e.cfg.StochHigh && st.K > st.D:
		sig = -e.cfg.StochSignal
	case st.K < e.cfg.StochLow && st.K < st.D:
		sig = e.cfg.StochSignal
	}
	return model.IndicatorReading{
		Kind:   model.KindStochastic,
		Value:  st.K,
		Signal: sig,
		Valid:  st.Valid,
		Components: map[string]float64{
			"k": st.K,
			"d": st.D,
		},
	}
}

// atrReading carries volatility only; its signal is always zero so it votes
// neutral and adds nothing to the composites.
func (e *Engine) atrReading(highs, lows, closes []float64, price float64) model.IndicatorReading {
	atr := indicator.ATR(highs, lows, closes, indicator.DefaultATRPeriod)
	atrPct := finiteOrZero(numeric.SafeDiv(atr, price, 0))
	return model.IndicatorReading{
		Kind:  model.KindATR,
		Value: atr,
		Valid: len(closes) > indicator.DefaultATRPeriod,
		Components: map[string]float64{
			"atr_pct": atrPct,
		},
	}
}

func (e *Engine) meanReversionReading(daily []float64, price float64) model.IndicatorReading {
	if len(daily) == 0 {
		return model.IndicatorReading{Kind: model.KindMeanReversion, Value: price}
	}
	mean := numeric.Mean(daily)
	return model.IndicatorReading{
		Kind:   model.KindMeanReversion,
		Value:  mean,
		Signal: numeric.SafeDiv(mean-price, mean, 0),
		Valid:  len(daily) >= minDailyPoints,
	}
}

// minDailyPoints is the daily history below which mean reversion is flagged
// as a fallback reading.
const minDailyPoints = 20

func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func finiteOrZero(v float64) float64 {
	if !numeric.Finite(v) {
		return 0
	}
	return v
}
