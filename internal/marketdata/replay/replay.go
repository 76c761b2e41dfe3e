// Package replay walks historical hourly candles forward through the fusion
// engine and a simulated-clock prediction ledger, so forecast accuracy can
// be measured without waiting for live horizons to elapse.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"forecast-engine/internal/ledger"
	"forecast-engine/internal/marketdata/tfbuilder"
	"forecast-engine/internal/model"
	"forecast-engine/internal/signal"
)

// Config controls the walk.
type Config struct {
	HourlyPoints int // hourly window fed to each forecast
	DailyPoints  int // daily window fed to each forecast
	DailyTF      int // seconds; daily bars are resampled from the hourly walk
	Warmup       int // hourly candles per asset before the first forecast
	Ledger       ledger.Config
}

// DefaultConfig mirrors the live windows. Every forecast is recorded.
func DefaultConfig() Config {
	lc := ledger.DefaultConfig()
	lc.Capacity = 1_000_000
	lc.MinSpacing = 0
	lc.ShortHorizon = time.Hour
	return Config{
		HourlyPoints: 120,
		DailyPoints:  30,
		DailyTF:      86400,
		Warmup:       35,
		Ledger:       lc,
	}
}

// Report summarizes a finished walk.
type Report struct {
	From, To   time.Time
	Candles    int
	Forecasts  int
	Recorded   int
	Resolved   int
	Flips      int
	Sentiments map[model.Direction]int
	Overall    model.LedgerStats
	PerAsset   map[string]model.LedgerStats
}

// assetState is the rolling history of one asset.
type assetState struct {
	hourly []model.Candle
	daily  []float64 // closed daily closes
	last   model.Direction
}

// Backtester replays candles through an engine.
type Backtester struct {
	engine *signal.Engine
	cfg    Config
	log    *slog.Logger
}

// New creates a Backtester.
func New(engine *signal.Engine, cfg Config, log *slog.Logger) *Backtester {
	def := DefaultConfig()
	if cfg.HourlyPoints <= 0 {
		cfg.HourlyPoints = def.HourlyPoints
	}
	if cfg.DailyPoints <= 0 {
		cfg.DailyPoints = def.DailyPoints
	}
	if cfg.DailyTF <= 0 {
		cfg.DailyTF = def.DailyTF
	}
	if cfg.Warmup < 1 {
		cfg.Warmup = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{engine: engine, cfg: cfg, log: log.With(slog.String("component", "backtest"))}
}

// Run walks the hourly candles of every asset in timestamp order. At each
// candle the simulated clock advances to its timestamp, due ledger horizons
// resolve against the newest close of each asset, and a forecast is computed
// and recorded. Candles are copied and may be in any order.
func (b *Backtester) Run(ctx context.Context, candles []model.Candle) (Report, error) {
	rep := Report{
		Sentiments: make(map[model.Direction]int, 3),
		PerAsset:   make(map[string]model.LedgerStats),
	}
	if len(candles) == 0 {
		return rep, nil
	}

	walk := append([]model.Candle(nil), candles...)
	sort.SliceStable(walk, func(i, j int) bool { return walk[i].TS.Before(walk[j].TS) })

	var clock time.Time
	led, err := ledger.Open(ctx, ledger.NewMemoryStore(), b.cfg.Ledger, b.log,
		ledger.WithClock(func() time.Time { return clock }))
	if err != nil {
		return rep, fmt.Errorf("backtest ledger: %w", err)
	}

	days := tfbuilder.New(b.cfg.DailyTF)
	assets := make(map[string]*assetState)
	prices := make(map[string]float64)
	lookup := func(id string) (float64, bool) {
		p, ok := prices[id]
		return p, ok
	}

	rep.From = walk[0].TS
	for i, c := range walk {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
		}
		rep.Candles++
		rep.To = c.TS
		clock = c.TS

		st, ok := assets[c.AssetID]
		if !ok {
			st = &assetState{}
			assets[c.AssetID] = st
		}
		st.hourly = append(st.hourly, c)
		if over := len(st.hourly) - b.cfg.HourlyPoints; over > 0 {
			st.hourly = st.hourly[over:]
		}
		if closed, ok := days.Add(c); ok {
			st.daily = append(st.daily, closed.Close)
			if over := len(st.daily) - b.cfg.DailyPoints; over > 0 {
				st.daily = st.daily[over:]
			}
		}
		prices[c.AssetID] = c.Close

		rep.Resolved += led.Resolve(lookup)

		if len(st.hourly) < b.cfg.Warmup {
			continue
		}
		f := b.engine.ComputeAt(b.input(c.AssetID, st, days), c.TS)
		rep.Forecasts++
		rep.Sentiments[f.Sentiment]++
		if signal.Flipped(st.last, f.Sentiment) {
			rep.Flips++
		}
		if f.Sentiment != model.Neutral {
			st.last = f.Sentiment
		}
		if _, ok := led.Record(f.AssetID, f.ObservedPrice, f.ShortHorizonPrice, f.LongHorizonPrice); ok {
			rep.Recorded++
		}
	}

	rep.Overall = led.Stats("")
	for id := range assets {
		rep.PerAsset[id] = led.Stats(id)
	}
	b.log.Info("backtest complete",
		slog.Int("candles", rep.Candles),
		slog.Int("forecasts", rep.Forecasts),
		slog.Int("resolved", rep.Resolved),
	)
	return rep, nil
}

// input builds the forecast input from an asset's rolling windows. The
// forming daily bar counts as the newest daily close.
func (b *Backtester) input(assetID string, st *assetState, days *tfbuilder.Builder) model.ForecastInput {
	in := model.ForecastInput{AssetID: assetID}
	in.HourlyCloses, in.HourlyHighs, in.HourlyLows = model.Series(st.hourly)
	in.CurrentPrice = in.HourlyCloses[len(in.HourlyCloses)-1]

	daily := append(make([]float64, 0, len(st.daily)+1), st.daily...)
	if forming, ok := days.Forming(assetID); ok {
		daily = append(daily, forming.Close)
	}
	if over := len(daily) - b.cfg.DailyPoints; over > 0 {
		daily = daily[over:]
	}
	in.DailyCloses = daily
	return in
}
