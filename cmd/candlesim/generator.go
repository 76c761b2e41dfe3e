package main

import (
	"math/rand"
	"time"

	"forecast-engine/internal/marketdata/tfbuilder"
	"forecast-engine/internal/model"
)

// defaultPrices seeds well-known assets; anything else starts at 100.
var defaultPrices = map[string]float64{
	"BTC": 60000,
	"ETH": 3000,
	"SOL": 150,
	"ADA": 0.45,
}

// walker holds per-asset simulation state.
type walker struct {
	asset string
	price float64
}

// generator produces random-walk hourly candles and resamples them into
// daily candles.
type generator struct {
	rng      *rand.Rand
	tf       int
	walkers  []*walker
	daily    *tfbuilder.Builder
	stepPct  float64 // max move per sub-step, as a fraction
	subSteps int
}

func newGenerator(assets []string, hourlyTF, dailyTF int, seed int64) *generator {
	g := &generator{
		rng:      rand.New(rand.NewSource(seed)),
		tf:       hourlyTF,
		daily:    tfbuilder.New(dailyTF),
		stepPct:  0.004,
		subSteps: 6,
	}
	for _, a := range assets {
		p := defaultPrices[a]
		if p == 0 {
			p = 100
		}
		g.walkers = append(g.walkers, &walker{asset: a, price: p})
	}
	return g
}

// walkPrice applies one random step of up to ±stepPct.
func (g *generator) walkPrice(price float64) float64 {
	next := price * (1 + (g.rng.Float64()*2-1)*g.stepPct)
	if next < 0.0001 {
		next = 0.0001
	}
	return next
}

// step emits one hourly candle per asset starting at ts, plus any daily
// candles the hour closed.
func (g *generator) step(ts time.Time) (hourly, closedDaily []model.Candle) {
	for _, w := range g.walkers {
		c := model.Candle{
			AssetID: w.asset,
			TF:      g.tf,
			TS:      ts.UTC(),
			Open:    w.price,
			High:    w.price,
			Low:     w.price,
		}
		p := w.price
		for i := 0; i < g.subSteps; i++ {
			p = g.walkPrice(p)
			if p > c.High {
				c.High = p
			}
			if p < c.Low {
				c.Low = p
			}
			c.Volume += float64(g.rng.Intn(100) + 1)
		}
		c.Close = p
		w.price = p

		hourly = append(hourly, c)
		if d, ok := g.daily.Add(c); ok {
			closedDaily = append(closedDaily, d)
		}
	}
	return hourly, closedDaily
}

// forming returns the in-progress daily candle of every asset.
func (g *generator) forming() []model.Candle {
	out := make([]model.Candle, 0, len(g.walkers))
	for _, w := range g.walkers {
		if c, ok := g.daily.Forming(w.asset); ok {
			out = append(out, c)
		}
	}
	return out
}
