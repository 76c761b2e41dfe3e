package forecaster

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"forecast-engine/internal/ledger"
	"forecast-engine/internal/metrics"
	"forecast-engine/internal/model"
	"forecast-engine/internal/signal"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeSource serves a linear uptrend ending at the configured price.
type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (s *fakeSource) set(asset string, price float64) {
	s.mu.Lock()
	s.prices[asset] = price
	s.mu.Unlock()
}

func (s *fakeSource) FetchInput(_ context.Context, asset string) (model.ForecastInput, error) {
	s.mu.Lock()
	price, ok := s.prices[asset]
	s.mu.Unlock()
	if !ok {
		return model.ForecastInput{}, model.ErrNoData
	}
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = price * (0.95 + 0.05*float64(i)/59)
	}
	daily := make([]float64, 30)
	for i := range daily {
		daily[i] = price
	}
	return model.ForecastInput{
		CurrentPrice: price,
		HourlyCloses: closes,
		HourlyHighs:  closes,
		HourlyLows:   closes,
		DailyCloses:  daily,
	}, nil
}

type recordingSink struct {
	mu  sync.Mutex
	got []model.Forecast
	ch  chan struct{}
}

func (r *recordingSink) Name() string { return "recorder" }

func (r *recordingSink) Consume(_ context.Context, f model.Forecast) error {
	r.mu.Lock()
	r.got = append(r.got, f)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
	return nil
}

type brokenSink struct{}

func (brokenSink) Name() string                                  { return "broken" }
func (brokenSink) Consume(context.Context, model.Forecast) error { return errors.New("down") }

type fixture struct {
	svc    *Service
	src    *fakeSource
	store  *ledger.MemoryStore
	ledger *ledger.Ledger
	clock  *clock
	reg    *prometheus.Registry
	health *metrics.HealthStatus
}

func newFixture(t *testing.T, sinks ...model.ForecastSink) *fixture {
	t.Helper()
	f := &fixture{
		src:   &fakeSource{prices: map[string]float64{"BTC": 100}},
		store: ledger.NewMemoryStore(),
		clock: &clock{t: time.UnixMilli(1_700_000_000_000)},
		reg:   prometheus.NewRegistry(),
	}
	var err error
	f.ledger, err = ledger.Open(context.Background(), f.store, ledger.DefaultConfig(), nil, ledger.WithClock(f.clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	f.health = metrics.NewHealthStatus("memory", []string{"BTC", "ETH"})
	f.svc, err = New([]string{"BTC", "ETH"}, "@every 1h", Deps{
		Source:  f.src,
		Engine:  signal.NewEngine(signal.DefaultConfig()),
		Ledger:  f.ledger,
		Sinks:   sinks,
		Metrics: metrics.NewMetrics(f.reg),
		Health:  f.health,
	}, WithClock(f.clock.Now), WithConcurrency(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
			if label == "" {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// ────────────────────────────────────────────────────────────
// Cycles
// ────────────────────────────────────────────────────────────

func TestRunCycle_RecordsAndSkipsFailedAssets(t *testing.T) {
	fx := newFixture(t)

	res := fx.svc.RunCycle(context.Background())

	if len(res.Forecasts) != 1 || res.Forecasts[0].AssetID != "BTC" {
		t.Fatalf("forecasts = %+v", res.Forecasts)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "ETH" {
		t.Errorf("failed = %v, want [ETH]", res.Failed)
	}
	if res.Recorded != 1 || res.Resolved != 0 || !res.OK() {
		t.Errorf("result = %+v", res)
	}
	if !res.Forecasts[0].ComputedAt.Equal(fx.clock.Now().UTC()) {
		t.Errorf("ComputedAt = %v", res.Forecasts[0].ComputedAt)
	}
	if res.TraceID == "" {
		t.Errorf("missing trace id")
	}

	raw, _ := fx.store.Get(context.Background(), ledger.DefaultConfig().Key)
	var persisted []model.LedgerEntry
	if err := json.Unmarshal(raw, &persisted); err != nil || len(persisted) != 1 {
		t.Fatalf("persisted ledger = %s (%v)", raw, err)
	}
	if persisted[0].PriceAtCreation != 100 || persisted[0].ShortHorizonForecast != res.Forecasts[0].ShortHorizonPrice {
		t.Errorf("persisted entry = %+v", persisted[0])
	}
	if v := counterValue(t, fx.reg, "forecaster_fetch_errors_total", "asset", "ETH"); v != 1 {
		t.Errorf("fetch errors for ETH = %v", v)
	}
}

func TestRunCycle_ResolvesWithCurrentPrices(t *testing.T) {
	fx := newFixture(t)
	first := fx.svc.RunCycle(context.Background())

	// One minute later the short horizon is due; spacing blocks a new entry.
	fx.clock.Advance(61 * time.Second)
	fx.src.set("BTC", 101)
	fx.src.set("ETH", 10)
	res := fx.svc.RunCycle(context.Background())

	if res.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", res.Resolved)
	}
	if res.Recorded != 1 {
		t.Errorf("recorded = %d, want 1 (ETH only)", res.Recorded)
	}

	btc := fx.ledger.Entries("BTC")
	if len(btc) != 1 || btc[0].ShortHorizonActual == nil || *btc[0].ShortHorizonActual != 101 {
		t.Fatalf("BTC entries = %+v", btc)
	}
	stats := fx.ledger.Stats("BTC")
	if stats.Short.Resolved != 1 || stats.Long.Pending != 1 {
		t.Errorf("stats = %+v", stats)
	}
	// The uptrend forecast was above 100 and the price rose: a hit.
	if first.Forecasts[0].ShortHorizonPrice > 100 && (stats.Short.HitRate == nil || *stats.Short.HitRate != 100) {
		t.Errorf("hit rate = %v", stats.Short.HitRate)
	}
}

func TestNew_Validates(t *testing.T) {
	fx := newFixture(t)
	d := Deps{Source: fx.src, Engine: signal.NewEngine(signal.DefaultConfig()), Ledger: fx.ledger, Metrics: metrics.NewMetrics(prometheus.NewRegistry())}

	if _, err := New(nil, "@every 1m", d); err == nil {
		t.Errorf("no assets should fail")
	}
	if _, err := New([]string{"BTC"}, "every minute", d); err == nil {
		t.Errorf("bad schedule should fail")
	}
	d.Source = nil
	if _, err := New([]string{"BTC"}, "@every 1m", d); err == nil {
		t.Errorf("missing source should fail")
	}
}

// ────────────────────────────────────────────────────────────
// Run loop
// ────────────────────────────────────────────────────────────

func TestRun_FansOutAndFlushesOnShutdown(t *testing.T) {
	sink := &recordingSink{ch: make(chan struct{}, 1)}
	fx := newFixture(t, sink, brokenSink{})
	fx.src.set("ETH", 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.svc.Run(ctx) }()

	select {
	case <-sink.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no forecast reached the sink")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	// Both forecasts of the immediate cycle were delivered before Run returned.
	sink.mu.Lock()
	n := len(sink.got)
	sink.mu.Unlock()
	if n != 2 {
		t.Errorf("sink got %d forecasts, want 2", n)
	}
	if v := counterValue(t, fx.reg, "forecaster_sink_errors_total", "sink", "broken"); v != 2 {
		t.Errorf("broken sink errors = %v, want 2", v)
	}
	if fx.ledger.Len() != 2 {
		t.Errorf("ledger len = %d", fx.ledger.Len())
	}
	if raw, _ := fx.store.Get(context.Background(), ledger.DefaultConfig().Key); len(raw) == 0 {
		t.Errorf("ledger not persisted")
	}
}
