// Package forecaster hosts the refresh loop: on every scheduled cycle it
// fetches market data for each asset, fuses a forecast, records and
// resolves the prediction ledger and fans the forecasts out to sinks.
package forecaster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"forecast-engine/internal/bus"
	"forecast-engine/internal/ledger"
	"forecast-engine/internal/logger"
	"forecast-engine/internal/metrics"
	"forecast-engine/internal/model"
	"forecast-engine/internal/signal"
)

// Deps are the collaborators a Service drives. Health may be nil.
type Deps struct {
	Source  model.MarketSource
	Engine  *signal.Engine
	Ledger  *ledger.Ledger
	Sinks   []model.ForecastSink
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Log     *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the wall clock used to stamp forecasts (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithConcurrency bounds the number of assets fetched in parallel.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// Service runs refresh cycles on a cron schedule.
type Service struct {
	assets      []string
	schedule    string
	source      model.MarketSource
	engine      *signal.Engine
	ledger      *ledger.Ledger
	metrics     *metrics.Metrics
	health      *metrics.HealthStatus
	log         *slog.Logger
	now         func() time.Time
	concurrency int

	bus  *bus.FanOut
	feed chan model.Forecast
	cron *cron.Cron

	cycleMu sync.Mutex // one cycle at a time owns the ledger
}

// CycleResult summarizes one refresh cycle.
type CycleResult struct {
	TraceID   string
	Forecasts []model.Forecast
	Failed    []string // assets whose market data could not be fetched
	Resolved  int      // ledger horizons resolved
	Recorded  int      // ledger entries appended
	FlushErr  error
}

// OK reports whether the cycle produced at least one forecast and
// persisted the ledger.
func (r CycleResult) OK() bool {
	return len(r.Forecasts) > 0 && r.FlushErr == nil
}

// New validates the schedule and wires the sinks onto the fan-out bus.
func New(assets []string, schedule string, d Deps, opts ...Option) (*Service, error) {
	if len(assets) == 0 {
		return nil, errors.New("forecaster: no assets")
	}
	if d.Source == nil || d.Engine == nil || d.Ledger == nil || d.Metrics == nil {
		return nil, errors.New("forecaster: source, engine, ledger and metrics are required")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("forecaster: schedule %q: %w", schedule, err)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}

	s := &Service{
		assets:      assets,
		schedule:    schedule,
		source:      d.Source,
		engine:      d.Engine,
		ledger:      d.Ledger,
		metrics:     d.Metrics,
		health:      d.Health,
		log:         d.Log,
		now:         time.Now,
		concurrency: 8,
		bus:         bus.New(64),
		feed:        make(chan model.Forecast, 4*len(assets)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, sink := range d.Sinks {
		s.bus.Attach(sink)
	}
	s.bus.OnError = func(sink string, err error) {
		s.metrics.SinkErrors.WithLabelValues(sink).Inc()
		s.log.Warn("sink consume failed", slog.String("sink", sink), slog.String("error", err.Error()))
	}
	s.bus.OnDrop = func(sink string) {
		s.metrics.SinkDrops.WithLabelValues(sink).Inc()
	}

	cronLog := cron.PrintfLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelInfo))
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	return s, nil
}

// Run executes one cycle immediately, then one per schedule tick until ctx
// is cancelled. On shutdown it waits for the running cycle, drains the
// sinks and flushes the ledger.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("forecaster: schedule %q: %w", s.schedule, err)
	}

	busDone := make(chan struct{})
	go func() {
		// Stops once feed is closed so queued forecasts still reach the sinks.
		s.bus.Run(context.Background(), s.feed)
		close(busDone)
	}()

	s.log.Info("forecaster started",
		slog.Any("assets", s.assets),
		slog.String("schedule", s.schedule),
		slog.Any("sinks", s.bus.Sinks()))

	s.RunCycle(ctx)
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	close(s.feed)
	<-busDone

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ledger.Close(closeCtx); err != nil {
		return fmt.Errorf("forecaster: final ledger flush: %w", err)
	}
	s.log.Info("forecaster stopped")
	return nil
}

// RunCycle performs one refresh: parallel fetch and fusion per asset, then
// the single-writer ledger section, then fan-out.
func (s *Service) RunCycle(ctx context.Context) CycleResult {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	res := CycleResult{TraceID: logger.GenerateTraceID("cycle", s.now())}
	ctx = logger.WithTraceID(ctx, res.TraceID)
	log := logger.FromContext(ctx, s.log)
	s.metrics.CyclesTotal.Inc()

	res.Forecasts, res.Failed = s.computeAll(ctx, log)

	// Single writer: resolve against this cycle's prices, then record.
	prices := make(map[string]float64, len(res.Forecasts))
	for _, f := range res.Forecasts {
		prices[f.AssetID] = f.ObservedPrice
	}
	res.Resolved = s.ledger.Resolve(func(assetID string) (float64, bool) {
		p, ok := prices[assetID]
		return p, ok
	})
	for _, f := range res.Forecasts {
		if _, ok := s.ledger.Record(f.AssetID, f.ObservedPrice, f.ShortHorizonPrice, f.LongHorizonPrice); ok {
			res.Recorded++
		}
	}
	if res.FlushErr = s.ledger.Flush(ctx); res.FlushErr != nil {
		s.metrics.LedgerFlushErrors.Inc()
		log.Error("ledger flush failed", slog.String("error", res.FlushErr.Error()))
	}
	s.metrics.LedgerResolved.Add(float64(res.Resolved))
	s.metrics.LedgerRecorded.Add(float64(res.Recorded))
	s.metrics.ObserveLedger(s.ledger.Len(), s.ledger.Stats(""))

	for _, f := range res.Forecasts {
		s.metrics.ObserveForecast(f)
		s.publish(f)
	}

	if s.health != nil {
		s.health.RecordCycle(time.Now(), res.OK())
	}
	s.metrics.CycleDur.Observe(time.Since(start).Seconds())

	log.Info("cycle complete",
		slog.Int("forecasts", len(res.Forecasts)),
		slog.Any("failed", res.Failed),
		slog.Int("resolved", res.Resolved),
		slog.Int("recorded", res.Recorded),
		slog.Duration("took", time.Since(start)))
	return res
}

// computeAll fetches and fuses every asset in parallel. A failing asset is
// skipped for this cycle; results keep the configured asset order.
func (s *Service) computeAll(ctx context.Context, log *slog.Logger) ([]model.Forecast, []string) {
	slots := make([]*model.Forecast, len(s.assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, asset := range s.assets {
		i, asset := i, asset
		g.Go(func() error {
			in, err := s.source.FetchInput(gctx, asset)
			if err != nil {
				s.metrics.FetchErrors.WithLabelValues(asset).Inc()
				log.Warn("market data fetch failed", slog.String("asset", asset), slog.String("error", err.Error()))
				return nil
			}
			in.AssetID = asset

			t0 := time.Now()
			f := s.engine.ComputeAt(in, s.now().UTC())
			s.metrics.ComputeDur.Observe(time.Since(t0).Seconds())
			slots[i] = &f
			return nil
		})
	}
	g.Wait()

	var forecasts []model.Forecast
	var failed []string
	for i, f := range slots {
		if f == nil {
			failed = append(failed, s.assets[i])
			continue
		}
		forecasts = append(forecasts, *f)
	}
	return forecasts, failed
}

// publish hands a forecast to the bus without blocking the cycle.
func (s *Service) publish(f model.Forecast) {
	select {
	case s.feed <- f:
	default:
		s.metrics.SinkDrops.WithLabelValues("bus").Inc()
		s.log.Warn("forecast feed full, dropping", slog.String("asset", f.AssetID))
	}
}
