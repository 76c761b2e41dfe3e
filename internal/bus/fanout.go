// Package bus delivers computed forecasts to every registered sink.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"forecast-engine/internal/model"
)

// FanOut broadcasts forecasts from a single input channel to N sinks, each
// drained by its own goroutine. If a sink's queue is full the forecast is
// dropped for that sink so a slow consumer cannot block the refresh cycle.
type FanOut struct {
	mu      sync.RWMutex
	subs    []*subscriber
	bufSize int
	wg      sync.WaitGroup

	// ConsumeTimeout bounds a single Consume call.
	ConsumeTimeout time.Duration

	// OnDrop is called when a forecast is dropped for a sink.
	OnDrop func(sink string)

	// OnError is called when a sink fails to consume a forecast.
	OnError func(sink string, err error)
}

type subscriber struct {
	sink model.ForecastSink
	ch   chan model.Forecast
}

// New creates a FanOut with the given per-sink queue size.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize:        outputBufferSize,
		ConsumeTimeout: 5 * time.Second,
	}
}

// Attach registers a sink. Sinks must be attached before Run.
func (f *FanOut) Attach(sink model.ForecastSink) {
	f.mu.Lock()
	f.subs = append(f.subs, &subscriber{sink: sink, ch: make(chan model.Forecast, f.bufSize)})
	f.mu.Unlock()
}

// Sinks returns the names of attached sinks in attach order.
func (f *FanOut) Sinks() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, len(f.subs))
	for i, s := range f.subs {
		names[i] = s.sink.Name()
	}
	return names
}

// Run reads from the input channel and fans out to all sinks.
// Blocks until ctx is cancelled or input is closed, then waits for every
// sink to drain what it already queued.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Forecast) {
	f.mu.RLock()
	subs := append([]*subscriber(nil), f.subs...)
	f.mu.RUnlock()

	// Queued forecasts are still delivered after ctx is cancelled.
	drainCtx := context.WithoutCancel(ctx)
	for _, s := range subs {
		f.wg.Add(1)
		go f.worker(drainCtx, s)
	}

	defer func() {
		for _, s := range subs {
			close(s.ch)
		}
		f.wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case fc, ok := <-input:
			if !ok {
				return
			}
			for _, s := range subs {
				select {
				case s.ch <- fc:
				default:
					if f.OnDrop != nil {
						f.OnDrop(s.sink.Name())
					} else {
						slog.Warn("sink queue full, dropping forecast",
							slog.String("sink", s.sink.Name()),
							slog.String("asset", fc.AssetID))
					}
				}
			}
		}
	}
}

func (f *FanOut) worker(ctx context.Context, s *subscriber) {
	defer f.wg.Done()
	for fc := range s.ch {
		cctx, cancel := context.WithTimeout(ctx, f.ConsumeTimeout)
		err := s.sink.Consume(cctx, fc)
		cancel()
		if err == nil {
			continue
		}
		if f.OnError != nil {
			f.OnError(s.sink.Name(), err)
		} else {
			slog.Error("sink consume failed",
				slog.String("sink", s.sink.Name()),
				slog.String("asset", fc.AssetID),
				slog.String("error", err.Error()))
		}
	}
}

// ChannelStat is the (length, capacity) of one sink queue.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	Sink string
	Len  int
	Cap  int
}

func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.subs))
	for i, s := range f.subs {
		stats[i] = ChannelStat{Sink: s.sink.Name(), Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
