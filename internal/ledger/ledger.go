// Package ledger records forecasts, resolves them against realized prices
// once their horizons elapse, and derives accuracy statistics.
//
// A Ledger is owned by the host process: Open loads it from a KVStore, the
// refresh loop mutates it through Record and Resolve, and Flush/Close write
// it back. All methods are safe for concurrent use, but the record/resolve
// sequence of one cycle is expected to come from a single owner.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"forecast-engine/internal/model"
	"forecast-engine/internal/numeric"
)

// Config tunes the ledger lifecycle.
type Config struct {
	Key          string        // KV key holding the serialized entry list
	Capacity     int           // max retained entries, oldest evicted first
	MinSpacing   time.Duration // min age of an asset's newest entry before another is recorded
	ShortHorizon time.Duration
	LongHorizon  time.Duration
}

// DefaultConfig returns the stock ledger settings.
func DefaultConfig() Config {
	return Config{
		Key:          "forecast:ledger:v1",
		Capacity:     100,
		MinSpacing:   30 * time.Minute,
		ShortHorizon: time.Minute,
		LongHorizon:  24 * time.Hour,
	}
}

// Retention is how far back the ledger reaches when every one of assets
// records at MinSpacing. Entries younger than LongHorizon are evicted
// unresolved when it falls short.
func (c Config) Retention(assets int) time.Duration {
	if assets <= 0 {
		assets = 1
	}
	return time.Duration(c.Capacity) * c.MinSpacing / time.Duration(assets)
}

// PriceLookup returns the current price of an asset, or false when none is
// available.
type PriceLookup func(assetID string) (float64, bool)

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is the append-only prediction ledger.
type Ledger struct {
	mu      sync.Mutex
	flushMu sync.Mutex // serializes snapshot and store write
	cfg     Config
	store   model.KVStore
	log     *slog.Logger
	now     func() time.Time
	entries []model.LedgerEntry // oldest first
	dirty   bool
}

// Open loads the ledger persisted under cfg.Key. Malformed persisted data
// yields an empty ledger; only a failing store read is returned as an error.
func Open(ctx context.Context, store model.KVStore, cfg Config, log *slog.Logger, opts ...Option) (*Ledger, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultConfig().Capacity
	}
	if cfg.Key == "" {
		cfg.Key = DefaultConfig().Key
	}
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{
		cfg:   cfg,
		store: store,
		log:   log.With(slog.String("component", "ledger")),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	raw, err := store.Get(ctx, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("ledger: load %s: %w", cfg.Key, err)
	}
	l.entries = l.decode(raw)
	l.log.Info("ledger loaded", slog.Int("entries", len(l.entries)), slog.String("key", cfg.Key))
	return l, nil
}

// decode parses persisted entries, discarding anything malformed.
func (l *Ledger) decode(raw []byte) []model.LedgerEntry {
	if len(raw) == 0 {
		return nil
	}
	var entries []model.LedgerEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		l.log.Warn("persisted ledger is malformed, starting empty", slog.String("error", err.Error()))
		return nil
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.AssetID == "" || e.CreatedAt <= 0 {
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		kept = append(kept, e)
	}
	if len(kept) > l.cfg.Capacity {
		kept = kept[len(kept)-l.cfg.Capacity:]
	}
	return kept
}

// Record appends a pending entry unless the asset's newest entry is younger
// than MinSpacing. It reports the entry and whether it was recorded.
func (l *Ledger) Record(assetID string, priceAtCreation, shortForecast, longForecast float64) (model.LedgerEntry, bool) {
	if assetID == "" || !numeric.Finite(priceAtCreation) || !numeric.Finite(shortForecast) || !numeric.Finite(longForecast) {
		return model.LedgerEntry{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.now().UnixMilli()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].AssetID != assetID {
			continue
		}
		if nowMs-l.entries[i].CreatedAt < l.cfg.MinSpacing.Milliseconds() {
			return model.LedgerEntry{}, false
		}
		break
	}

	e := model.LedgerEntry{
		ID:                   uuid.NewString(),
		CreatedAt:            nowMs,
		AssetID:              assetID,
		PriceAtCreation:      priceAtCreation,
		ShortHorizonForecast: shortForecast,
		LongHorizonForecast:  longForecast,
	}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.cfg.Capacity; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	l.dirty = true
	return e.Clone(), true
}

// Resolve fills the actual price of every pending horizon whose duration has
// elapsed. Assets the lookup has no price for stay pending. Resolved fields
// are never overwritten. It returns the number of horizons resolved.
func (l *Ledger) Resolve(lookup PriceLookup) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	nowMs := l.now().UnixMilli()
	shortMs := l.cfg.ShortHorizon.Milliseconds()
	longMs := l.cfg.LongHorizon.Milliseconds()

	// One lookup per asset per pass.
	prices := make(map[string]*float64)
	priceOf := func(assetID string) *float64 {
		if p, seen := prices[assetID]; seen {
			return p
		}
		var out *float64
		if v, ok := lookup(assetID); ok && numeric.Finite(v) {
			out = &v
		}
		prices[assetID] = out
		return out
	}

	resolved := 0
	for i := range l.entries {
		e := &l.entries[i]
		elapsed := nowMs - e.CreatedAt

		if !e.ShortResolved() && elapsed >= shortMs {
			if p := priceOf(e.AssetID); p != nil {
				actual, at := *p, nowMs
				e.ShortHorizonActual, e.ShortHorizonResolvedAt = &actual, &at
				resolved++
			}
		}
		if !e.LongResolved() && elapsed >= longMs {
			if p := priceOf(e.AssetID); p != nil {
				actual, at := *p, nowMs
				e.LongHorizonActual, e.LongHorizonResolvedAt = &actual, &at
				resolved++
			}
		}
	}
	if resolved > 0 {
		l.dirty = true
	}
	return resolved
}

// Stats derives accuracy statistics, optionally filtered by asset ("" = all).
func (l *Ledger) Stats(assetID string) model.LedgerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var short, long accumulator
	for i := range l.entries {
		e := &l.entries[i]
		if assetID != "" && e.AssetID != assetID {
			continue
		}
		short.add(e.PriceAtCreation, e.ShortHorizonForecast, e.ShortHorizonActual)
		long.add(e.PriceAtCreation, e.LongHorizonForecast, e.LongHorizonActual)
	}
	return model.LedgerStats{
		AssetID: assetID,
		Short:   short.stats(),
		Long:    long.stats(),
	}
}

// Entries returns deep copies of the entries, oldest first, optionally
// filtered by asset ("" = all).
func (l *Ledger) Entries(assetID string) []model.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if assetID != "" && e.AssetID != assetID {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

// Len returns the number of retained entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Flush persists the entry list if it changed since the last flush.
// Concurrent flushes write in snapshot order, so the stored list is never
// older than the last successful flush.
func (l *Ledger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	if !l.dirty {
		l.mu.Unlock()
		return nil
	}
	entries := l.entries
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("ledger: encode: %w", err)
	}
	l.dirty = false
	l.mu.Unlock()

	if err := l.store.Set(ctx, l.cfg.Key, data); err != nil {
		l.mu.Lock()
		l.dirty = true
		l.mu.Unlock()
		return fmt.Errorf("ledger: persist %s: %w", l.cfg.Key, err)
	}
	return nil
}

// Close flushes pending changes. The store is owned by the caller.
func (l *Ledger) Close(ctx context.Context) error {
	return l.Flush(ctx)
}

// accumulator folds one horizon of the entry set into HorizonStats.
type accumulator struct {
	count, resolved, hits int
	errSum                float64
}

func (a *accumulator) add(base, forecast float64, actual *float64) {
	a.count++
	if actual == nil {
		return
	}
	a.resolved++
	if numeric.Sign(forecast-base) == numeric.Sign(*actual-base) {
		a.hits++
	}
	a.errSum += numeric.SafeDiv(abs(forecast-*actual), base, 0) * 100
}

func (a accumulator) stats() model.HorizonStats {
	s := model.HorizonStats{
		Count:    a.count,
		Resolved: a.resolved,
		Pending:  a.count - a.resolved,
	}
	if a.resolved > 0 {
		hit := float64(a.hits) / float64(a.resolved) * 100
		mpe := a.errSum / float64(a.resolved)
		s.HitRate, s.MeanPctError = &hit, &mpe
	}
	return s
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
