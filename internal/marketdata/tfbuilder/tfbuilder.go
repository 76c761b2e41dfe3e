// Package tfbuilder resamples candles into a larger timeframe, e.g. hourly
// bars into daily bars. It keeps one forming candle per asset that is
// updated in O(1) per input candle. When a candle arrives in a later bucket
// the forming candle is closed and returned to the caller.
package tfbuilder

import (
	"sort"
	"time"

	"forecast-engine/internal/model"
)

// state holds the forming candle for one asset.
type state struct {
	bucket int64 // bucket start = ts - ts%tf (Unix seconds)
	candle model.Candle
}

// Builder resamples candles of any smaller timeframe into tf.
// Not goroutine-safe: use from a single goroutine.
type Builder struct {
	tf     int // target timeframe in seconds
	states map[string]*state

	// StaleTolerance rejects candles whose bucket is behind the forming
	// bucket by more than this. Zero rejects every out-of-order bucket.
	StaleTolerance time.Duration

	OnCandle func(c model.Candle) // called for each closed candle (optional)
	OnStale  func(c model.Candle) // called when a late candle is rejected (optional)
}

// New creates a builder targeting tf seconds.
func New(tf int) *Builder {
	if tf <= 0 {
		tf = 86400
	}
	return &Builder{
		tf:     tf,
		states: make(map[string]*state, 16),
	}
}

// TF returns the target timeframe in seconds.
func (b *Builder) TF() int { return b.tf }

// Add merges c into the forming candle of its asset. When c opens a new
// bucket the previous candle is returned with ok=true.
func (b *Builder) Add(c model.Candle) (closed model.Candle, ok bool) {
	ts := c.TS.Unix()
	tf := int64(b.tf)
	bucket := ts - ((ts%tf)+tf)%tf

	st, exists := b.states[c.AssetID]
	if exists && bucket < st.bucket {
		lag := time.Duration(st.bucket-bucket) * time.Second
		if lag > b.StaleTolerance {
			if b.OnStale != nil {
				b.OnStale(c)
			}
			return model.Candle{}, false
		}
		// Within tolerance: fold into the forming bucket.
		bucket = st.bucket
	}

	if exists && bucket > st.bucket {
		closed, ok = st.candle, true
		if b.OnCandle != nil {
			b.OnCandle(closed)
		}
		exists = false
	}

	if !exists {
		b.states[c.AssetID] = &state{
			bucket: bucket,
			candle: model.Candle{
				AssetID: c.AssetID,
				TF:      b.tf,
				TS:      time.Unix(bucket, 0).UTC(),
				Open:    c.Open,
				High:    c.High,
				Low:     c.Low,
				Close:   c.Close,
				Volume:  c.Volume,
			},
		}
		return closed, ok
	}

	fc := &st.candle
	if c.High > fc.High {
		fc.High = c.High
	}
	if c.Low < fc.Low {
		fc.Low = c.Low
	}
	fc.Close = c.Close
	fc.Volume += c.Volume
	return closed, ok
}

// Forming returns the in-progress candle of an asset.
func (b *Builder) Forming(assetID string) (model.Candle, bool) {
	st, ok := b.states[assetID]
	if !ok {
		return model.Candle{}, false
	}
	return st.candle, true
}

// Flush closes and returns every forming candle, ordered by asset then
// time, and resets the builder.
func (b *Builder) Flush() []model.Candle {
	out := make([]model.Candle, 0, len(b.states))
	for id, st := range b.states {
		out = append(out, st.candle)
		if b.OnCandle != nil {
			b.OnCandle(st.candle)
		}
		delete(b.states, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetID != out[j].AssetID {
			return out[i].AssetID < out[j].AssetID
		}
		return out[i].TS.Before(out[j].TS)
	})
	return out
}

// Resample folds ascending candles into tf-second candles. The last bucket
// is included even if it is still forming.
func Resample(candles []model.Candle, tf int) []model.Candle {
	b := New(tf)
	out := make([]model.Candle, 0, len(candles)/2+1)
	for _, c := range candles {
		if closed, ok := b.Add(c); ok {
			out = append(out, closed)
		}
	}
	return append(out, b.Flush()...)
}
