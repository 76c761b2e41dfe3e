package tfbuilder

import (
	"testing"
	"time"

	"forecast-engine/internal/model"
)

// day0 is a UTC midnight, so hourly candles from it align to daily buckets.
var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// hourly creates a test hourly candle h hours after day0.
func hourly(asset string, h int, open, high, low, close_ float64) model.Candle {
	return model.Candle{
		AssetID: asset,
		TF:      3600,
		TS:      day0.Add(time.Duration(h) * time.Hour),
		Open:    open,
		High:    high,
		Low:     low,
		Close:   close_,
		Volume:  10,
	}
}

func TestBuilder_DailyFromHourly(t *testing.T) {
	b := New(86400)
	var emitted []model.Candle
	b.OnCandle = func(c model.Candle) { emitted = append(emitted, c) }

	for h := 0; h < 24; h++ {
		p := 100 + float64(h)
		if _, ok := b.Add(hourly("BTC", h, p, p+2, p-1, p+1)); ok {
			t.Fatalf("hour %d closed a daily candle early", h)
		}
	}

	forming, ok := b.Forming("BTC")
	if !ok || forming.Close != 124 {
		t.Fatalf("forming = %+v, %v", forming, ok)
	}

	closed, ok := b.Add(hourly("BTC", 24, 200, 201, 199, 200))
	if !ok {
		t.Fatal("first hour of day 2 should close day 1")
	}
	if closed.TF != 86400 || !closed.TS.Equal(day0) {
		t.Errorf("closed TF/TS = %d / %v", closed.TF, closed.TS)
	}
	if closed.Open != 100 || closed.High != 125 || closed.Low != 99 || closed.Close != 124 {
		t.Errorf("closed OHLC = %v/%v/%v/%v", closed.Open, closed.High, closed.Low, closed.Close)
	}
	if closed.Volume != 240 {
		t.Errorf("closed volume = %v, want 240", closed.Volume)
	}
	if len(emitted) != 1 {
		t.Errorf("OnCandle calls = %d, want 1", len(emitted))
	}
}

func TestBuilder_AssetsAreIndependent(t *testing.T) {
	b := New(86400)
	b.Add(hourly("BTC", 0, 100, 100, 100, 100))
	b.Add(hourly("ETH", 0, 10, 10, 10, 10))

	if _, ok := b.Add(hourly("ETH", 25, 11, 11, 11, 11)); !ok {
		t.Fatal("ETH day 2 should close ETH day 1")
	}
	btc, ok := b.Forming("BTC")
	if !ok || btc.Close != 100 {
		t.Errorf("BTC forming candle disturbed: %+v", btc)
	}

	flushed := b.Flush()
	if len(flushed) != 2 || flushed[0].AssetID != "BTC" || flushed[1].AssetID != "ETH" {
		t.Fatalf("flush = %+v", flushed)
	}
	if _, ok := b.Forming("BTC"); ok {
		t.Errorf("flush should reset state")
	}
}

func TestBuilder_RejectsStale(t *testing.T) {
	b := New(3600 * 4)
	var stale int
	b.OnStale = func(model.Candle) { stale++ }

	b.Add(hourly("BTC", 8, 100, 100, 100, 100))
	if _, ok := b.Add(hourly("BTC", 2, 50, 50, 50, 50)); ok {
		t.Errorf("stale candle must not close a bucket")
	}
	if stale != 1 {
		t.Errorf("stale = %d, want 1", stale)
	}

	b.StaleTolerance = 8 * time.Hour
	b.Add(hourly("BTC", 3, 90, 130, 90, 95))
	forming, _ := b.Forming("BTC")
	if forming.High != 130 || !forming.TS.Equal(day0.Add(8*time.Hour)) {
		t.Errorf("late candle within tolerance should fold into forming bucket: %+v", forming)
	}
}

func TestResample(t *testing.T) {
	var in []model.Candle
	for h := 0; h < 72; h++ {
		p := float64(h)
		in = append(in, hourly("BTC", h, p, p, p, p))
	}
	// Partial fourth day.
	in = append(in, hourly("BTC", 72, 72, 72, 72, 72))

	out := Resample(in, 86400)
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	wantClose := []float64{23, 47, 71, 72}
	for i, c := range out {
		if c.Close != wantClose[i] {
			t.Errorf("day %d close = %v, want %v", i, c.Close, wantClose[i])
		}
		if !c.TS.Equal(day0.Add(time.Duration(i) * 24 * time.Hour)) {
			t.Errorf("day %d ts = %v", i, c.TS)
		}
	}

	if got := Resample(nil, 86400); len(got) != 0 {
		t.Errorf("empty input should give empty output, got %d", len(got))
	}
}
