package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"forecast-engine/internal/model"
)

func TestDecodeCandles_AscendingAndSkipsBadEntries(t *testing.T) {
	c1 := model.Candle{AssetID: "BTC", TF: 3600, Close: 100}
	c2 := model.Candle{AssetID: "BTC", TF: 3600, Close: 101}
	msgs := []goredis.XMessage{ // newest first, as XREVRANGE returns them
		{ID: "3-0", Values: map[string]interface{}{"data": string(c2.JSON())}},
		{ID: "2-0", Values: map[string]interface{}{"data": "{broken"}},
		{ID: "1-1", Values: map[string]interface{}{"other": "x"}},
		{ID: "1-0", Values: map[string]interface{}{"data": string(c1.JSON())}},
	}

	got := decodeCandles("candle:3600s:BTC", msgs)
	if len(got) != 2 {
		t.Fatalf("decoded %d candles, want 2", len(got))
	}
	if got[0].Close != 100 || got[1].Close != 101 {
		t.Errorf("candles not in ascending order: %v, %v", got[0].Close, got[1].Close)
	}
}

func TestStreamKeys(t *testing.T) {
	if ForecastChannel("ETH") != "pub:forecast:ETH" || ForecastLatestKey("ETH") != "forecast:latest:ETH" {
		t.Errorf("unexpected key layout")
	}
}

// TestSeriesReader_Live runs against a real server when REDIS_TEST_ADDR is set.
func TestSeriesReader_Live(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := Dial(ctx, Config{Addr: addr, DB: 15})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	client.FlushDB(ctx)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		c := model.Candle{AssetID: "T", TF: 3600, TS: base.Add(time.Duration(i) * time.Hour), High: float64(11 + i), Low: float64(9 + i), Close: float64(10 + i)}
		client.XAdd(ctx, &goredis.XAddArgs{Stream: c.StreamKey(), Values: map[string]interface{}{"data": string(c.JSON())}})
	}

	r := NewSeriesReader(client, SeriesConfig{HourlyPoints: 3})
	in, err := r.FetchInput(ctx, "T")
	if err != nil {
		t.Fatal(err)
	}
	if len(in.HourlyCloses) != 3 || in.HourlyCloses[0] != 12 || in.CurrentPrice != 14 {
		t.Errorf("unexpected input: %+v", in)
	}

	client.Set(ctx, model.PriceKey("T"), "14.5", 0)
	if p, ok, _ := r.LatestPrice(ctx, "T"); !ok || p != 14.5 {
		t.Errorf("LatestPrice = %v, %v", p, ok)
	}

	if _, err := r.FetchInput(ctx, "MISSING"); !errors.Is(err, model.ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}

	kv := NewKV(client)
	if v, err := kv.Get(ctx, "absent"); v != nil || err != nil {
		t.Errorf("absent key = %q, %v", v, err)
	}
}

func TestCandleWriter_Live(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	client, err := Dial(ctx, Config{Addr: addr, DB: 15})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	client.FlushDB(ctx)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var batch []model.Candle
	for i := 0; i < 4; i++ {
		p := float64(20 + i)
		batch = append(batch, model.Candle{AssetID: "W", TF: 3600, TS: base.Add(time.Duration(i) * time.Hour), Open: p, High: p, Low: p, Close: p})
	}
	w := NewCandleWriter(client)
	if err := w.WriteCandles(ctx, batch); err != nil {
		t.Fatal(err)
	}

	r := NewSeriesReader(client, SeriesConfig{})
	in, err := r.FetchInput(ctx, "W")
	if err != nil {
		t.Fatal(err)
	}
	if len(in.HourlyCloses) != 4 || in.HourlyCloses[3] != 23 || in.CurrentPrice != 23 {
		t.Errorf("round trip = %+v", in)
	}

	if err := w.SetPrice(ctx, "W", 23.5); err != nil {
		t.Fatal(err)
	}
	if p, ok, _ := r.LatestPrice(ctx, "W"); !ok || p != 23.5 {
		t.Errorf("LatestPrice = %v, %v", p, ok)
	}
}
