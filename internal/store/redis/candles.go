package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/go-redis/redis/v8"

	"forecast-engine/internal/model"
)

// ~6 months of hourly bars.
const candleStreamMaxLen = 5000

// CandleWriter appends candles to the streams SeriesReader reads and keeps
// the latest-price keys current. It feeds local and test deployments that
// have no upstream market-data service.
type CandleWriter struct {
	client *goredis.Client
	MaxLen int64
}

// NewCandleWriter wraps an existing client.
func NewCandleWriter(client *goredis.Client) *CandleWriter {
	return &CandleWriter{client: client, MaxLen: candleStreamMaxLen}
}

// WriteCandles appends candles in one pipeline. The latest-price key of each
// asset is set to the close of its last candle in the batch.
func (w *CandleWriter) WriteCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	pipe := w.client.Pipeline()
	latest := make(map[string]float64)
	for i := range candles {
		c := &candles[i]
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: c.StreamKey(),
			MaxLen: w.MaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"data": string(c.JSON()),
			},
		})
		latest[c.AssetID] = c.Close
	}
	for id, p := range latest {
		pipe.Set(ctx, model.PriceKey(id), strconv.FormatFloat(p, 'f', -1, 64), 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis candle pipeline (%d candles): %w", len(candles), err)
	}
	return nil
}

// SetPrice updates the latest-price key of an asset.
func (w *CandleWriter) SetPrice(ctx context.Context, assetID string, price float64) error {
	key := model.PriceKey(assetID)
	if err := w.client.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), 0).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}
