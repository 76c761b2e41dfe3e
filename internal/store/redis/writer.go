package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"forecast-engine/internal/model"
)

const (
	// ~1 week of forecasts at a 30s refresh.
	forecastStreamMaxLen = 20000
	defaultLatestTTL     = 30 * time.Minute
)

// ForecastStreamKey is the per-asset forecast history stream.
func ForecastStreamKey(assetID string) string { return "forecast:" + assetID }

// ForecastLatestKey holds the newest forecast of an asset.
func ForecastLatestKey(assetID string) string { return "forecast:latest:" + assetID }

// ForecastChannel is the PubSub channel forecasts are published on.
func ForecastChannel(assetID string) string { return "pub:forecast:" + assetID }

// Publisher writes each forecast to Redis in one pipeline:
// XADD to the history stream, SET latest with TTL, PUBLISH for live
// subscribers. It satisfies model.ForecastSink.
type Publisher struct {
	client *goredis.Client
}

// NewPublisher wraps an existing client.
func NewPublisher(client *goredis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Name() string { return "redis" }

// Consume publishes one forecast.
func (p *Publisher) Consume(ctx context.Context, f model.Forecast) error {
	jsonData := string(f.JSON())

	pipe := p.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: ForecastStreamKey(f.AssetID),
		MaxLen: forecastStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": jsonData,
		},
	})
	pipe.Set(ctx, ForecastLatestKey(f.AssetID), jsonData, defaultLatestTTL)
	pipe.Publish(ctx, ForecastChannel(f.AssetID), jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis forecast pipeline for %s: %w", f.AssetID, err)
	}
	return nil
}
