package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	goredis "github.com/go-redis/redis/v8"

	"forecast-engine/internal/model"
)

// SeriesConfig selects the candle streams a SeriesReader windows over.
type SeriesConfig struct {
	HourlyTF     int   // seconds, e.g. 3600
	DailyTF      int   // seconds, e.g. 86400
	HourlyPoints int64 // newest N hourly candles
	DailyPoints  int64 // newest N daily candles
}

// SeriesReader assembles forecast inputs from the candle streams written by
// the upstream market-data service ("candle:{tf}s:{asset}", JSON in the
// "data" field) and the latest-price keys. It satisfies model.MarketSource.
type SeriesReader struct {
	client *goredis.Client
	cfg    SeriesConfig
}

// NewSeriesReader wraps an existing client.
func NewSeriesReader(client *goredis.Client, cfg SeriesConfig) *SeriesReader {
	if cfg.HourlyTF <= 0 {
		cfg.HourlyTF = 3600
	}
	if cfg.DailyTF <= 0 {
		cfg.DailyTF = 86400
	}
	if cfg.HourlyPoints <= 0 {
		cfg.HourlyPoints = 120
	}
	if cfg.DailyPoints <= 0 {
		cfg.DailyPoints = 30
	}
	return &SeriesReader{client: client, cfg: cfg}
}

// FetchInput reads the hourly and daily windows plus the current price for
// one asset. The current price falls back to the newest hourly close; with
// neither available it returns model.ErrNoData.
func (r *SeriesReader) FetchInput(ctx context.Context, assetID string) (model.ForecastInput, error) {
	hourly, err := r.Candles(ctx, r.cfg.HourlyTF, assetID, r.cfg.HourlyPoints)
	if err != nil {
		return model.ForecastInput{}, err
	}
	daily, err := r.Candles(ctx, r.cfg.DailyTF, assetID, r.cfg.DailyPoints)
	if err != nil {
		return model.ForecastInput{}, err
	}

	in := model.ForecastInput{AssetID: assetID}
	in.HourlyCloses, in.HourlyHighs, in.HourlyLows = model.Series(hourly)
	in.DailyCloses, _, _ = model.Series(daily)

	price, ok, err := r.LatestPrice(ctx, assetID)
	if err != nil {
		return model.ForecastInput{}, err
	}
	switch {
	case ok:
		in.CurrentPrice = price
	case len(in.HourlyCloses) > 0:
		in.CurrentPrice = in.HourlyCloses[len(in.HourlyCloses)-1]
	default:
		return model.ForecastInput{}, fmt.Errorf("%s: %w", assetID, model.ErrNoData)
	}
	return in, nil
}

// Candles returns up to n of the newest candles of a stream, oldest first.
// Undecodable entries are skipped.
func (r *SeriesReader) Candles(ctx context.Context, tf int, assetID string, n int64) ([]model.Candle, error) {
	stream := model.CandleStreamKey(tf, assetID)
	msgs, err := r.client.XRevRangeN(ctx, stream, "+", "-", n).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", stream, err)
	}
	return decodeCandles(stream, msgs), nil
}

// LatestPrice reads the latest traded price of an asset.
func (r *SeriesReader) LatestPrice(ctx context.Context, assetID string) (float64, bool, error) {
	key := model.PriceKey(assetID)
	s, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || p <= 0 {
		slog.Warn("ignoring malformed latest price", slog.String("key", key), slog.String("value", s))
		return 0, false, nil
	}
	return p, true, nil
}

// decodeCandles reverses newest-first stream messages into ascending order.
func decodeCandles(stream string, msgs []goredis.XMessage) []model.Candle {
	out := make([]model.Candle, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var c model.Candle
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			slog.Warn("skipping undecodable candle", slog.String("stream", stream), slog.String("id", msgs[i].ID), slog.String("error", err.Error()))
			continue
		}
		out = append(out, c)
	}
	return out
}
