package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"forecast-engine/internal/model"
)

// Get reads a value from the kv table, or nil, nil if absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

// RecentForecasts returns up to limit journaled forecasts, newest first.
// An empty assetID matches every asset.
func (s *Store) RecentForecasts(ctx context.Context, assetID string, limit int) ([]model.FlatForecast, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, computed_at, observed, short_price, long_price, sentiment,
			ema_signal, rsi, macd_hist, percent_b, stoch_k, atr_pct, mean_rev
		FROM forecasts
		WHERE (? = '' OR asset_id = ?)
		ORDER BY computed_at DESC, id DESC
		LIMIT ?
	`, assetID, assetID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query forecasts: %w", err)
	}
	defer rows.Close()

	var out []model.FlatForecast
	for rows.Next() {
		var f model.FlatForecast
		var computedMs int64
		var sentiment string
		if err := rows.Scan(&f.AssetID, &computedMs, &f.ObservedPrice, &f.ShortHorizonPrice, &f.LongHorizonPrice, &sentiment,
			&f.EMASignal, &f.RSI, &f.MACDHistogram, &f.PercentB, &f.StochK, &f.ATRPct, &f.MeanReversion); err != nil {
			return nil, fmt.Errorf("sqlite scan forecasts: %w", err)
		}
		f.Sentiment = model.Direction(sentiment)
		f.ComputedAt = time.UnixMilli(computedMs).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

// Candles returns up to limit of the newest candles for an asset and
// timeframe, ordered by timestamp ascending.
func (s *Store) Candles(ctx context.Context, tf int, assetID string, limit int) ([]model.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT asset_id, tf, ts, open, high, low, close, volume FROM (
			SELECT * FROM candles
			WHERE asset_id = ? AND tf = ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, assetID, tf, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		var volume sql.NullFloat64
		if err := rows.Scan(&c.AssetID, &c.TF, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &volume); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		c.Volume = volume.Float64
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// CandleSource adapts the candles table to model.MarketSource. The current
// price is the newest hourly close.
type CandleSource struct {
	store                     *Store
	hourlyTF, dailyTF         int
	hourlyPoints, dailyPoints int
}

// NewCandleSource windows the candles table like the Redis series reader.
func NewCandleSource(s *Store, hourlyTF, dailyTF, hourlyPoints, dailyPoints int) *CandleSource {
	return &CandleSource{store: s, hourlyTF: hourlyTF, dailyTF: dailyTF, hourlyPoints: hourlyPoints, dailyPoints: dailyPoints}
}

// FetchInput assembles a forecast input, or model.ErrNoData when the asset
// has no hourly candles.
func (cs *CandleSource) FetchInput(ctx context.Context, assetID string) (model.ForecastInput, error) {
	hourly, err := cs.store.Candles(ctx, cs.hourlyTF, assetID, cs.hourlyPoints)
	if err != nil {
		return model.ForecastInput{}, err
	}
	if len(hourly) == 0 {
		return model.ForecastInput{}, fmt.Errorf("%s: %w", assetID, model.ErrNoData)
	}
	daily, err := cs.store.Candles(ctx, cs.dailyTF, assetID, cs.dailyPoints)
	if err != nil {
		return model.ForecastInput{}, err
	}

	in := model.ForecastInput{AssetID: assetID}
	in.HourlyCloses, in.HourlyHighs, in.HourlyLows = model.Series(hourly)
	in.DailyCloses, _, _ = model.Series(daily)
	in.CurrentPrice = in.HourlyCloses[len(in.HourlyCloses)-1]
	return in, nil
}
