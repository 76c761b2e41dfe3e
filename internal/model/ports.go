package model

import (
	"context"
	"errors"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the forecasting core from concrete storage and
// market-data implementations (Redis, SQLite).

// ErrNoData is returned by a MarketSource that has no observations for an asset.
var ErrNoData = errors.New("no market data")

// KVStore persists opaque values under stable keys. The ledger stores its
// serialized entry list through it.
type KVStore interface {
	// Get returns the value stored under key, or nil, nil if absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Close releases underlying resources.
	Close() error
}

// MarketSource supplies the windowed price arrays and current price for one
// asset. Staleness policy belongs to the implementation.
type MarketSource interface {
	// FetchInput assembles the forecast input for an asset.
	FetchInput(ctx context.Context, assetID string) (ForecastInput, error)
}

// ForecastSink consumes computed forecasts (publisher, journal, feed, alerts).
type ForecastSink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Consume handles one forecast. Errors are logged by the caller.
	Consume(ctx context.Context, f Forecast) error
}

// ForecastJournal appends forecasts to durable history.
type ForecastJournal interface {
	// RecordForecast appends a forecast.
	RecordForecast(ctx context.Context, f Forecast) error

	// RecentForecasts returns up to limit forecasts, newest first,
	// optionally filtered by asset.
	RecentForecasts(ctx context.Context, assetID string, limit int) ([]FlatForecast, error)

	// Close releases underlying resources.
	Close() error
}
