package model

import (
	"encoding/json"
	"time"

	"forecast-engine/internal/numeric"
)

// Candle is an OHLC bar for one asset at one sampling interval, as written to
// the candle streams by the upstream market-data service.
type Candle struct {
	AssetID string    `json:"asset_id"`
	TF      int       `json:"tf"` // timeframe in seconds
	TS      time.Time `json:"ts"` // bucket start time (UTC, TF-aligned)
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  float64   `json:"volume"`
}

// StreamKey returns the Redis stream key: "candle:{TF}s:{asset}".
func (c *Candle) StreamKey() string {
	return CandleStreamKey(c.TF, c.AssetID)
}

// JSON returns the JSON-encoded candle.
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// CandleStreamKey builds the stream key for an asset and timeframe.
func CandleStreamKey(tf int, assetID string) string {
	return "candle:" + numeric.Itoa(tf) + "s:" + assetID
}

// PriceKey is the key holding the latest traded price of an asset.
func PriceKey(assetID string) string {
	return "price:latest:" + assetID
}

// Series splits candles into close/high/low sequences, preserving order.
func Series(candles []Candle) (closes, highs, lows []float64) {
	closes = make([]float64, len(candles))
	highs = make([]float64, len(candles))
	lows = make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	return closes, highs, lows
}
