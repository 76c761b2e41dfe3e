package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDirectionOf(t *testing.T) {
	tests := []struct {
		signal float64
		want   Direction
	}{
		{0.001, Bullish},
		{-0.001, Bearish},
		{0, Neutral},
	}
	for _, tt := range tests {
		if got := DirectionOf(tt.signal); got != tt.want {
			t.Errorf("DirectionOf(%v) = %s, want %s", tt.signal, got, tt.want)
		}
	}
}

func TestLedgerEntry_CloneIsDeep(t *testing.T) {
	actual := 102.0
	at := int64(61_000)
	e := LedgerEntry{AssetID: "X", ShortHorizonActual: &actual, ShortHorizonResolvedAt: &at}

	c := e.Clone()
	*c.ShortHorizonActual = 1
	if *e.ShortHorizonActual != 102 {
		t.Errorf("clone shares ShortHorizonActual with original")
	}
	if !c.ShortResolved() || c.LongResolved() {
		t.Errorf("resolved flags not preserved: short=%v long=%v", c.ShortResolved(), c.LongResolved())
	}
}

func TestLedgerEntry_PendingFieldsSerializeAsNull(t *testing.T) {
	e := LedgerEntry{CreatedAt: 1000, AssetID: "X", PriceAtCreation: 100, ShortHorizonForecast: 101, LongHorizonForecast: 105}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, field := range []string{`"shortHorizonActual":null`, `"longHorizonResolvedAt":null`, `"createdAt":1000`} {
		if !strings.Contains(s, field) {
			t.Errorf("expected %s in %s", field, s)
		}
	}
}

func TestForecast_Flat(t *testing.T) {
	f := Forecast{
		AssetID:       "BTC",
		ObservedPrice: 100,
		Sentiment:     Bullish,
		Readings: map[IndicatorKind]IndicatorReading{
			KindRSI: {Kind: KindRSI, Value: 61},
			KindATR: {Kind: KindATR, Components: map[string]float64{"atr_pct": 0.004}},
		},
	}
	flat := f.Flat()
	if flat.RSI != 61 || flat.ATRPct != 0.004 || flat.Sentiment != Bullish {
		t.Errorf("unexpected flat record: %+v", flat)
	}
}

func TestCandleStreamKey(t *testing.T) {
	c := Candle{AssetID: "ETH", TF: 3600}
	if got := c.StreamKey(); got != "candle:3600s:ETH" {
		t.Errorf("StreamKey = %q", got)
	}
	closes, highs, lows := Series([]Candle{{Close: 1, High: 2, Low: 0.5}, {Close: 3, High: 4, Low: 2}})
	if len(closes) != 2 || closes[1] != 3 || highs[0] != 2 || lows[1] != 2 {
		t.Errorf("Series split mismatch: %v %v %v", closes, highs, lows)
	}
}
