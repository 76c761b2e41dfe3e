package signal

import (
	"testing"

	"forecast-engine/internal/model"
)

func readingsOf(dirs ...model.Direction) map[model.IndicatorKind]model.IndicatorReading {
	out := make(map[model.IndicatorKind]model.IndicatorReading)
	for i, d := range dirs {
		kind := model.IndicatorKinds[i]
		out[kind] = model.IndicatorReading{Kind: kind, Direction: d}
	}
	return out
}

func TestConsensus(t *testing.T) {
	B, S, N := model.Bullish, model.Bearish, model.Neutral
	tests := []struct {
		name string
		dirs []model.Direction
		want model.Direction
	}{
		{"majority bullish", []model.Direction{B, B, B, S, S, N, N}, B},
		{"majority bearish", []model.Direction{S, S, B, N, N, N, N}, S},
		{"tie is neutral", []model.Direction{B, B, S, S, N, N, N}, N},
		{"all neutral", []model.Direction{N, N, N, N, N, N, N}, N},
		{"neutral abstains", []model.Direction{B, N, N, N, N, N, N}, B},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Consensus(readingsOf(tt.dirs...)); got != tt.want {
				t.Errorf("Consensus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFlipped(t *testing.T) {
	if !Flipped(model.Bullish, model.Bearish) || !Flipped(model.Bearish, model.Bullish) {
		t.Errorf("bullish/bearish transitions are flips")
	}
	if Flipped(model.Neutral, model.Bullish) || Flipped(model.Bearish, model.Neutral) || Flipped(model.Bullish, model.Bullish) {
		t.Errorf("transitions through neutral are not flips")
	}
}
