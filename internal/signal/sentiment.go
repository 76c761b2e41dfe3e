package signal

import "forecast-engine/internal/model"

// Consensus is the majority vote over the per-indicator directions. Neutral
// readings abstain; an equal count of bullish and bearish votes is neutral.
func Consensus(readings map[model.IndicatorKind]model.IndicatorReading) model.Direction {
	var bull, bear int
	for _, kind := range model.IndicatorKinds {
		r, ok := readings[kind]
		if !ok {
			continue
		}
		switch r.Direction {
		case model.Bullish:
			bull++
		case model.Bearish:
			bear++
		}
	}
	switch {
	case bull > bear:
		return model.Bullish
	case bear > bull:
		return model.Bearish
	default:
		return model.Neutral
	}
}

// Flipped reports whether sentiment moved between bullish and bearish.
// Transitions to or from neutral are not flips.
func Flipped(prev, next model.Direction) bool {
	return (prev == model.Bullish && next == model.Bearish) ||
		(prev == model.Bearish && next == model.Bullish)
}
