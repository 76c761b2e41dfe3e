package notification

import (
	"context"
	"fmt"
	"sync"

	"forecast-engine/internal/model"
	"forecast-engine/internal/numeric"
	"forecast-engine/internal/signal"
)

// FlipDetector is a forecast sink that raises an alert whenever an asset's
// consensus sentiment reverses between bullish and bearish. The first
// forecast seen for an asset only primes its state.
type FlipDetector struct {
	notifier Notifier

	mu   sync.Mutex
	last map[string]model.Direction

	// OnFlip is called for every detected reversal, before the alert is sent.
	OnFlip func(assetID string, from, to model.Direction)
}

// NewFlipDetector creates a detector that alerts through n.
func NewFlipDetector(n Notifier) *FlipDetector {
	return &FlipDetector{notifier: n, last: make(map[string]model.Direction)}
}

func (d *FlipDetector) Name() string { return "sentiment-flips" }

func (d *FlipDetector) Consume(ctx context.Context, f model.Forecast) error {
	d.mu.Lock()
	prev, seen := d.last[f.AssetID]
	// Neutral readings do not reset the reference direction.
	if f.Sentiment != model.Neutral || !seen {
		d.last[f.AssetID] = f.Sentiment
	}
	d.mu.Unlock()

	if !seen || !signal.Flipped(prev, f.Sentiment) {
		return nil
	}
	if d.OnFlip != nil {
		d.OnFlip(f.AssetID, prev, f.Sentiment)
	}
	return d.notifier.Send(ctx, flipAlert(f, prev))
}

func flipAlert(f model.Forecast, prev model.Direction) Alert {
	return Alert{
		Level:   AlertWarning,
		Title:   fmt.Sprintf("%s sentiment flipped %s -> %s", f.AssetID, prev, f.Sentiment),
		AssetID: f.AssetID,
		Message: fmt.Sprintf("price %s, short %s (%s), long %s (%s)",
			numeric.FormatPrice(f.ObservedPrice),
			numeric.FormatPrice(f.ShortHorizonPrice),
			numeric.FormatPct(numeric.PctChange(f.ObservedPrice, f.ShortHorizonPrice)),
			numeric.FormatPrice(f.LongHorizonPrice),
			numeric.FormatPct(numeric.PctChange(f.ObservedPrice, f.LongHorizonPrice))),
	}
}
