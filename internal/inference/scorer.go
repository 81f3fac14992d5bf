package inference

import (
	"context"

	"bookreplay/internal/market"
)

// Request is the model input for one cycle of one market.
type Request struct {
	MarketID       string
	Venue          string
	RaceType       string
	SecondsToStart float64
	Features       map[int64]market.FeatureBundle
}

// Scorer turns feature bundles into per-runner price predictions.
type Scorer interface {
	Score(ctx context.Context, req Request) (map[int64]market.Prediction, error)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(ctx context.Context, req Request) (map[int64]market.Prediction, error)

func (f ScorerFunc) Score(ctx context.Context, req Request) (map[int64]market.Prediction, error) {
	return f(ctx, req)
}
