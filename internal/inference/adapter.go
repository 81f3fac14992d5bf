package inference

import (
	"context"
	"strings"

	"github.com/yanun0323/logs"

	"bookreplay/internal/market"
	"bookreplay/internal/obs"
	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

// Adapter is the middleware stage that calls a scorer and stores its output
// under one prediction slot. It is the only place a scorer is invoked.
type Adapter struct {
	slot    string
	scorer  Scorer
	metrics *obs.Metrics
}

func NewAdapter(slot string, scorer Scorer) (*Adapter, error) {
	slot = strings.TrimSpace(slot)
	if slot == "" {
		return nil, exception.ErrEmptySlot
	}
	if scorer == nil {
		return nil, exception.ErrNilInstance
	}
	return &Adapter{slot: slot, scorer: scorer}, nil
}

// Slot returns the prediction slot name this adapter writes.
func (a *Adapter) Slot() string { return a.slot }

func (a *Adapter) SetMetrics(m *obs.Metrics) { a.metrics = m }

func (a *Adapter) Name() string { return "inference/" + a.slot }

func (*Adapter) Reads() []market.Field {
	return []market.Field{market.FieldSnapshot, market.FieldTopSelections, market.FieldFeatures}
}

func (a *Adapter) Writes() []market.Field {
	return []market.Field{market.PredictionField(a.slot)}
}

func (a *Adapter) Process(ctx context.Context, mc *market.Context, _ *schema.MarketBook) {
	delete(mc.Predictions, a.slot)
	if len(mc.TopSelections) == 0 || len(mc.Features) == 0 {
		return
	}

	a.metrics.Inc(obs.CounterScorerCalls)
	predictions, err := a.scorer.Score(ctx, Request{
		MarketID:       mc.MarketID,
		Venue:          mc.Venue,
		RaceType:       mc.RaceType,
		SecondsToStart: mc.SecondsToStart,
		Features:       mc.Features,
	})
	if err != nil {
		a.metrics.Inc(obs.CounterScorerErrors)
		logs.Warnf("market %s slot %s score, err: %+v", mc.MarketID, a.slot, err)
		return
	}
	if len(predictions) == 0 {
		return
	}
	mc.Predictions[a.slot] = predictions
}
