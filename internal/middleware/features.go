package middleware

import (
	"context"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// FeatureTensorBuilder assembles the model input for every top selection.
type FeatureTensorBuilder struct {
	depth int
}

func NewFeatureTensorBuilder(cfg Config) *FeatureTensorBuilder {
	cfg = cfg.WithDefaults()
	return &FeatureTensorBuilder{depth: cfg.LadderDepth}
}

func (*FeatureTensorBuilder) Name() string { return "feature_tensor_builder" }

func (*FeatureTensorBuilder) Reads() []market.Field {
	return []market.Field{
		market.FieldSnapshot,
		market.FieldTradedLadders,
		market.FieldTradeHistory,
		market.FieldTopSelections,
		market.FieldTriggers,
	}
}

func (*FeatureTensorBuilder) Writes() []market.Field { return []market.Field{market.FieldFeatures} }

func (s *FeatureTensorBuilder) Process(_ context.Context, mc *market.Context, book *schema.MarketBook) {
	features := make(map[int64]market.FeatureBundle, len(mc.TopSelections))
	for _, id := range mc.TopSelections {
		r, ok := book.Runner(id)
		if !ok {
			continue
		}
		ltp, _ := r.LTP()
		features[id] = market.FeatureBundle{
			SelectionID:     id,
			Back:            r.AvailableToBack.Highest(s.depth),
			Lay:             r.AvailableToLay.Lowest(s.depth),
			Traded:          mc.Traded[id].Clone(),
			History:         rebase(mc.History[id], mc.SecondsToStart),
			LastPriceTraded: ltp,
			Triggered:       mc.Triggered(id),
		}
	}
	mc.Features = features
}

// rebase expresses history clocks relative to the current update.
func rebase(h *market.History, now float64) []market.HistoryEntry {
	entries := h.Entries()
	for i := range entries {
		entries[i].Clock -= now
	}
	return entries
}
