package middleware

import (
	"context"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// TargetLadderRecorder captures the traded ladders around each trigger
// second: once when the trigger fires, then refreshed until the follow-up
// window closes.
type TargetLadderRecorder struct {
	window float64
}

func NewTargetLadderRecorder(cfg Config) *TargetLadderRecorder {
	cfg = cfg.WithDefaults()
	return &TargetLadderRecorder{window: *cfg.TargetWindowSeconds}
}

func (*TargetLadderRecorder) Name() string { return "target_ladder_recorder" }

func (*TargetLadderRecorder) Reads() []market.Field {
	return []market.Field{
		market.FieldSnapshot,
		market.FieldTradedLadders,
		market.FieldTopSelections,
		market.FieldTriggers,
	}
}

func (*TargetLadderRecorder) Writes() []market.Field {
	return []market.Field{market.FieldTargetLadders}
}

func (s *TargetLadderRecorder) Process(_ context.Context, mc *market.Context, book *schema.MarketBook) {
	for _, second := range mc.TriggerSeconds {
		tl, ok := mc.TargetLadder(second)
		if !ok {
			ladders := s.topLadders(mc)
			mc.TargetLadders = append(mc.TargetLadders, &market.TargetLadder{
				Second:          second,
				Initial:         ladders,
				Target:          cloneLadders(ladders),
				LastPriceTraded: topLTP(mc, book),
			})
			continue
		}
		if tl.Frozen {
			continue
		}
		if mc.SecondsToStart >= second-s.window && book.PrePlayOpen() {
			tl.Target = s.topLadders(mc)
			continue
		}
		tl.Frozen = true
	}
}

func (s *TargetLadderRecorder) topLadders(mc *market.Context) map[int64]schema.Ladder {
	out := make(map[int64]schema.Ladder, len(mc.TopSelections))
	for _, id := range mc.TopSelections {
		if l, ok := mc.Traded[id]; ok {
			out[id] = l.Clone()
		}
	}
	return out
}

func topLTP(mc *market.Context, book *schema.MarketBook) map[int64]float64 {
	out := make(map[int64]float64, len(mc.TopSelections))
	for _, id := range mc.TopSelections {
		r, ok := book.Runner(id)
		if !ok {
			continue
		}
		if ltp, ok := r.LTP(); ok {
			out[id] = ltp
		}
	}
	return out
}

func cloneLadders(in map[int64]schema.Ladder) map[int64]schema.Ladder {
	out := make(map[int64]schema.Ladder, len(in))
	for id, l := range in {
		out[id] = l.Clone()
	}
	return out
}
