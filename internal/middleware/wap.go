package middleware

import (
	"context"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// WAPAggregator computes size-weighted average prices over the recent
// history window and over the full traded ladder.
type WAPAggregator struct {
	window float64
}

func NewWAPAggregator(cfg Config) *WAPAggregator {
	cfg = cfg.WithDefaults()
	return &WAPAggregator{window: cfg.WAPWindowSeconds}
}

func (*WAPAggregator) Name() string { return "wap_aggregator" }

func (*WAPAggregator) Reads() []market.Field {
	return []market.Field{market.FieldSnapshot, market.FieldTradedLadders, market.FieldTradeHistory}
}

func (*WAPAggregator) Writes() []market.Field { return []market.Field{market.FieldWAP} }

func (s *WAPAggregator) Process(_ context.Context, mc *market.Context, _ *schema.MarketBook) {
	last := make(map[int64]float64, len(mc.History))
	from, to := mc.SecondsToStart, mc.SecondsToStart+s.window
	for id, h := range mc.History {
		var num, den float64
		h.Each(func(e market.HistoryEntry) {
			if e.Clock >= from && e.Clock <= to {
				num += e.Price * e.Size
				den += e.Size
			}
		})
		if den > 0 {
			last[id] = market.Round2(num / den)
		}
	}

	total := make(map[int64]float64, len(mc.Traded))
	for id, ladder := range mc.Traded {
		if wap, ok := LadderWAP(ladder); ok {
			total[id] = wap
		}
	}

	mc.WAPLast15 = last
	mc.WAPTotal = total
}

// LadderWAP is the size-weighted average price of a ladder, rounded to two
// decimals. It reports false when the ladder holds no size.
func LadderWAP(l schema.Ladder) (float64, bool) {
	var num, den float64
	for _, lv := range l {
		num += lv.Price * lv.Size
		den += lv.Size
	}
	if den <= 0 {
		return 0, false
	}
	return market.Round2(num / den), true
}
