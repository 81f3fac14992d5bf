package middleware

import (
	"context"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// TradeDeltaTracker turns cumulative traded ladders into per-update volume
// increases.
type TradeDeltaTracker struct{}

func NewTradeDeltaTracker() *TradeDeltaTracker { return &TradeDeltaTracker{} }

func (*TradeDeltaTracker) Name() string { return "trade_delta_tracker" }

func (*TradeDeltaTracker) Reads() []market.Field { return []market.Field{market.FieldSnapshot} }

func (*TradeDeltaTracker) Writes() []market.Field {
	return []market.Field{market.FieldTradedLadders, market.FieldTradeDeltas}
}

func (*TradeDeltaTracker) Process(_ context.Context, mc *market.Context, book *schema.MarketBook) {
	mc.TradeDeltas = nil
	if !book.HasTradedVolume() {
		return
	}
	for i := range book.Runners {
		r := &book.Runners[i]
		if r.TradedVolume == nil {
			continue
		}
		prev := mc.Traded[r.SelectionID]
		for _, lv := range r.TradedVolume {
			before, _ := prev.SizeAt(lv.Price)
			if size := lv.Size - before; size > 0 {
				mc.TradeDeltas = append(mc.TradeDeltas, market.TradeDelta{
					SelectionID: r.SelectionID,
					Price:       lv.Price,
					Size:        size,
				})
			}
		}
		mc.Traded[r.SelectionID] = r.TradedVolume.Clone()
	}
}
