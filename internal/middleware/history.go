package middleware

import (
	"context"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// TradeHistoryWindow appends trades above the noise floor to a bounded
// per-selection history.
type TradeHistoryWindow struct {
	noiseFloor float64
	capacity   int
}

func NewTradeHistoryWindow(cfg Config) *TradeHistoryWindow {
	cfg = cfg.WithDefaults()
	return &TradeHistoryWindow{noiseFloor: *cfg.NoiseFloor, capacity: cfg.HistoryCapacity}
}

func (*TradeHistoryWindow) Name() string { return "trade_history_window" }

func (*TradeHistoryWindow) Reads() []market.Field {
	return []market.Field{market.FieldSnapshot, market.FieldTradeDeltas}
}

func (*TradeHistoryWindow) Writes() []market.Field { return []market.Field{market.FieldTradeHistory} }

func (s *TradeHistoryWindow) Process(_ context.Context, mc *market.Context, _ *schema.MarketBook) {
	clock := mc.Clock()
	for _, d := range mc.TradeDeltas {
		if d.Size < s.noiseFloor {
			continue
		}
		mc.SelectionHistory(d.SelectionID, s.capacity).Append(market.HistoryEntry{
			Price: d.Price,
			Size:  d.Size,
			Clock: clock,
		})
	}
}
