package decision

import (
	"fmt"
	"math"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// PriceBandConfig parameterises PriceBand.
type PriceBandConfig struct {
	Name      string  `yaml:"name"`
	Slot      string  `yaml:"slot"`
	Threshold float64 `yaml:"threshold"`
	Stake     float64 `yaml:"stake"`
	Window    Window  `yaml:"window"`
}

// PriceBand trades runners whose market price leaves the predicted band:
// back when the best back price is above the predicted max, lay when the
// best lay price is below the predicted min.
type PriceBand struct {
	cfg PriceBandConfig
}

func NewPriceBand(cfg PriceBandConfig) *PriceBand {
	if cfg.Name == "" {
		cfg.Name = "price_band"
	}
	if cfg.Stake <= 0 {
		cfg.Stake = 1
	}
	return &PriceBand{cfg: cfg}
}

func (s *PriceBand) Name() string   { return s.cfg.Name }
func (s *PriceBand) Window() Window { return s.cfg.Window }

func (s *PriceBand) ShouldEvaluate(mc *market.Context) bool {
	return mc.Status == schema.MarketStatusOpen && !mc.InPlay && len(mc.Predictions[s.cfg.Slot]) > 0
}

func (s *PriceBand) Decide(mc *market.Context, book *schema.MarketBook) []schema.OrderRequest {
	var out []schema.OrderRequest
	for _, id := range mc.TopSelections {
		pred, ok := mc.Prediction(s.cfg.Slot, id)
		if !ok {
			continue
		}
		r, ok := book.Runner(id)
		if !ok {
			continue
		}
		if best, ok := r.BestBack(); ok && pred.PredictedMaxPrice > 0 && best.Price > pred.PredictedMaxPrice+s.cfg.Threshold {
			out = append(out, s.request(id, schema.SideBack, best, pred))
			continue
		}
		if best, ok := r.BestLay(); ok && pred.PredictedMinPrice > 1 && best.Price < pred.PredictedMinPrice-s.cfg.Threshold {
			out = append(out, s.request(id, schema.SideLay, best, pred))
		}
	}
	return out
}

func (s *PriceBand) request(id int64, side schema.Side, best schema.PriceSize, pred market.Prediction) schema.OrderRequest {
	return schema.OrderRequest{
		SelectionID: id,
		Side:        side,
		Price:       best.Price,
		Size:        market.Round2(math.Min(best.Size, s.cfg.Stake)),
		TradeNotes:  fmt.Sprintf("band=[%.2f,%.2f]", pred.PredictedMinPrice, pred.PredictedMaxPrice),
	}
}

func (*PriceBand) OnOrderEvent(schema.Order, schema.OrderEvent) {}
