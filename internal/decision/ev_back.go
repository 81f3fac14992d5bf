package decision

import (
	"fmt"
	"math"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// EVBackConfig parameterises EVBack.
type EVBackConfig struct {
	Name       string   `yaml:"name"`
	Slots      []string `yaml:"slots"`
	Stake      float64  `yaml:"stake"`
	Commission float64  `yaml:"commission"`
	MinEV      float64  `yaml:"min_ev"`
	Window     Window   `yaml:"window"`
}

// EVBack backs a runner at the best available price when the most
// pessimistic model probability still gives a positive expected value after
// commission.
type EVBack struct {
	cfg EVBackConfig
}

func NewEVBack(cfg EVBackConfig) *EVBack {
	if cfg.Name == "" {
		cfg.Name = "ev_back"
	}
	if cfg.Stake <= 0 {
		cfg.Stake = 1
	}
	return &EVBack{cfg: cfg}
}

func (s *EVBack) Name() string   { return s.cfg.Name }
func (s *EVBack) Window() Window { return s.cfg.Window }

func (s *EVBack) ShouldEvaluate(mc *market.Context) bool {
	if mc.Status == schema.MarketStatusClosed || mc.InPlay || len(mc.TopSelections) == 0 {
		return false
	}
	for _, slot := range s.cfg.Slots {
		if len(mc.Predictions[slot]) > 0 {
			return true
		}
	}
	return false
}

func (s *EVBack) Decide(mc *market.Context, book *schema.MarketBook) []schema.OrderRequest {
	var out []schema.OrderRequest
	for _, id := range mc.TopSelections {
		p, ok := s.minProbability(mc, id)
		if !ok {
			continue
		}
		r, ok := book.Runner(id)
		if !ok {
			continue
		}
		best, ok := r.BestBack()
		if !ok || best.Price <= 1 {
			continue
		}
		ev := ExpectedValue(p, best.Price, s.cfg.Commission)
		if ev <= s.cfg.MinEV {
			continue
		}
		size := market.Round2(math.Min(best.Size, s.cfg.Stake))
		if size <= 0 {
			continue
		}
		out = append(out, schema.OrderRequest{
			SelectionID: id,
			Side:        schema.SideBack,
			Price:       best.Price,
			Size:        size,
			TradeNotes:  fmt.Sprintf("p=%.4f ev=%.4f", p, ev),
		})
	}
	return out
}

func (*EVBack) OnOrderEvent(schema.Order, schema.OrderEvent) {}

// minProbability converts every slot's predicted WAP to an implied win
// probability and keeps the smallest.
func (s *EVBack) minProbability(mc *market.Context, selectionID int64) (float64, bool) {
	p, found := 1.0, false
	for _, slot := range s.cfg.Slots {
		pred, ok := mc.Prediction(slot, selectionID)
		if !ok || pred.PredictedWAP <= 1 {
			continue
		}
		p = math.Min(p, 1/pred.PredictedWAP)
		found = true
	}
	return p, found
}

// ExpectedValue of a one unit back bet at price with win probability p.
func ExpectedValue(p, price, commission float64) float64 {
	return p*(price-1)*(1-commission) - (1 - p)
}
