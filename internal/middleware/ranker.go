package middleware

import (
	"context"
	"math"
	"sort"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// TopSelectionRanker latches the favourites once the market gets inside the
// ranking horizon. The set is never recomputed afterwards.
type TopSelectionRanker struct {
	horizon float64
	count   int
}

func NewTopSelectionRanker(cfg Config) *TopSelectionRanker {
	cfg = cfg.WithDefaults()
	return &TopSelectionRanker{horizon: cfg.TopHorizonSeconds, count: cfg.TopCount}
}

func (*TopSelectionRanker) Name() string { return "top_selection_ranker" }

func (*TopSelectionRanker) Reads() []market.Field { return []market.Field{market.FieldSnapshot} }

func (*TopSelectionRanker) Writes() []market.Field { return []market.Field{market.FieldTopSelections} }

func (s *TopSelectionRanker) Process(_ context.Context, mc *market.Context, book *schema.MarketBook) {
	if mc.TopLatched || mc.SecondsToStart > s.horizon || len(book.Runners) == 0 {
		return
	}

	type ranked struct {
		id  int64
		ltp float64
	}
	runners := make([]ranked, 0, len(book.Runners))
	for i := range book.Runners {
		ltp, ok := book.Runners[i].LTP()
		if !ok {
			ltp = math.Inf(1)
		}
		runners = append(runners, ranked{id: book.Runners[i].SelectionID, ltp: ltp})
	}
	sort.SliceStable(runners, func(i, j int) bool {
		if runners[i].ltp == runners[j].ltp {
			return runners[i].id < runners[j].id
		}
		return runners[i].ltp < runners[j].ltp
	})

	n := min(s.count, len(runners))
	top := make([]int64, n)
	for i := 0; i < n; i++ {
		top[i] = runners[i].id
	}
	mc.TopSelections = top
	mc.TopLatched = true
}
