package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

func ladder(levels ...float64) schema.Ladder {
	out := make([]schema.PriceSize, 0, len(levels)/2)
	for i := 0; i+1 < len(levels); i += 2 {
		out = append(out, schema.PriceSize{Price: levels[i], Size: levels[i+1]})
	}
	return schema.NormalizeLadder(out)
}

func runner(id int64, ltp, totalMatched float64, traded schema.Ladder) schema.RunnerBook {
	return schema.RunnerBook{
		SelectionID:     id,
		Status:          schema.RunnerStatusActive,
		LastPriceTraded: ltp,
		TotalMatched:    totalMatched,
		AvailableToBack: ladder(ltp-0.02, 100, ltp-0.04, 50),
		AvailableToLay:  ladder(ltp+0.02, 80, ltp+0.04, 40),
		TradedVolume:    traded,
	}
}

func book(secondsToStart float64, runners ...schema.RunnerBook) *schema.MarketBook {
	return &schema.MarketBook{
		MarketID:       "1.100",
		Status:         schema.MarketStatusOpen,
		SecondsToStart: secondsToStart,
		Venue:          "Ascot",
		RaceType:       "Flat",
		Runners:        runners,
	}
}

// sixRunnerBook builds a six runner market whose total matched is 10,000.
// Runner 1 carries the given traded ladder; the others keep a fixed one.
func sixRunnerBook(secondsToStart float64, runner1Traded schema.Ladder) *schema.MarketBook {
	runners := []schema.RunnerBook{runner(1, 2.0, 2500, runner1Traded)}
	for id := int64(2); id <= 6; id++ {
		runners = append(runners, runner(id, float64(id)+1, 1500, ladder(float64(id)+1, 100)))
	}
	return book(secondsToStart, runners...)
}

func newTestChain(t *testing.T, extra ...Stage) *Chain {
	t.Helper()
	chain, err := NewChain(DefaultStages(DefaultConfig(), extra...)...)
	require.NoError(t, err)
	return chain
}

func replay(t *testing.T, chain *Chain, books ...*schema.MarketBook) *market.Context {
	t.Helper()
	var mc *market.Context
	for _, b := range books {
		if mc == nil {
			mc = market.NewContext(b)
		}
		chain.Process(context.Background(), mc, b)
	}
	return mc
}
