package decision

import (
	"bookreplay/internal/market"
	"bookreplay/internal/schema"
)

// Window bounds when a strategy may open a position and how long an order
// may work before the engine cancels it. Times are seconds to start.
type Window struct {
	// EntryFrom is the earliest entry, e.g. 300 seconds before the start.
	EntryFrom float64 `yaml:"entry_from"`
	// EntryTo is the latest entry. Negative values reach into the event.
	EntryTo float64 `yaml:"entry_to"`
	// Timeout cancels an order not fully matched after this many seconds.
	// Zero keeps orders working until the market closes.
	Timeout float64 `yaml:"timeout"`
}

// Contains reports whether the clock is inside the entry window.
func (w Window) Contains(secondsToStart float64) bool {
	return secondsToStart <= w.EntryFrom && secondsToStart >= w.EntryTo
}

// Strategy is the capability set the engine needs from a trading strategy.
type Strategy interface {
	Name() string
	Window() Window
	// ShouldEvaluate is a cheap pre-check run every cycle inside the window.
	ShouldEvaluate(mc *market.Context) bool
	// Decide returns the orders to place. Requests for a runner that already
	// holds a position are dropped by the engine.
	Decide(mc *market.Context, book *schema.MarketBook) []schema.OrderRequest
	OnOrderEvent(order schema.Order, ev schema.OrderEvent)
}

// Placer is the order collaborator the engine submits to.
type Placer interface {
	Place(req schema.OrderRequest) (string, error)
	Cancel(id string) error
}
