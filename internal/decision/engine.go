package decision

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"bookreplay/internal/market"
	"bookreplay/internal/matching"
	"bookreplay/internal/obs"
	"bookreplay/internal/risk"
	"bookreplay/internal/schema"
)

// runner is the position slot of one selection. A market holds at most one
// position per selection across all strategies.
type runner struct {
	state    State
	orderID  string
	strategy Strategy
	openedAt float64
}

// Engine runs the strategies for one market at a time and owns the runner
// state machines. It is not safe for concurrent use; every chunk builds its
// own engine.
type Engine struct {
	strategies []Strategy
	placer     Placer
	guard      *risk.Engine
	notifier   Notifier
	metrics    *obs.Metrics
	newID      func() string

	marketID string
	runners  map[int64]*runner
	orders   map[string]int64
	exposure map[int64]float64
	placed   int
}

// NewEngine builds an engine. A nil notifier drops events and a nil guard
// allows every well-formed order.
func NewEngine(placer Placer, notifier Notifier, guard *risk.Engine, strategies ...Strategy) *Engine {
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	e := &Engine{
		strategies: strategies,
		placer:     placer,
		guard:      guard,
		notifier:   notifier,
		newID:      uuid.NewString,
	}
	e.Begin("")
	return e
}

func (e *Engine) SetMetrics(m *obs.Metrics) { e.metrics = m }

// SetPlacer swaps the order collaborator, used when a new market gets its
// own matcher.
func (e *Engine) SetPlacer(p Placer) { e.placer = p }

// Begin resets the per-market state.
func (e *Engine) Begin(marketID string) {
	e.marketID = marketID
	e.runners = make(map[int64]*runner)
	e.orders = make(map[string]int64)
	e.exposure = make(map[int64]float64)
	e.placed = 0
}

// State returns the position state of a selection in the current market.
func (e *Engine) State(selectionID int64) State {
	if r, ok := e.runners[selectionID]; ok {
		return r.state
	}
	return StateIdle
}

// OnBook cancels timed out orders and then lets every strategy inside its
// entry window propose new orders.
func (e *Engine) OnBook(ctx context.Context, mc *market.Context, book *schema.MarketBook) {
	e.expire(mc)
	if book.Status != schema.MarketStatusOpen || ctx.Err() != nil {
		return
	}
	for _, st := range e.strategies {
		if !st.Window().Contains(mc.SecondsToStart) || !st.ShouldEvaluate(mc) {
			continue
		}
		for _, req := range st.Decide(mc, book) {
			e.submit(st, mc, req)
		}
	}
}

func (e *Engine) expire(mc *market.Context) {
	ids := make([]int64, 0, len(e.runners))
	for id := range e.runners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		r := e.runners[id]
		timeout := r.strategy.Window().Timeout
		if !r.state.Open() || timeout <= 0 || r.openedAt-mc.SecondsToStart <= timeout {
			continue
		}
		if err := e.placer.Cancel(r.orderID); err != nil {
			logs.Warnf("market %s order %s cancel, err: %+v", e.marketID, r.orderID, err)
		}
	}
}

func (e *Engine) submit(st Strategy, mc *market.Context, req schema.OrderRequest) {
	if e.State(req.SelectionID) != StateIdle {
		return
	}

	req.ID = e.newID()
	if req.TradeID == "" {
		req.TradeID = e.newID()
	}
	req.StrategyName = st.Name()
	req.MarketID = e.marketID

	decision := e.guard.Evaluate(req, risk.StateView{
		SelectionExposure: e.exposure[req.SelectionID],
		MarketOrders:      e.placed,
	})
	if !decision.Allowed() {
		e.metrics.Inc(obs.CounterOrdersRejected)
		e.notify(EventOrderRejected, st.Name(), req.SelectionID, req.ID, string(decision.Reason))
		return
	}

	r := &runner{state: StateIdle, orderID: req.ID, strategy: st, openedAt: mc.SecondsToStart}
	r.state, _ = r.state.next(StatePending)
	e.runners[req.SelectionID] = r
	e.orders[req.ID] = req.SelectionID

	if _, err := e.placer.Place(req); err != nil {
		if r.state == StatePending {
			r.state, _ = r.state.next(StateIdle)
		}
		delete(e.runners, req.SelectionID)
		delete(e.orders, req.ID)
		e.metrics.Inc(obs.CounterOrdersRejected)
		logs.Warnf("market %s selection %d place, err: %+v", e.marketID, req.SelectionID, err)
		e.notify(EventOrderRejected, st.Name(), req.SelectionID, req.ID, err.Error())
		return
	}
	e.placed++
	e.exposure[req.SelectionID] += req.Liability()
	e.notify(EventOrderPlaced, st.Name(), req.SelectionID, req.ID, "")
}

// OnOrderEvent advances the runner state machine from an order outcome and
// forwards the event to the strategy that owns the order.
func (e *Engine) OnOrderEvent(ev schema.OrderEvent) {
	selectionID, ok := e.orders[ev.Order.ID]
	if !ok {
		return
	}
	r := e.runners[selectionID]

	var (
		to      State
		evType  EventType
		advance = true
	)
	switch ev.Type {
	case schema.OrderEventFill:
		to, evType = StateLive, EventOrderFilled
		advance = r.state == StatePending
	case schema.OrderEventComplete:
		to, evType = StateComplete, EventOrderComplete
	case schema.OrderEventCancelled:
		to, evType = StateCancelled, EventOrderCancelled
		e.exposure[selectionID] -= ev.Order.Liability()
	default:
		advance = false
	}

	if advance {
		next, err := r.state.next(to)
		if err != nil {
			logs.Errorf("market %s order %s %s, err: %+v", e.marketID, ev.Order.ID, ev.Type, err)
		}
		r.state = next
	}
	if evType != 0 {
		e.notify(evType, r.strategy.Name(), selectionID, ev.Order.ID, "")
	}
	r.strategy.OnOrderEvent(ev.Order, ev)
}

// Close reports the cleared market and its trigger timeline to the notifier.
func (e *Engine) Close(summary matching.Summary, triggers []float64) {
	e.notifier.Notify(Event{
		Type:     EventMarketCleared,
		MarketID: summary.MarketID,
		Summary:  summary,
		Triggers: append([]float64(nil), triggers...),
	})
}

func (e *Engine) notify(t EventType, strategy string, selectionID int64, orderID, msg string) {
	e.notifier.Notify(Event{
		Type:        t,
		MarketID:    e.marketID,
		Strategy:    strategy,
		SelectionID: selectionID,
		OrderID:     orderID,
		Message:     msg,
	})
}
