package matching

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

// minFill is the smallest matchable size. An order with less than this
// remaining is complete.
const minFill = 0.01

var (
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill size")
)

// StateMachine tracks simulated bets by id and enforces their lifecycle:
// executable until fully matched, cancelled or rejected.
type StateMachine struct {
	orders map[string]*schema.Order
	order  []string
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[string]*schema.Order)}
}

// Order returns the current order state.
func (m *StateMachine) Order(id string) (*schema.Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// Orders returns every order in placement order.
func (m *StateMachine) Orders() []*schema.Order {
	out := make([]*schema.Order, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.orders[id])
	}
	return out
}

// ApplyPlace creates a new executable order.
func (m *StateMachine) ApplyPlace(req schema.OrderRequest, ts int64) (*schema.Order, error) {
	if req.ID == "" {
		return nil, exception.ErrOrderUnknown
	}
	if _, ok := m.orders[req.ID]; ok {
		return nil, errors.Wrapf(exception.ErrOrderDuplicate, "order %s", req.ID)
	}
	o := &schema.Order{
		OrderRequest: req,
		Status:       schema.OrderStatusExecutable,
		PlacedAt:     ts,
	}
	m.orders[o.ID] = o
	m.order = append(m.order, o.ID)
	return o, nil
}

// ApplyFill matches size at price. The matched price is kept as the size
// weighted average of all fills.
func (m *StateMachine) ApplyFill(id string, price, size float64, ts int64) (*schema.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if o.Status.Terminal() {
		return o, ErrInvalidTransition
	}
	if size <= 0 || size > o.SizeRemaining()+1e-9 {
		return o, ErrInvalidFill
	}

	matched := decimal.NewFromFloat(o.SizeMatched)
	fill := decimal.NewFromFloat(size)
	total := matched.Add(fill)
	avg := matched.Mul(decimal.NewFromFloat(o.PriceMatched)).
		Add(fill.Mul(decimal.NewFromFloat(price))).
		Div(total)

	o.SizeMatched = total.Round(2).InexactFloat64()
	o.PriceMatched = avg.Round(2).InexactFloat64()
	if o.SizeRemaining() < minFill {
		o.SizeMatched = o.Size
		o.Status = schema.OrderStatusExecutionComplete
		o.CompletedAt = ts
	}
	return o, nil
}

// ApplyCancel stops an executable order. An order with any matched size
// completes, otherwise it is cancelled.
func (m *StateMachine) ApplyCancel(id string, ts int64) (*schema.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if o.Status.Terminal() {
		return o, ErrInvalidTransition
	}
	if o.SizeMatched > 0 {
		o.Status = schema.OrderStatusExecutionComplete
	} else {
		o.Status = schema.OrderStatusCancelled
	}
	o.CompletedAt = ts
	return o, nil
}

// ApplyReject marks an order that could not be accepted.
func (m *StateMachine) ApplyReject(id string, ts int64, note string) (*schema.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, exception.ErrOrderUnknown
	}
	if o.Status.Terminal() || o.SizeMatched > 0 {
		return o, ErrInvalidTransition
	}
	o.Status = schema.OrderStatusRejected
	o.CompletedAt = ts
	o.MarketNote = note
	return o, nil
}
