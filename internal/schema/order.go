package schema

// OrderStatus is the lifecycle status of a simulated bet.
type OrderStatus string

const (
	OrderStatusExecutable        OrderStatus = "EXECUTABLE"
	OrderStatusExecutionComplete OrderStatus = "EXECUTION_COMPLETE"
	OrderStatusCancelled         OrderStatus = "CANCELLED"
	OrderStatusRejected          OrderStatus = "REJECTED"
)

// Terminal reports whether no further fills can happen.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusExecutionComplete, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderRequest is a strategy's intent to place one limit bet.
// ID is assigned by the decision engine before placement.
type OrderRequest struct {
	ID           string  `json:"id"`
	TradeID      string  `json:"trade_id"`
	StrategyName string  `json:"strategy_name"`
	MarketID     string  `json:"market_id"`
	SelectionID  int64   `json:"selection_id"`
	Side         Side    `json:"side"`
	Price        float64 `json:"price"`
	Size         float64 `json:"size"`
	TradeNotes   string  `json:"trade_notes,omitempty"`
	OrderNotes   string  `json:"order_notes,omitempty"`
}

// Liability is the amount at risk if the bet loses.
func (r OrderRequest) Liability() float64 {
	if r.Side == SideLay {
		return r.Size * (r.Price - 1)
	}
	return r.Size
}

// Order is the matcher's view of a placed bet.
type Order struct {
	OrderRequest
	Status       OrderStatus `json:"status"`
	SizeMatched  float64     `json:"size_matched"`
	PriceMatched float64     `json:"price_matched"`
	// PlacedAt and CompletedAt are snapshot publish times in milliseconds.
	PlacedAt    int64   `json:"placed_at"`
	CompletedAt int64   `json:"completed_at"`
	Profit      float64 `json:"profit"`
	MarketNote  string  `json:"market_note,omitempty"`
}

// SizeRemaining is the unmatched part of the bet.
func (o Order) SizeRemaining() float64 {
	if r := o.Size - o.SizeMatched; r > 0 {
		return r
	}
	return 0
}

// OrderEventType is the kind of outcome delivered to an order listener.
type OrderEventType uint8

const (
	OrderEventUnknown OrderEventType = iota
	OrderEventFill
	OrderEventComplete
	OrderEventCancelled
	OrderEventRejected
	OrderEventSettled
)

func (t OrderEventType) String() string {
	switch t {
	case OrderEventFill:
		return "fill"
	case OrderEventComplete:
		return "complete"
	case OrderEventCancelled:
		return "cancelled"
	case OrderEventRejected:
		return "rejected"
	case OrderEventSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// OrderEvent reports a change to one order. For fills Price and Size hold
// the matched amount of this event only.
type OrderEvent struct {
	Type  OrderEventType
	Order Order
	Price float64
	Size  float64
}
