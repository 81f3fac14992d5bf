package risk

import (
	"github.com/shopspring/decimal"

	"bookreplay/internal/schema"
)

// Action is the outcome of a risk check.
type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains a denied order.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonKillSwitch        Reason = "kill_switch"
	ReasonInvalid           Reason = "invalid_request"
	ReasonMaxBackPrice      Reason = "max_back_price"
	ReasonMaxOrderSize      Reason = "max_order_size"
	ReasonSelectionExposure Reason = "selection_exposure"
	ReasonMarketOrders      Reason = "market_orders"
)

// Config defines static limits applied before an order is placed.
// Zero disables a limit.
type Config struct {
	KillSwitch           bool    `yaml:"kill_switch"`
	MaxBackPrice         float64 `yaml:"max_back_price"`
	MaxOrderSize         float64 `yaml:"max_order_size"`
	MaxSelectionExposure float64 `yaml:"max_selection_exposure"`
	MaxOrdersPerMarket   int     `yaml:"max_orders_per_market"`
}

// StateView is the current exposure of the market an order targets.
type StateView struct {
	// SelectionExposure is the summed liability of live bets on the selection.
	SelectionExposure float64
	// MarketOrders is the number of bets already placed in the market.
	MarketOrders int
}

// Decision is the result of Evaluate.
type Decision struct {
	OrderID  string
	Action   Action
	Reason   Reason
	Exposure float64
}

// Allowed reports whether the order may be placed.
func (d Decision) Allowed() bool { return d.Action == ActionAllow }

// Engine evaluates order requests against static limits.
type Engine struct {
	cfg Config
}

// NewEngine creates a risk engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Evaluate applies the checks in a fixed order and reports the first breach.
// A nil engine allows every well-formed request.
func (e *Engine) Evaluate(req schema.OrderRequest, state StateView) Decision {
	decision := Decision{
		OrderID:  req.ID,
		Action:   ActionAllow,
		Reason:   ReasonNone,
		Exposure: state.SelectionExposure,
	}
	deny := func(r Reason) Decision {
		decision.Action = ActionDeny
		decision.Reason = r
		return decision
	}

	if req.Price <= 1 || req.Size <= 0 || (req.Side != schema.SideBack && req.Side != schema.SideLay) {
		return deny(ReasonInvalid)
	}
	if e == nil {
		return decision
	}
	if e.cfg.KillSwitch {
		return deny(ReasonKillSwitch)
	}
	if e.cfg.MaxOrdersPerMarket > 0 && state.MarketOrders >= e.cfg.MaxOrdersPerMarket {
		return deny(ReasonMarketOrders)
	}
	if e.cfg.MaxOrderSize > 0 && req.Size > e.cfg.MaxOrderSize {
		return deny(ReasonMaxOrderSize)
	}
	if e.cfg.MaxBackPrice > 0 && req.Side == schema.SideBack && req.Price > e.cfg.MaxBackPrice {
		return deny(ReasonMaxBackPrice)
	}

	next := decimal.NewFromFloat(state.SelectionExposure).Add(liability(req))
	decision.Exposure = next.InexactFloat64()
	if e.cfg.MaxSelectionExposure > 0 && next.GreaterThan(decimal.NewFromFloat(e.cfg.MaxSelectionExposure)) {
		return deny(ReasonSelectionExposure)
	}
	return decision
}

// liability mirrors OrderRequest.Liability in decimal to keep the limit
// comparison exact at two decimal places.
func liability(req schema.OrderRequest) decimal.Decimal {
	size := decimal.NewFromFloat(req.Size)
	if req.Side == schema.SideLay {
		return size.Mul(decimal.NewFromFloat(req.Price).Sub(decimal.NewFromInt(1)))
	}
	return size
}
