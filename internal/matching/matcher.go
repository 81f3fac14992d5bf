package matching

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bookreplay/internal/obs"
	"bookreplay/internal/schema"
	"bookreplay/pkg/exception"
)

// Listener receives order outcomes synchronously from the matcher.
type Listener interface {
	OnOrderEvent(ev schema.OrderEvent)
}

// Config controls the simulated exchange.
type Config struct {
	// Commission is charged on a market's net winnings.
	Commission float64 `yaml:"commission"`
	// LapseOnInPlay cancels unmatched size when the market turns in-play.
	LapseOnInPlay bool `yaml:"lapse_on_inplay"`
}

// Summary is the cleared result of one market.
type Summary struct {
	MarketID   string
	Orders     int
	Matched    float64
	Profit     float64
	Commission float64
}

// SimMatcher is a single market simulated exchange. Resting bets are matched
// against the available-to-back and available-to-lay ladders of every
// snapshot; a market holds at most the size shown at each level per update.
type SimMatcher struct {
	cfg      Config
	state    *StateMachine
	listener Listener
	metrics  *obs.Metrics
	book     *schema.MarketBook
	closed   bool
}

// NewSimMatcher creates a matcher for one market.
func NewSimMatcher(cfg Config) *SimMatcher {
	return &SimMatcher{
		cfg:   cfg,
		state: NewStateMachine(),
	}
}

// SetListener registers the receiver of order events.
func (m *SimMatcher) SetListener(l Listener) { m.listener = l }

func (m *SimMatcher) SetMetrics(metrics *obs.Metrics) { m.metrics = metrics }

// State returns the underlying order state machine.
func (m *SimMatcher) State() *StateMachine { return m.state }

// OnBook makes the snapshot the current book and matches resting bets.
func (m *SimMatcher) OnBook(book *schema.MarketBook) {
	m.book = book
	if book.Status == schema.MarketStatusClosed {
		m.closed = true
		return
	}
	used := make(map[levelKey]float64)
	for _, o := range m.state.Orders() {
		if o.Status.Terminal() {
			continue
		}
		m.match(o, used)
	}
	if m.cfg.LapseOnInPlay && book.InPlay {
		for _, o := range m.state.Orders() {
			if !o.Status.Terminal() {
				m.cancel(o.ID, "lapsed at in-play")
			}
		}
	}
}

// Place accepts a bet and matches it immediately against the current book.
// It returns the order id used as the handle for Cancel. A bet on a missing
// or non-active runner is recorded as rejected and still settles as a row.
func (m *SimMatcher) Place(req schema.OrderRequest) (string, error) {
	if req.ID == "" || req.Size <= 0 || req.Price <= 1 {
		return "", errors.Wrapf(exception.ErrOrderInvalidRequest, "order %q price %v size %v", req.ID, req.Price, req.Size)
	}
	if req.Side != schema.SideBack && req.Side != schema.SideLay {
		return "", errors.Wrapf(exception.ErrOrderInvalidRequest, "order %s side %q", req.ID, req.Side)
	}
	if m.closed || m.book == nil || m.book.Status == schema.MarketStatusClosed {
		return "", errors.Wrapf(exception.ErrOrderMarketClosed, "order %s", req.ID)
	}

	o, err := m.state.ApplyPlace(req, m.book.PublishTime)
	if err != nil {
		return "", err
	}
	if r, ok := m.book.Runner(req.SelectionID); !ok || !tradable(r) {
		note := "runner missing"
		if ok {
			note = "runner " + strings.ToLower(string(r.Status))
		}
		m.reject(o.ID, note)
		return o.ID, errors.Wrapf(exception.ErrOrderRunnerUnavailable, "order %s selection %d: %s", req.ID, req.SelectionID, note)
	}
	m.metrics.Inc(obs.CounterOrdersPlaced)
	m.match(o, make(map[levelKey]float64))
	return o.ID, nil
}

// Cancel stops the unmatched part of a bet. The outcome is delivered to the
// listener as complete when anything matched, cancelled otherwise.
func (m *SimMatcher) Cancel(id string) error {
	o, ok := m.state.Order(id)
	if !ok {
		return errors.Wrapf(exception.ErrOrderUnknown, "order %s", id)
	}
	if o.Status.Terminal() {
		return errors.Wrapf(exception.ErrOrderNotExecutable, "order %s status %s", id, o.Status)
	}
	m.cancel(id, "")
	return nil
}

// Settle lapses every unmatched bet, computes profit from the runner results
// of the closing book, and returns all orders in placement order.
func (m *SimMatcher) Settle(book *schema.MarketBook) ([]schema.Order, Summary) {
	m.book = book
	m.closed = true
	for _, o := range m.state.Orders() {
		if !o.Status.Terminal() {
			m.cancel(o.ID, "lapsed at close")
		}
	}

	summary := Summary{MarketID: book.MarketID}
	total := decimal.Zero
	matched := decimal.Zero
	orders := m.state.Orders()
	out := make([]schema.Order, 0, len(orders))
	for _, o := range orders {
		profit := settleProfit(*o, book)
		o.Profit = profit.InexactFloat64()
		total = total.Add(profit)
		matched = matched.Add(decimal.NewFromFloat(o.SizeMatched))
		out = append(out, *o)
		m.emit(schema.OrderEvent{Type: schema.OrderEventSettled, Order: *o})
	}
	summary.Orders = len(out)
	summary.Matched = matched.Round(2).InexactFloat64()
	summary.Profit = total.Round(2).InexactFloat64()
	if total.IsPositive() && m.cfg.Commission > 0 {
		summary.Commission = total.Mul(decimal.NewFromFloat(m.cfg.Commission)).Round(2).InexactFloat64()
	}
	return out, summary
}

// tradable reports whether bets on the runner can match. An empty status is
// treated as active.
func tradable(r *schema.RunnerBook) bool {
	return r.Status == "" || r.Status == schema.RunnerStatusActive
}

type levelKey struct {
	selectionID int64
	side        schema.Side
	price       float64
}

func (m *SimMatcher) match(o *schema.Order, used map[levelKey]float64) {
	book := m.book
	if book == nil || book.Status != schema.MarketStatusOpen {
		return
	}
	r, ok := book.Runner(o.SelectionID)
	if !ok || !tradable(r) {
		return
	}

	var levels schema.Ladder
	if o.Side == schema.SideBack {
		levels = r.AvailableToBack.Highest(len(r.AvailableToBack))
	} else {
		levels = r.AvailableToLay.Lowest(len(r.AvailableToLay))
	}
	for _, lv := range levels {
		if o.Status.Terminal() {
			return
		}
		if o.Side == schema.SideBack && lv.Price < o.Price {
			return
		}
		if o.Side == schema.SideLay && lv.Price > o.Price {
			return
		}
		key := levelKey{selectionID: o.SelectionID, side: o.Side, price: lv.Price}
		size := min(o.SizeRemaining(), lv.Size-used[key])
		if size < minFill {
			continue
		}
		if _, err := m.state.ApplyFill(o.ID, lv.Price, size, book.PublishTime); err != nil {
			logs.Errorf("market %s order %s fill, err: %+v", o.MarketID, o.ID, err)
			return
		}
		used[key] += size
		m.metrics.Inc(obs.CounterOrdersFilled)
		m.emit(schema.OrderEvent{Type: schema.OrderEventFill, Order: *o, Price: lv.Price, Size: size})
		if o.Status == schema.OrderStatusExecutionComplete {
			m.emit(schema.OrderEvent{Type: schema.OrderEventComplete, Order: *o})
		}
	}
}

func (m *SimMatcher) reject(id string, note string) {
	o, err := m.state.ApplyReject(id, m.book.PublishTime, note)
	if err != nil {
		logs.Errorf("order %s reject, err: %+v", id, err)
		return
	}
	m.emit(schema.OrderEvent{Type: schema.OrderEventRejected, Order: *o})
}

func (m *SimMatcher) cancel(id string, note string) {
	var ts int64
	if m.book != nil {
		ts = m.book.PublishTime
	}
	o, err := m.state.ApplyCancel(id, ts)
	if err != nil {
		logs.Errorf("order %s cancel, err: %+v", id, err)
		return
	}
	if note != "" {
		o.MarketNote = strings.TrimSpace(o.MarketNote + " " + note)
	}
	if o.Status == schema.OrderStatusExecutionComplete {
		m.emit(schema.OrderEvent{Type: schema.OrderEventComplete, Order: *o})
		return
	}
	m.metrics.Inc(obs.CounterOrdersCancelled)
	m.emit(schema.OrderEvent{Type: schema.OrderEventCancelled, Order: *o})
}

func (m *SimMatcher) emit(ev schema.OrderEvent) {
	if m.listener != nil {
		m.listener.OnOrderEvent(ev)
	}
}

// settleProfit is the gross profit of a matched bet given the runner result.
// Removed runners and unmatched bets settle at zero.
func settleProfit(o schema.Order, book *schema.MarketBook) decimal.Decimal {
	if o.SizeMatched <= 0 {
		return decimal.Zero
	}
	r, ok := book.Runner(o.SelectionID)
	if !ok {
		return decimal.Zero
	}
	size := decimal.NewFromFloat(o.SizeMatched)
	odds := decimal.NewFromFloat(o.PriceMatched).Sub(decimal.NewFromInt(1))

	var profit decimal.Decimal
	switch r.Status {
	case schema.RunnerStatusWinner:
		profit = size.Mul(odds)
		if o.Side == schema.SideLay {
			profit = profit.Neg()
		}
	case schema.RunnerStatusLoser:
		profit = size.Neg()
		if o.Side == schema.SideLay {
			profit = size
		}
	default:
		return decimal.Zero
	}
	return profit.Round(2)
}
