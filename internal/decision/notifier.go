package decision

import (
	"sync"

	"github.com/yanun0323/logs"

	"bookreplay/internal/matching"
)

// EventType is the kind of engine notification.
type EventType uint8

const (
	EventOrderPlaced EventType = iota + 1
	EventOrderRejected
	EventOrderFilled
	EventOrderComplete
	EventOrderCancelled
	EventMarketCleared
)

func (t EventType) String() string {
	switch t {
	case EventOrderPlaced:
		return "order_placed"
	case EventOrderRejected:
		return "order_rejected"
	case EventOrderFilled:
		return "order_filled"
	case EventOrderComplete:
		return "order_complete"
	case EventOrderCancelled:
		return "order_cancelled"
	case EventMarketCleared:
		return "market_cleared"
	default:
		return "unknown"
	}
}

// Event is a notification emitted by the engine.
type Event struct {
	Type        EventType
	MarketID    string
	Strategy    string
	SelectionID int64
	OrderID     string
	Message     string
	Summary     matching.Summary
	// Triggers is the trigger timeline of a cleared market.
	Triggers []float64
}

// Notifier receives engine events. Implementations must not block.
type Notifier interface {
	Notify(ev Event)
}

// NoopNotifier drops every event.
type NoopNotifier struct{}

func (NoopNotifier) Notify(Event) {}

// LogNotifier writes events to the log.
type LogNotifier struct{}

func (LogNotifier) Notify(ev Event) {
	if ev.Type == EventMarketCleared {
		logs.Infof("cleared market %s, bets: %d, profit: %.2f, commission: %.2f, triggers: %d",
			ev.MarketID, ev.Summary.Orders, ev.Summary.Profit, ev.Summary.Commission, len(ev.Triggers))
		return
	}
	if ev.Type == EventOrderRejected {
		logs.Warnf("market %s strategy %s selection %d order %s %s: %s",
			ev.MarketID, ev.Strategy, ev.SelectionID, ev.OrderID, ev.Type, ev.Message)
		return
	}
	logs.Infof("market %s strategy %s selection %d order %s %s",
		ev.MarketID, ev.Strategy, ev.SelectionID, ev.OrderID, ev.Type)
}

// RecordingNotifier keeps every event in memory.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *RecordingNotifier) Notify(ev Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (n *RecordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

// Count returns the number of recorded events of one type.
func (n *RecordingNotifier) Count(t EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == t {
			c++
		}
	}
	return c
}
