package decision

import (
	"github.com/yanun0323/errors"
)

var ErrInvalidTransition = errors.New("invalid runner state transition")

// State is the position lifecycle of one runner in one market.
type State uint8

const (
	StateIdle State = iota
	StatePending
	StateLive
	StateComplete
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateLive:
		return "live"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Open reports whether the runner holds a working order.
func (s State) Open() bool {
	return s == StatePending || s == StateLive
}

var transitions = map[State][]State{
	StateIdle:    {StatePending},
	StatePending: {StateIdle, StateLive, StateComplete, StateCancelled},
	StateLive:    {StateComplete},
}

// next validates a transition and returns the target state.
func (s State) next(to State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return to, nil
		}
	}
	return s, errors.Wrapf(ErrInvalidTransition, "%s -> %s", s, to)
}
