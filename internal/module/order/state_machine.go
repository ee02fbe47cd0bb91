package order

import "fmt"

// StateMachine validates order status transitions. The transition table is
// the single source of truth: pending orders can start processing or be
// cancelled, processing orders settle to paid/failed/cancelled, and only
// paid orders can be refunded. failed, cancelled and refunded are terminal.
type StateMachine struct {
	transitions map[Status][]Status
}

// NewStateMachine creates a new order state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		transitions: map[Status][]Status{
			StatusPending:    {StatusProcessing, StatusCancelled},
			StatusProcessing: {StatusPaid, StatusFailed, StatusCancelled},
			StatusPaid:       {StatusRefunded},
			StatusFailed:     {},
			StatusCancelled:  {},
			StatusRefunded:   {},
		},
	}
}

// CanTransition checks if a transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to Status) bool {
	allowed, ok := sm.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns an error if the transition is not allowed.
func (sm *StateMachine) Validate(from, to Status) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// AllowedTransitions returns all allowed target states from the given state.
func (sm *StateMachine) AllowedTransitions(from Status) []Status {
	allowed, ok := sm.transitions[from]
	if !ok {
		return []Status{}
	}
	result := make([]Status, len(allowed))
	copy(result, allowed)
	return result
}
