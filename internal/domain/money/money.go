// Package money models the Money/Escrow State Machine (C5): the per-task
// escrow lock that cooperates with, but never directly mutates, task state.
// All amounts are integer cents; this package never uses floating point.
package money

import "time"

// State is one of the escrow lock's fixed states.
type State string

const (
	StateOpen          State = "OPEN"
	StateHeld          State = "HELD"
	StateReleased      State = "RELEASED"
	StateRefunded      State = "REFUNDED"
	StateRefundPartial State = "REFUND_PARTIAL"
	StateLockedDispute State = "LOCKED_DISPUTE"
)

// Terminal reports whether s is a terminal state frozen by invariant HX002.
func (s State) Terminal() bool {
	switch s {
	case StateReleased, StateRefunded, StateRefundPartial:
		return true
	default:
		return false
	}
}

// Lock is the one-row-per-task escrow lock (money_state_locks), guarded by
// the INV-5 unique constraint on task_id and the HX002/HX004/HX201 triggers.
type Lock struct {
	TaskID          string
	State           State
	AmountCents     int64 // zero until first HELD; immutable thereafter (HX004)
	PaymentIntentID string
	ChargeID        string
	TransferID      string
	RefundID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// transitions enumerates the permitted (from, event) -> to edges of §4.5.
var transitions = map[State]map[string]State{
	StateOpen: {
		"hold": StateHeld,
	},
	StateHeld: {
		"release":        StateReleased,
		"refund":         StateRefunded,
		"refund_partial": StateRefundPartial,
		"dispute_lock":   StateLockedDispute,
	},
	StateLockedDispute: {
		"resolve_release": StateReleased,
		"resolve_refund":  StateRefunded,
	},
}

// CanTransition reports whether event is permitted from the current state,
// returning the resulting state if so.
func CanTransition(from State, event string) (State, bool) {
	edges, ok := transitions[from]
	if !ok {
		return "", false
	}
	to, ok := edges[event]
	return to, ok
}

// Event is one row of the append-only money_events_audit ledger.
type Event struct {
	ID             string
	TaskID         string
	EventType      string
	IdempotencyKey string
	ProviderRef    string
	Status         string
	CreatedAt      time.Time
}
