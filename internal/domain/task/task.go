// Package task models the Task State Machine (C4): a gig posted by one user
// and optionally claimed by another, moving through a fixed set of states
// with trigger-enforced terminal immutability.
package task

import "time"

// State is one of the task lifecycle's fixed states.
type State string

const (
	Open           State = "OPEN"
	Accepted       State = "ACCEPTED"
	ProofSubmitted State = "PROOF_SUBMITTED"
	Completed      State = "COMPLETED"
	Disputed       State = "DISPUTED"
	Cancelled      State = "CANCELLED"
	Expired        State = "EXPIRED"
)

// Terminal reports whether s is a terminal state frozen by invariant HX001.
func (s State) Terminal() bool {
	switch s {
	case Completed, Cancelled, Expired:
		return true
	default:
		return false
	}
}

// Task is a single gig posted by a poster and optionally claimed by a
// hustler. price_cents is immutable once the escrow enters HELD.
type Task struct {
	ID         string
	PosterID   string
	HustlerID  string // empty until claimed
	Category   string
	PriceCents int64
	State      State
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StateLogEntry is one row of the append-only task_state_log.
type StateLogEntry struct {
	ID        int64
	TaskID    string
	FromState State
	ToState   State
	ActorID   string
	CreatedAt time.Time
}

// transitions enumerates the permitted (from, event) -> to edges of §4.4.
var transitions = map[State]map[string]State{
	Open: {
		"claim":  Accepted,
		"expire": Expired,
	},
	Accepted: {
		"proof_submit": ProofSubmitted,
		"dispute":      Disputed,
		"cancel":       Cancelled,
	},
	ProofSubmitted: {
		"accept":  Completed,
		"reject":  Accepted,
		"dispute": Disputed,
	},
	Disputed: {
		"resolve_complete": Completed,
		"resolve_cancel":   Cancelled,
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
