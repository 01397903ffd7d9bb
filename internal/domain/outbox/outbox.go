// Package outbox models the Transactional Outbox pattern (C7): rows written
// in the same transaction as a domain mutation, then claimed and delivered
// by the Worker Fleet (C8) independently of that transaction's lifetime.
package outbox

import (
	"encoding/json"
	"time"
)

// Status is the delivery lifecycle of one outbox row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInFlight  Status = "in_flight"
	StatusCompleted Status = "completed"
	StatusDead      Status = "dead"
)

// Queue names a single-poller worker queue (C8).
type Queue string

const (
	QueueXPAward         Queue = "xp_award"
	QueuePayoutDispatch  Queue = "payout_dispatch"
	QueueNotifications   Queue = "notifications"
	QueueTrustReevaluate Queue = "trust_reevaluate"
	QueueRealtimeFanout  Queue = "realtime_fanout"
)

// Event is one row of outbox_events. IdempotencyKey is UNIQUE so the same
// domain mutation can be retried without double-emitting a side effect.
type Event struct {
	ID             string
	EventType      string
	AggregateType  string
	AggregateID    string
	EventVersion   int
	IdempotencyKey string
	Payload        json.RawMessage
	QueueName      Queue
	Status         Status
	Attempts       int
	NextAttemptAt  time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether the event has left the claimable pool for good.
func (e Event) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusDead
}
