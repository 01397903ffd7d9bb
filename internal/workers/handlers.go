package workers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hustlexp/core/internal/domain/outbox"
	"github.com/hustlexp/core/internal/platform/realtime"
	"github.com/hustlexp/core/internal/provider"
	"github.com/hustlexp/core/internal/storage"
	"github.com/hustlexp/core/pkg/logger"
)

// taskIDPayload decodes task_id from the Payout-Dispatch (task.completed)
// and XP-Award (escrow.released) payloads; any other fields are ignored.
type taskIDPayload struct {
	TaskID string `json:"task_id"`
}

// trustReevaluatePayload is trust.reevaluate's payload shape, written by
// task.Service.emitTrustReevaluate.
type trustReevaluatePayload struct {
	UserID string `json:"user_id"`
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// notificationPayload is every task.* notification event's payload shape,
// written by task.Service.emitNotification.
type notificationPayload struct {
	RecipientID string `json:"recipient_id"`
	TaskID      string `json:"task_id"`
}

// progressPayload is task.progress_updated's payload shape, written by
// task.Service.emitProgress.
type progressPayload struct {
	TaskID    string `json:"task_id"`
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
}

// XPAwardHandler consumes escrow.released events and awards XP to the
// completing hustler. The ledger service itself is idempotent on
// money_state_lock_task_id, so a redelivered event is always safe.
func XPAwardHandler(award func(ctx context.Context, taskID string) error) Handler {
	return func(ctx context.Context, e outbox.Event) error {
		var p taskIDPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		return award(ctx, p.TaskID)
	}
}

// PayoutDispatchHandler consumes task.completed events and releases the
// task's escrow under money.Service's own money:<id> lock, independent of
// whatever task-lock-held transaction originally queued the event.
func PayoutDispatchHandler(release func(ctx context.Context, taskID string) error) Handler {
	return func(ctx context.Context, e outbox.Event) error {
		var p taskIDPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		return release(ctx, p.TaskID)
	}
}

// TrustReevaluateHandler consumes trust.reevaluate events and applies the
// signed delta to the named user's trust tier.
func TrustReevaluateHandler(adjust func(ctx context.Context, userID string, delta int, reason string) error) Handler {
	return func(ctx context.Context, e outbox.Event) error {
		var p trustReevaluatePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		return adjust(ctx, p.UserID, p.Delta, p.Reason)
	}
}

// NotificationsHandler consumes every task.* notification event and pushes
// it through the push gateway, deduplicated by (recipient, event id) as the
// gateway's own contract requires.
func NotificationsHandler(push provider.PushGateway) Handler {
	return func(ctx context.Context, e outbox.Event) error {
		var p notificationPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		if p.RecipientID == "" {
			return nil
		}
		return push.Send(ctx, p.RecipientID, e.ID, e.EventType, e.Payload)
	}
}

// RealtimeFanoutHandler consumes task.progress_updated events, loads the
// task, and publishes the event through the registry to the live sessions
// of the task's parties only (its poster and, once assigned, its hustler).
func RealtimeFanoutHandler(tasks storage.TaskStore, registry *realtime.Registry) Handler {
	return func(ctx context.Context, e outbox.Event) error {
		var p progressPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		t, err := tasks.GetTask(ctx, p.TaskID)
		if err != nil {
			return err
		}
		ev := realtime.Event{Type: e.EventType, TaskID: p.TaskID, Payload: e.Payload}
		for _, party := range []string{t.PosterID, t.HustlerID} {
			if party != "" {
				registry.Publish(party, ev)
			}
		}
		return nil
	}
}

// CronHandler is one scheduled sweep, driven by robfig/cron/v3 rather than
// the outbox — Proof-Expiry is the required C8 worker of this shape (spec
// §4.8: "runs on a cron schedule rather than outbox-driven, since it is a
// periodic sweep, not an event reaction").
type CronHandler func(ctx context.Context) error

// ProofExpiryHandler lists every submitted proof whose review deadline has
// passed and expires its task, one at a time so a single failure never
// blocks the rest of the sweep.
func ProofExpiryHandler(proofs storage.ProofStore, expireTask func(ctx context.Context, taskID string) error, batch int, log *logger.Logger) CronHandler {
	return func(ctx context.Context) error {
		due, err := proofs.ListExpiredSubmittedProofs(ctx, time.Now().UTC(), batch)
		if err != nil {
			return err
		}
		for _, p := range due {
			if err := expireTask(ctx, p.TaskID); err != nil {
				log.WithError(err).WithField("task_id", p.TaskID).Warn("proof expiry: failed to expire task")
			}
		}
		return nil
	}
}
