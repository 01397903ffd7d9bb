// Package task implements the Task State Machine service (C4): the
// precondition checks and state-log bookkeeping wrapped around the raw
// transition table in domain/task, run under the distributed task:<id> lock
// and a SERIALIZABLE transaction so concurrent actors on the same task
// always serialize through C2/C3 rather than racing in application code.
package task

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hustlexp/core/internal/domain/apperr"
	"github.com/hustlexp/core/internal/domain/outbox"
	domaintask "github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/platform/idgen"
	"github.com/hustlexp/core/internal/platform/lock"
	"github.com/hustlexp/core/internal/platform/txrunner"
	outboxsvc "github.com/hustlexp/core/internal/services/outbox"
	"github.com/hustlexp/core/internal/storage"
	"github.com/hustlexp/core/pkg/logger"
)

// lockTTL bounds how long a single task transition may hold the distributed
// lock before another actor's Acquire call times it out.
const lockTTL = 10 * time.Second

// Service implements the preconditioned transitions of the task lifecycle.
type Service struct {
	store  storage.TaskStore
	proofs storage.ProofStore
	outbox *outboxsvc.Producer
	locks  *lock.Service
	tx     *txrunner.Runner
	log    *logger.Logger
}

// New constructs a task Service.
func New(store storage.TaskStore, proofs storage.ProofStore, outboxStore storage.OutboxStore, locks *lock.Service, tx *txrunner.Runner, log *logger.Logger) *Service {
	return &Service{store: store, proofs: proofs, outbox: outboxsvc.New(outboxStore), locks: locks, tx: tx, log: log}
}

// Create posts a new OPEN task.
func (s *Service) Create(ctx context.Context, posterID, category string, priceCents int64) (domaintask.Task, error) {
	if priceCents <= 0 {
		return domaintask.Task{}, apperr.Validationf("TASK_PRICE_INVALID", "price_cents must be positive")
	}
	t := domaintask.Task{
		ID:         idgen.New(),
		PosterID:   posterID,
		Category:   category,
		PriceCents: priceCents,
		State:      domaintask.Open,
	}
	return s.store.CreateTask(ctx, t)
}

// sideEffect writes one additional outbox row alongside a task transition's
// commit; it receives the task state as it will be after the transition.
type sideEffect func(ctx context.Context, t domaintask.Task) error

// Claim transitions OPEN -> ACCEPTED on behalf of hustlerID.
func (s *Service) Claim(ctx context.Context, taskID, hustlerID string) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "claim", hustlerID, func(t *domaintask.Task) error {
		if t.PosterID == hustlerID {
			return apperr.New(apperr.Authz, "TASK_SELF_CLAIM", "poster cannot claim their own task")
		}
		t.HustlerID = hustlerID
		return nil
	}, func(ctx context.Context, t domaintask.Task) error {
		return s.emitNotification(ctx, t.PosterID, "task.claimed", t.ID)
	})
}

// SubmitProof transitions ACCEPTED -> PROOF_SUBMITTED. Only the current
// hustler may submit proof.
func (s *Service) SubmitProof(ctx context.Context, taskID, submitterID string) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "proof_submit", submitterID, func(t *domaintask.Task) error {
		if t.HustlerID != submitterID {
			return apperr.New(apperr.Authz, "TASK_NOT_HUSTLER", "only the assigned hustler may submit proof")
		}
		return nil
	}, func(ctx context.Context, t domaintask.Task) error {
		return s.emitNotification(ctx, t.PosterID, "task.proof_submitted", t.ID)
	})
}

// Accept transitions PROOF_SUBMITTED -> COMPLETED. Only the poster or an
// admin may accept; the ACCEPTED-proof precondition is also enforced by the
// HX301 trigger as a second line of defense. Reaching COMPLETED hands off
// escrow release to the Payout-Dispatch worker and queues a trust
// re-evaluation, rather than calling money.Service directly — a task
// transition never holds the task lock across a provider call.
func (s *Service) Accept(ctx context.Context, taskID, actorID string, isAdmin bool) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "accept", actorID, func(t *domaintask.Task) error {
		if !isAdmin && t.PosterID != actorID {
			return apperr.New(apperr.Authz, "TASK_NOT_POSTER", "only the poster or an admin may accept proof")
		}
		return nil
	}, s.emitPayoutDispatch, func(ctx context.Context, t domaintask.Task) error {
		return s.emitTrustReevaluate(ctx, t.HustlerID, 1, "task_completed")
	}, func(ctx context.Context, t domaintask.Task) error {
		return s.emitNotification(ctx, t.HustlerID, "task.completed", t.ID)
	})
}

// Reject transitions PROOF_SUBMITTED -> ACCEPTED, sending the hustler back
// to work.
func (s *Service) Reject(ctx context.Context, taskID, actorID string, isAdmin bool) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "reject", actorID, func(t *domaintask.Task) error {
		if !isAdmin && t.PosterID != actorID {
			return apperr.New(apperr.Authz, "TASK_NOT_POSTER", "only the poster or an admin may reject proof")
		}
		return nil
	}, func(ctx context.Context, t domaintask.Task) error {
		return s.emitNotification(ctx, t.HustlerID, "task.proof_rejected", t.ID)
	})
}

// Dispute may be opened from ACCEPTED or PROOF_SUBMITTED by either party.
func (s *Service) Dispute(ctx context.Context, taskID, actorID string) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "dispute", actorID, func(t *domaintask.Task) error {
		if actorID != t.PosterID && actorID != t.HustlerID {
			return apperr.New(apperr.Authz, "TASK_NOT_PARTY", "only a party to the task may open a dispute")
		}
		return nil
	}, func(ctx context.Context, t domaintask.Task) error {
		other := t.PosterID
		if actorID == t.PosterID {
			other = t.HustlerID
		}
		return s.emitNotification(ctx, other, "task.disputed", t.ID)
	})
}

// Cancel transitions ACCEPTED -> CANCELLED; only the poster may cancel.
func (s *Service) Cancel(ctx context.Context, taskID, actorID string) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "cancel", actorID, func(t *domaintask.Task) error {
		if t.PosterID != actorID {
			return apperr.New(apperr.Authz, "TASK_NOT_POSTER", "only the poster may cancel")
		}
		return nil
	}, func(ctx context.Context, t domaintask.Task) error {
		return s.emitNotification(ctx, t.HustlerID, "task.cancelled", t.ID)
	})
}

// ResolveComplete and ResolveCancel settle a DISPUTED task; both are
// admin-only actions performed outside the ordinary poster/hustler flow.
func (s *Service) ResolveComplete(ctx context.Context, taskID, adminID string) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "resolve_complete", adminID, func(t *domaintask.Task) error { return nil },
		s.emitPayoutDispatch, func(ctx context.Context, t domaintask.Task) error {
			return s.emitTrustReevaluate(ctx, t.HustlerID, 1, "dispute_resolved_complete")
		})
}

func (s *Service) ResolveCancel(ctx context.Context, taskID, adminID string) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "resolve_cancel", adminID, func(t *domaintask.Task) error { return nil },
		func(ctx context.Context, t domaintask.Task) error {
			return s.emitTrustReevaluate(ctx, t.HustlerID, -3, "dispute_resolved_against_hustler")
		})
}

// Expire transitions OPEN -> EXPIRED; called only by the Proof-Expiry /
// task-expiry poller, never directly by a user-facing handler.
func (s *Service) Expire(ctx context.Context, taskID string) (domaintask.Task, error) {
	return s.transition(ctx, taskID, "expire", "", func(t *domaintask.Task) error { return nil })
}

// transition is the shared lock-acquire, read-check-write, state-log-append
// sequence behind every event above. Every transition, regardless of event,
// emits a realtime-fanout row; effects lists any additional outbox rows the
// specific event needs (payout dispatch, trust re-evaluation, notification).
func (s *Service) transition(ctx context.Context, taskID, event, actorID string, precondition func(*domaintask.Task) error, effects ...sideEffect) (domaintask.Task, error) {
	lease, err := s.locks.Acquire(ctx, lock.TaskKey(taskID), lockTTL, 25*time.Millisecond)
	if err != nil {
		return domaintask.Task{}, apperr.Wrap(apperr.Retryable, "TASK_LOCK_FAILED", "could not acquire task lock", err)
	}
	defer func() {
		if relErr := s.locks.Release(ctx, lease); relErr != nil {
			s.log.WithError(relErr).Warn("failed to release task lock")
		}
	}()

	var result domaintask.Task
	err = s.tx.SerializableTx(ctx, func(ctx context.Context, _ *sql.Tx) error {
		t, err := s.store.GetTask(ctx, taskID)
		if err != nil {
			return apperr.NotFoundf("TASK_NOT_FOUND", "task %s not found", taskID)
		}

		to, ok := domaintask.CanTransition(t.State, event)
		if !ok {
			return apperr.New(apperr.ConflictState, "TASK_TRANSITION_INVALID",
				fmt.Sprintf("task %s cannot %s from state %s", taskID, event, t.State))
		}

		if precondition != nil {
			if err := precondition(&t); err != nil {
				return err
			}
		}

		from := t.State
		t.State = to
		updated, err := s.store.UpdateTask(ctx, t)
		if err != nil {
			return err
		}
		if err := s.store.AppendStateLog(ctx, domaintask.StateLogEntry{
			TaskID:    taskID,
			FromState: from,
			ToState:   to,
			ActorID:   actorID,
		}); err != nil {
			return err
		}

		if err := s.emitProgress(ctx, updated, from, to); err != nil {
			return err
		}
		for _, effect := range effects {
			if err := effect(ctx, updated); err != nil {
				return err
			}
		}

		result = updated
		return nil
	})
	if err != nil {
		return domaintask.Task{}, err
	}
	return result, nil
}

// emitProgress writes the Realtime-Fanout row every transition produces.
func (s *Service) emitProgress(ctx context.Context, t domaintask.Task, from, to domaintask.State) error {
	_, err := s.outbox.Publish(ctx, "task.progress_updated", "task", t.ID,
		fmt.Sprintf("task.progress_updated:%s:%s", t.ID, to), outbox.QueueRealtimeFanout,
		struct {
			TaskID    string `json:"task_id"`
			FromState string `json:"from_state"`
			ToState   string `json:"to_state"`
		}{t.ID, string(from), string(to)})
	return err
}

// emitPayoutDispatch hands a newly COMPLETED task to the Payout-Dispatch
// worker, which calls money.Service.Release under its own money:<id> lock
// rather than this transition holding the task lock across a provider call.
func (s *Service) emitPayoutDispatch(ctx context.Context, t domaintask.Task) error {
	_, err := s.outbox.Publish(ctx, "task.completed", "task", t.ID,
		"task.completed:"+t.ID, outbox.QueuePayoutDispatch,
		struct {
			TaskID string `json:"task_id"`
		}{t.ID})
	return err
}

// emitTrustReevaluate asks the Trust-Re-evaluate worker to apply delta to
// userID's trust ledger.
func (s *Service) emitTrustReevaluate(ctx context.Context, userID string, delta int, reason string) error {
	if userID == "" {
		return nil
	}
	_, err := s.outbox.Publish(ctx, "trust.reevaluate", "user", userID,
		fmt.Sprintf("trust.reevaluate:%s:%s", userID, reason), outbox.QueueTrustReevaluate,
		struct {
			UserID string `json:"user_id"`
			Delta  int    `json:"delta"`
			Reason string `json:"reason"`
		}{userID, delta, reason})
	return err
}

// emitNotification asks the Notifications worker to push eventType to
// recipientID, deduplicated downstream by (recipient, event_id).
func (s *Service) emitNotification(ctx context.Context, recipientID, eventType, taskID string) error {
	if recipientID == "" {
		return nil
	}
	_, err := s.outbox.Publish(ctx, eventType, "task", taskID,
		fmt.Sprintf("%s:%s:%s", eventType, taskID, recipientID), outbox.QueueNotifications,
		struct {
			RecipientID string `json:"recipient_id"`
			TaskID      string `json:"task_id"`
		}{recipientID, taskID})
	return err
}
