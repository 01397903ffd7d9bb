// Package money implements the Money State Machine service (C5): escrow
// funding, release and refund against the payment provider, guarded by the
// money:<task_id> distributed lock, a shared idempotency key per logical
// operation, and a SERIALIZABLE local commit that only happens after the
// provider call returns a definitive result.
package money

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/hustlexp/core/internal/domain/apperr"
	domainmoney "github.com/hustlexp/core/internal/domain/money"
	"github.com/hustlexp/core/internal/domain/outbox"
	domaintask "github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/platform/idgen"
	"github.com/hustlexp/core/internal/platform/lock"
	"github.com/hustlexp/core/internal/platform/resilience"
	"github.com/hustlexp/core/internal/platform/txrunner"
	"github.com/hustlexp/core/internal/provider"
	outboxsvc "github.com/hustlexp/core/internal/services/outbox"
	"github.com/hustlexp/core/internal/storage"
	"github.com/hustlexp/core/pkg/logger"
)

const lockTTL = 15 * time.Second

// providerRateLimit and providerRateBurst throttle outbound calls to the
// payment provider independently of the circuit breaker: the breaker trips
// on failures, this bounds steady-state call volume regardless of whether
// calls are succeeding, so a release/refund burst (e.g. a reaper
// reconciliation sweep) never exceeds the provider's own rate limits.
const (
	providerRateLimit = 20
	providerRateBurst = 5
)

// Service implements escrow funding/release/refund.
type Service struct {
	money   storage.MoneyStore
	tasks   storage.TaskStore
	outbox  *outboxsvc.Producer
	audit   storage.AdminAuditStore
	locks   *lock.Service
	tx      *txrunner.Runner
	pay     provider.PaymentProvider
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
	log     *logger.Logger
}

// New constructs a money Service.
func New(money storage.MoneyStore, tasks storage.TaskStore, outboxStore storage.OutboxStore, audit storage.AdminAuditStore, locks *lock.Service, tx *txrunner.Runner, pay provider.PaymentProvider, log *logger.Logger) *Service {
	return &Service{
		money:  money,
		tasks:  tasks,
		outbox: outboxsvc.New(outboxStore),
		audit:  audit,
		locks:  locks,
		tx:     tx,
		pay:    pay,
		breaker: resilience.New(resilience.Config{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		limiter: rate.NewLimiter(providerRateLimit, providerRateBurst),
		log:     log,
	}
}

// idempotencyKey builds the stable `<event_type>:<task_id>:<version>` key
// shared by the provider call and its money-events-audit row.
func idempotencyKey(eventType, taskID string, version int) string {
	return fmt.Sprintf("%s:%s:%d", eventType, taskID, version)
}

// Open creates the initial OPEN escrow lock for a newly posted task.
func (s *Service) Open(ctx context.Context, taskID string) (domainmoney.Lock, error) {
	return s.money.CreateLock(ctx, domainmoney.Lock{TaskID: taskID, State: domainmoney.StateOpen})
}

// Fund transitions OPEN -> HELD by capturing a payment intent for
// amountCents, the "fund" edge of the Money State Machine.
func (s *Service) Fund(ctx context.Context, taskID string, amountCents int64) (domainmoney.Lock, error) {
	if amountCents <= 0 {
		return domainmoney.Lock{}, apperr.Validationf("MONEY_AMOUNT_INVALID", "amount_cents must be positive")
	}
	key := idempotencyKey("fund", taskID, 1)

	return s.withProviderCall(ctx, taskID, "fund", key, func(ctx context.Context) (providerOutcome, error) {
		result, err := s.pay.CreateAndCaptureIntent(ctx, key, amountCents)
		if err != nil {
			return providerOutcome{}, err
		}
		return providerOutcome{
			amountCents:     amountCents,
			paymentIntentID: result.PaymentIntentID,
			chargeID:        result.ChargeID,
		}, nil
	}, func(l *domainmoney.Lock, oc providerOutcome) (domainmoney.State, error) {
		to, ok := domainmoney.CanTransition(l.State, "hold")
		if !ok {
			return "", apperr.New(apperr.ConflictState, "MONEY_TRANSITION_INVALID", "escrow for task "+taskID+" cannot be funded from state "+string(l.State))
		}
		l.AmountCents = oc.amountCents
		l.PaymentIntentID = oc.paymentIntentID
		l.ChargeID = oc.chargeID
		return to, nil
	})
}

// Release transitions HELD -> RELEASED, transferring funds to the hustler.
// The same transaction that commits RELEASED also emits an escrow.released
// outbox row; C5 never writes the XP ledger itself.
func (s *Service) Release(ctx context.Context, taskID string) (domainmoney.Lock, error) {
	key := idempotencyKey("release", taskID, 1)

	return s.withProviderCall(ctx, taskID, "release", key, func(ctx context.Context) (providerOutcome, error) {
		existing, err := s.money.GetLock(ctx, taskID)
		if err != nil {
			return providerOutcome{}, err
		}
		t, err := s.tasks.GetTask(ctx, taskID)
		if err != nil {
			return providerOutcome{}, err
		}
		if t.State != domaintask.Completed {
			return providerOutcome{}, apperr.New(apperr.ConflictState, "MONEY_RELEASE_REQUIRES_COMPLETED", "task "+taskID+" must be COMPLETED before escrow release")
		}
		result, err := s.pay.Transfer(ctx, key, existing.ChargeID, existing.AmountCents)
		if err != nil {
			return providerOutcome{}, err
		}
		return providerOutcome{transferID: result.TransferID}, nil
	}, func(l *domainmoney.Lock, oc providerOutcome) (domainmoney.State, error) {
		event := "release"
		if l.State == domainmoney.StateLockedDispute {
			event = "resolve_release"
		}
		to, ok := domainmoney.CanTransition(l.State, event)
		if !ok {
			return "", apperr.New(apperr.ConflictState, "MONEY_TRANSITION_INVALID", "escrow for task "+taskID+" cannot release from state "+string(l.State))
		}
		l.TransferID = oc.transferID
		return to, nil
	}, s.emitReleasedEvent(taskID))
}

// Refund transitions HELD -> REFUNDED (amountCents == lock amount) or
// REFUND_PARTIAL (amountCents < lock amount).
func (s *Service) Refund(ctx context.Context, taskID string, amountCents int64) (domainmoney.Lock, error) {
	if amountCents <= 0 {
		return domainmoney.Lock{}, apperr.Validationf("MONEY_AMOUNT_INVALID", "amount_cents must be positive")
	}
	key := idempotencyKey("refund", taskID, 1)

	return s.withProviderCall(ctx, taskID, "refund", key, func(ctx context.Context) (providerOutcome, error) {
		existing, err := s.money.GetLock(ctx, taskID)
		if err != nil {
			return providerOutcome{}, err
		}
		if amountCents > existing.AmountCents {
			return providerOutcome{}, apperr.Validationf("MONEY_REFUND_EXCEEDS_HELD", "refund amount exceeds held amount for task %s", taskID)
		}
		result, err := s.pay.Refund(ctx, key, existing.ChargeID, amountCents)
		if err != nil {
			return providerOutcome{}, err
		}
		return providerOutcome{refundID: result.RefundID, amountCents: amountCents, fullRefund: amountCents == existing.AmountCents}, nil
	}, func(l *domainmoney.Lock, oc providerOutcome) (domainmoney.State, error) {
		event := "refund"
		switch {
		case l.State == domainmoney.StateLockedDispute && oc.fullRefund:
			event = "resolve_refund"
		case !oc.fullRefund:
			event = "refund_partial"
		}
		to, ok := domainmoney.CanTransition(l.State, event)
		if !ok {
			return "", apperr.New(apperr.ConflictState, "MONEY_TRANSITION_INVALID", "escrow for task "+taskID+" cannot refund from state "+string(l.State))
		}
		l.RefundID = oc.refundID
		return to, nil
	})
}

// DisputeLock transitions HELD -> LOCKED_DISPUTE.
func (s *Service) DisputeLock(ctx context.Context, taskID string) (domainmoney.Lock, error) {
	return s.localTransition(ctx, taskID, "dispute_lock")
}

// ResolveRelease transitions LOCKED_DISPUTE -> RELEASED via the provider
// transfer call, the same as an ordinary Release.
func (s *Service) ResolveRelease(ctx context.Context, taskID string) (domainmoney.Lock, error) {
	return s.Release(ctx, taskID)
}

// ResolveRefund transitions LOCKED_DISPUTE -> REFUNDED via the provider
// refund call for the full held amount.
func (s *Service) ResolveRefund(ctx context.Context, taskID string) (domainmoney.Lock, error) {
	existing, err := s.money.GetLock(ctx, taskID)
	if err != nil {
		return domainmoney.Lock{}, err
	}
	return s.Refund(ctx, taskID, existing.AmountCents)
}

// ForceRelease is the admin-override path out of LOCKED_DISPUTE straight to
// RELEASED, bypassing the ordinary dispute-resolution workflow. It still
// performs the real provider transfer under the ordering contract (§4.5) —
// "admin override" means overriding the dispute-resolution business
// process, never the money-safety invariant that a provider call precedes
// the local commit. Every call is audited regardless of outcome.
func (s *Service) ForceRelease(ctx context.Context, taskID, actorID, reason string) (domainmoney.Lock, error) {
	existing, err := s.money.GetLock(ctx, taskID)
	if err != nil {
		if auditErr := s.audit.AppendAdminAction(ctx, actorID, "money_state_lock", taskID, "force_release.rejected", nil, reason); auditErr != nil {
			s.log.WithError(auditErr).Warn("failed to audit rejected force-release attempt")
		}
		return domainmoney.Lock{}, apperr.NotFoundf("MONEY_LOCK_NOT_FOUND", "escrow for task %s not found", taskID)
	}
	if existing.State != domainmoney.StateLockedDispute {
		if auditErr := s.audit.AppendAdminAction(ctx, actorID, "money_state_lock", taskID, "force_release.rejected", nil, reason); auditErr != nil {
			s.log.WithError(auditErr).Warn("failed to audit rejected force-release attempt")
		}
		return domainmoney.Lock{}, apperr.New(apperr.ConflictState, "MONEY_FORCE_RELEASE_REQUIRES_DISPUTE", "escrow for task "+taskID+" must be LOCKED_DISPUTE for a force release")
	}

	key := idempotencyKey("force_release", taskID, 1)
	result, err := s.withProviderCall(ctx, taskID, "force_release", key, func(ctx context.Context) (providerOutcome, error) {
		r, err := s.pay.Transfer(ctx, key, existing.ChargeID, existing.AmountCents)
		if err != nil {
			return providerOutcome{}, err
		}
		return providerOutcome{transferID: r.TransferID}, nil
	}, func(l *domainmoney.Lock, oc providerOutcome) (domainmoney.State, error) {
		to, ok := domainmoney.CanTransition(l.State, "resolve_release")
		if !ok {
			return "", apperr.New(apperr.ConflictState, "MONEY_TRANSITION_INVALID", "escrow for task "+taskID+" cannot force-release from state "+string(l.State))
		}
		l.TransferID = oc.transferID
		return to, nil
	}, s.emitReleasedEvent(taskID))
	if err != nil {
		if auditErr := s.audit.AppendAdminAction(ctx, actorID, "money_state_lock", taskID, "force_release.failed", nil, reason); auditErr != nil {
			s.log.WithError(auditErr).Warn("failed to audit failed force-release attempt")
		}
		return domainmoney.Lock{}, err
	}
	if auditErr := s.audit.AppendAdminAction(ctx, actorID, "money_state_lock", taskID, "force_release.applied", nil, reason); auditErr != nil {
		s.log.WithError(auditErr).Warn("failed to audit applied force-release")
	}
	return result, nil
}

// webhookEventTypes maps a provider webhook's event type to the Money State
// Machine operation it confirms. A webhook never drives a state change that
// the synchronous Fund/Release/Refund call didn't already attempt; it only
// re-asserts the same idempotent command so a dropped synchronous response
// still reaches its local commit.
var webhookEventTypes = map[string]func(s *Service, ctx context.Context, ev provider.WebhookEvent) error{
	"charge.captured": func(s *Service, ctx context.Context, ev provider.WebhookEvent) error {
		existing, err := s.money.GetLock(ctx, ev.TaskID)
		if err != nil {
			return err
		}
		_, err = s.Fund(ctx, ev.TaskID, existing.AmountCents)
		return err
	},
	"transfer.paid": func(s *Service, ctx context.Context, ev provider.WebhookEvent) error {
		_, err := s.Release(ctx, ev.TaskID)
		return err
	},
	"refund.succeeded": func(s *Service, ctx context.Context, ev provider.WebhookEvent) error {
		existing, err := s.money.GetLock(ctx, ev.TaskID)
		if err != nil {
			return err
		}
		_, err = s.Refund(ctx, ev.TaskID, existing.AmountCents)
		return err
	},
}

// ApplyWebhook dedupes a verified provider webhook by its provider-assigned
// event id and, on first delivery, replays the idempotent command it
// confirms against the Money State Machine. Every Fund/Release/Refund call
// is itself idempotent on its own key, so a re-delivered webhook (or one
// racing an already-succeeded synchronous call) is always safe to replay.
func (s *Service) ApplyWebhook(ctx context.Context, ev provider.WebhookEvent) error {
	dedupeKey := "webhook:" + ev.ID
	if existing, err := s.money.GetEventByIdempotencyKey(ctx, dedupeKey); err == nil && existing.Status == "succeeded" {
		return nil
	}

	handler, ok := webhookEventTypes[ev.Type]
	if !ok {
		return apperr.Validationf("MONEY_WEBHOOK_UNKNOWN_TYPE", "unrecognized webhook event type %s", ev.Type)
	}
	if err := handler(s, ctx, ev); err != nil {
		return err
	}

	if _, err := s.money.AppendEvent(ctx, domainmoney.Event{
		ID: idgen.New(), TaskID: ev.TaskID, EventType: "webhook:" + ev.Type, IdempotencyKey: dedupeKey, Status: "succeeded",
	}); err != nil {
		s.log.WithError(err).Warn("failed to record webhook dedup audit event")
	}
	return nil
}

// providerOutcome carries whatever a provider call produced into the
// follow-up local commit closure.
type providerOutcome struct {
	amountCents     int64
	paymentIntentID string
	chargeID        string
	transferID      string
	refundID        string
	fullRefund      bool
}

// withProviderCall implements the single-writer rule: acquire the money
// lock, run the provider call under the circuit breaker, and only then
// commit the local transition in a SERIALIZABLE transaction using the same
// idempotency key. postCommit hooks (outbox emission) run inside that
// transaction.
func (s *Service) withProviderCall(
	ctx context.Context,
	taskID, eventType, key string,
	callProvider func(ctx context.Context) (providerOutcome, error),
	applyTransition func(l *domainmoney.Lock, oc providerOutcome) (domainmoney.State, error),
	postCommit ...func(ctx context.Context, l domainmoney.Lock) error,
) (domainmoney.Lock, error) {
	if existing, err := s.money.GetEventByIdempotencyKey(ctx, key); err == nil && existing.Status == "succeeded" {
		return s.money.GetLock(ctx, taskID)
	}

	lease, err := s.locks.Acquire(ctx, lock.MoneyKey(taskID), lockTTL, 25*time.Millisecond)
	if err != nil {
		return domainmoney.Lock{}, apperr.Wrap(apperr.Retryable, "MONEY_LOCK_FAILED", "could not acquire money lock", err)
	}
	defer func() {
		if relErr := s.locks.Release(ctx, lease); relErr != nil {
			s.log.WithError(relErr).Warn("failed to release money lock")
		}
	}()

	if _, err := s.money.AppendEvent(ctx, domainmoney.Event{
		ID:             idgen.New(),
		TaskID:         taskID,
		EventType:      eventType,
		IdempotencyKey: key,
		Status:         "pending",
	}); err != nil {
		return domainmoney.Lock{}, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return domainmoney.Lock{}, apperr.RetryableWrap(err)
	}

	var outcome providerOutcome
	breakerErr := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		outcome, callErr = callProvider(ctx)
		return callErr
	})
	if breakerErr != nil {
		if _, markErr := s.money.AppendEvent(ctx, domainmoney.Event{
			ID: idgen.New(), TaskID: taskID, EventType: eventType, IdempotencyKey: key, Status: "failed",
		}); markErr != nil {
			s.log.WithError(markErr).Warn("failed to record provider failure audit event")
		}
		if breakerErr == resilience.ErrOpen {
			return domainmoney.Lock{}, apperr.Wrap(apperr.Retryable, "MONEY_PROVIDER_CIRCUIT_OPEN", "payment provider circuit is open", breakerErr)
		}
		return domainmoney.Lock{}, apperr.RetryableWrap(breakerErr)
	}

	var result domainmoney.Lock
	err = s.tx.SerializableTx(ctx, func(ctx context.Context, _ *sql.Tx) error {
		l, err := s.money.GetLock(ctx, taskID)
		if err != nil {
			return apperr.NotFoundf("MONEY_LOCK_NOT_FOUND", "escrow for task %s not found", taskID)
		}

		to, err := applyTransition(&l, outcome)
		if err != nil {
			return err
		}
		l.State = to

		updated, err := s.money.UpdateLock(ctx, l)
		if err != nil {
			return err
		}

		for _, hook := range postCommit {
			if err := hook(ctx, updated); err != nil {
				return err
			}
		}

		result = updated
		return nil
	})
	if err != nil {
		return domainmoney.Lock{}, err
	}

	if _, err := s.money.AppendEvent(ctx, domainmoney.Event{
		ID: idgen.New(), TaskID: taskID, EventType: eventType, IdempotencyKey: key, Status: "succeeded",
	}); err != nil {
		s.log.WithError(err).Warn("failed to record provider success audit event")
	}

	return result, nil
}

// localTransition runs a transition with no provider call (e.g. entering
// LOCKED_DISPUTE), still under the money lock and a SERIALIZABLE commit.
func (s *Service) localTransition(ctx context.Context, taskID, event string) (domainmoney.Lock, error) {
	lease, err := s.locks.Acquire(ctx, lock.MoneyKey(taskID), lockTTL, 25*time.Millisecond)
	if err != nil {
		return domainmoney.Lock{}, apperr.Wrap(apperr.Retryable, "MONEY_LOCK_FAILED", "could not acquire money lock", err)
	}
	defer func() {
		if relErr := s.locks.Release(ctx, lease); relErr != nil {
			s.log.WithError(relErr).Warn("failed to release money lock")
		}
	}()

	var result domainmoney.Lock
	err = s.tx.SerializableTx(ctx, func(ctx context.Context, _ *sql.Tx) error {
		l, err := s.money.GetLock(ctx, taskID)
		if err != nil {
			return apperr.NotFoundf("MONEY_LOCK_NOT_FOUND", "escrow for task %s not found", taskID)
		}
		to, ok := domainmoney.CanTransition(l.State, event)
		if !ok {
			return apperr.New(apperr.ConflictState, "MONEY_TRANSITION_INVALID", "escrow for task "+taskID+" cannot "+event+" from state "+string(l.State))
		}
		l.State = to
		updated, err := s.money.UpdateLock(ctx, l)
		if err != nil {
			return err
		}
		result = updated
		return nil
	})
	if err != nil {
		return domainmoney.Lock{}, err
	}
	return result, nil
}

// emitReleasedEvent returns the postCommit hook that writes the
// escrow.released outbox row in the same transaction as the RELEASED commit.
func (s *Service) emitReleasedEvent(taskID string) func(ctx context.Context, l domainmoney.Lock) error {
	return func(ctx context.Context, l domainmoney.Lock) error {
		_, err := s.outbox.Publish(ctx, "escrow.released", "task", taskID,
			"escrow.released:"+taskID, outbox.QueueXPAward,
			struct {
				TaskID      string `json:"task_id"`
				AmountCents int64  `json:"amount_cents"`
			}{taskID, l.AmountCents})
		return err
	}
}
