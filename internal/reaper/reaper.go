// Package reaper implements Recovery & Reaper (C9): a cron-scheduled sweep
// with four responsibilities run back-to-back on one schedule — reconciling
// money-state events stuck after a provider-call timeout, triaging the
// outbox dead-letter queue, checking the local money ledger against the
// payment provider's own record, and computing the predicate an operator's
// "resume from pause" action must satisfy.
package reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	domainmoney "github.com/hustlexp/core/internal/domain/money"
	"github.com/hustlexp/core/internal/domain/outbox"
	"github.com/hustlexp/core/internal/provider"
	outboxsvc "github.com/hustlexp/core/internal/services/outbox"
	"github.com/hustlexp/core/internal/storage"
	"github.com/hustlexp/core/pkg/logger"
)

// defaultSpec runs the sweep every five minutes when WithSchedule is never
// called.
const defaultSpec = "*/5 * * * *"

// killSwitchFlagKey is the SystemFlagStore key an operator sets to halt all
// money-moving operations; CanUnpause refuses to report healthy while it is
// set to "true".
const killSwitchFlagKey = "kill_switch"

// batchSize bounds how much work one sweep does per responsibility, so a
// large backlog never turns one tick into an unbounded scan.
const batchSize = 50

// eventWindow is how far back pending-money reconciliation and the parity
// check look; dead-letter listing is not windowed.
const eventWindow = 7 * 24 * time.Hour

// MoneyReconciler is the narrow slice of money.Service the pending-money
// reaper drives: retrying the same idempotent operation is always safe,
// since the provider itself dedupes by idempotency key.
type MoneyReconciler interface {
	Fund(ctx context.Context, taskID string, amountCents int64) (domainmoney.Lock, error)
	Release(ctx context.Context, taskID string) (domainmoney.Lock, error)
	Refund(ctx context.Context, taskID string, amountCents int64) (domainmoney.Lock, error)
}

// Incident is one structured dead-letter record the DLQ processor surfaces
// for an operator to triage; Reaper never replays a dead event on its own —
// replay is always an explicit, supervised call to Replay.
type Incident struct {
	Queue     outbox.Queue
	EventID   string
	EventType string
	LastError string
}

// Reaper is a single lifecycle.Service running all four C9 responsibilities
// on one cron schedule.
type Reaper struct {
	spec   string
	money  storage.MoneyStore
	pay    provider.PaymentProvider
	recon  MoneyReconciler
	flags  storage.SystemFlagStore
	queues []*outboxsvc.Consumer
	log    *logger.Logger

	cron *cron.Cron
}

// New constructs a Reaper. queues lists one Consumer per outbox queue so the
// DLQ processor can triage every queue's dead letters.
func New(money storage.MoneyStore, pay provider.PaymentProvider, recon MoneyReconciler, flags storage.SystemFlagStore, queues []*outboxsvc.Consumer, log *logger.Logger) *Reaper {
	return &Reaper{money: money, pay: pay, recon: recon, flags: flags, queues: queues, log: log, spec: defaultSpec}
}

// Name identifies the reaper for lifecycle.Manager logging.
func (r *Reaper) Name() string { return "reaper" }

// Sweep runs all four responsibilities once. Each is independent of the
// others' failures: one erroring never prevents the rest from running.
func (r *Reaper) Sweep(ctx context.Context) error {
	if err := r.reconcilePendingMoney(ctx); err != nil {
		r.log.WithError(err).Warn("reaper: pending-money reconciliation failed")
	}
	incidents, err := r.processDLQ(ctx)
	if err != nil {
		r.log.WithError(err).Warn("reaper: DLQ processing failed")
	}
	for _, inc := range incidents {
		r.log.WithFields(map[string]interface{}{
			"queue":      string(inc.Queue),
			"event_id":   inc.EventID,
			"event_type": inc.EventType,
			"last_error": inc.LastError,
		}).Warn("reaper: dead-lettered event")
	}
	if _, err := r.parityDrift(ctx); err != nil {
		r.log.WithError(err).Warn("reaper: ledger/provider parity check failed")
	}
	return nil
}

// reconcilePendingMoney looks up every money event still marked "failed" —
// a provider call that errored out of money.Service's circuit-breaker path
// without a definitive result — against the provider's own record by
// idempotency key, and retries the same idempotent operation so a result
// the provider already committed gets reflected locally.
func (r *Reaper) reconcilePendingMoney(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-eventWindow)
	events, err := r.money.ListEventsByStatus(ctx, "failed", time.Now().UTC(), batchSize)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if ev.CreatedAt.Before(cutoff) {
			continue
		}
		status, found, err := r.pay.LookupByIdempotencyKey(ctx, ev.IdempotencyKey)
		if err != nil {
			r.log.WithError(err).WithField("task_id", ev.TaskID).Warn("reaper: provider lookup failed")
			continue
		}
		if !found || status != "succeeded" {
			continue
		}
		if reconErr := r.retryEvent(ctx, ev.TaskID, ev.EventType); reconErr != nil {
			r.log.WithError(reconErr).WithField("task_id", ev.TaskID).Warn("reaper: reconciliation retry failed")
		}
	}
	return nil
}

func (r *Reaper) retryEvent(ctx context.Context, taskID, eventType string) error {
	lock, err := r.money.GetLock(ctx, taskID)
	if err != nil {
		return err
	}
	switch eventType {
	case "fund":
		_, err := r.recon.Fund(ctx, taskID, lock.AmountCents)
		return err
	case "release", "force_release":
		_, err := r.recon.Release(ctx, taskID)
		return err
	case "refund":
		_, err := r.recon.Refund(ctx, taskID, lock.AmountCents)
		return err
	default:
		return nil
	}
}

// processDLQ lists every queue's dead-lettered rows as structured Incidents.
// It never replays automatically — Replay is the supervised entrypoint an
// operator-facing caller (an admin action, not this sweep) invokes.
func (r *Reaper) processDLQ(ctx context.Context) ([]Incident, error) {
	var incidents []Incident
	for _, consumer := range r.queues {
		dead, err := consumer.ListDead(ctx, batchSize)
		if err != nil {
			return incidents, err
		}
		for _, e := range dead {
			incidents = append(incidents, Incident{
				Queue:     consumer.Queue(),
				EventID:   e.ID,
				EventType: e.EventType,
				LastError: e.LastError,
			})
		}
	}
	return incidents, nil
}

// Replay re-enqueues a dead-lettered event for the named queue's Consumer,
// under an operator's explicit decision — never called by Sweep itself.
func (r *Reaper) Replay(ctx context.Context, queue outbox.Queue, eventID string) error {
	for _, consumer := range r.queues {
		if consumer.Queue() != queue {
			continue
		}
		return consumer.Nack(ctx, eventID, time.Now().UTC(), "supervised replay")
	}
	return nil
}

// parityDrift samples recently-succeeded money events and confirms the
// provider still agrees they succeeded, returning the count of rows where
// it does not (drift).
func (r *Reaper) parityDrift(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-eventWindow)
	events, err := r.money.ListEventsByStatus(ctx, "succeeded", time.Now().UTC(), batchSize)
	if err != nil {
		return 0, err
	}
	drift := 0
	for _, ev := range events {
		if ev.CreatedAt.Before(cutoff) {
			continue
		}
		status, found, err := r.pay.LookupByIdempotencyKey(ctx, ev.IdempotencyKey)
		if err != nil {
			return drift, err
		}
		if !found || status != "succeeded" {
			drift++
		}
	}
	return drift, nil
}

// CanUnpause evaluates the unpause safety predicate: no pending (failed,
// unreconciled) money events, no dead-lettered outbox rows, the kill switch
// off, and zero ledger/provider drift. reasons names every condition that
// currently fails.
func (r *Reaper) CanUnpause(ctx context.Context) (bool, []string, error) {
	var reasons []string

	pending, err := r.money.ListEventsByStatus(ctx, "failed", time.Now().UTC(), 1)
	if err != nil {
		return false, nil, err
	}
	if len(pending) > 0 {
		reasons = append(reasons, "pending money events exist")
	}

	for _, consumer := range r.queues {
		dead, err := consumer.ListDead(ctx, 1)
		if err != nil {
			return false, nil, err
		}
		if len(dead) > 0 {
			reasons = append(reasons, "dead-lettered events exist on queue "+string(consumer.Queue()))
			break
		}
	}

	if killed, _, err := r.flags.GetFlag(ctx, killSwitchFlagKey); err != nil {
		return false, nil, err
	} else if killed == "true" {
		reasons = append(reasons, "kill switch is on")
	}

	drift, err := r.parityDrift(ctx)
	if err != nil {
		return false, nil, err
	}
	if drift > 0 {
		reasons = append(reasons, "ledger/provider drift detected")
	}

	return len(reasons) == 0, reasons, nil
}

// Start schedules Sweep on robfig/cron/v3's standard five-field syntax and
// begins the scheduler's own goroutine.
func (r *Reaper) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(r.spec, func() {
		if err := r.Sweep(ctx); err != nil {
			r.log.WithError(err).Warn("reaper sweep failed")
		}
	}); err != nil {
		return err
	}
	r.cron = c
	c.Start()
	r.log.WithField("spec", r.spec).Info("reaper started")
	return nil
}

// Stop halts the scheduler and waits for any in-flight sweep to finish.
func (r *Reaper) Stop(ctx context.Context) error {
	if r.cron == nil {
		return nil
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

// WithSchedule sets the cron spec Start uses; defaults to every five minutes
// when never called.
func (r *Reaper) WithSchedule(spec string) *Reaper {
	r.spec = spec
	return r
}
