// Package app wires the kernel's storage, services, Worker Fleet, and
// Reaper into a single Application that cmd/appserver starts and stops as
// one unit, in dependency order: platform -> storage -> task/money ->
// ledger -> outbox -> workers -> reaper/correction.
package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hustlexp/core/internal/config"
	"github.com/hustlexp/core/internal/domain/outbox"
	"github.com/hustlexp/core/internal/platform/eventbus"
	"github.com/hustlexp/core/internal/platform/lifecycle"
	"github.com/hustlexp/core/internal/platform/lock"
	"github.com/hustlexp/core/internal/platform/realtime"
	"github.com/hustlexp/core/internal/platform/txrunner"
	"github.com/hustlexp/core/internal/provider"
	"github.com/hustlexp/core/internal/reaper"
	"github.com/hustlexp/core/internal/services/correction"
	"github.com/hustlexp/core/internal/services/ledger"
	"github.com/hustlexp/core/internal/services/money"
	outboxsvc "github.com/hustlexp/core/internal/services/outbox"
	"github.com/hustlexp/core/internal/services/task"
	"github.com/hustlexp/core/internal/storage"
	"github.com/hustlexp/core/internal/workers"
	"github.com/hustlexp/core/pkg/logger"
)

// pollInterval is the Worker Fleet's fixed polling cadence; an eventbus
// wake-up on outboxNotifyChannel (when a bus is configured) triggers an
// earlier tick.
const pollInterval = 2 * time.Second

// proofExpirySpec matches the Reaper's own default cadence, since both scan
// for work a few minutes stale at most.
const proofExpirySpec = "*/5 * * * *"

// Store bundles every per-domain repository the kernel depends on, so the
// same wiring in New works unmodified against either the postgres system of
// record or the in-memory fakes.
type Store struct {
	Users       storage.UserStore
	Tasks       storage.TaskStore
	Money       storage.MoneyStore
	Proofs      storage.ProofStore
	Ledger      storage.LedgerStore
	Outbox      storage.OutboxStore
	Corrections storage.CorrectionStore
	Flags       storage.SystemFlagStore
	Audit       storage.AdminAuditStore
}

// Collaborators bundles the three abstract external collaborators
// specification section 6 leaves to the deployment: the payment provider,
// the proof-artifact object store, and the realtime push gateway.
type Collaborators struct {
	Payment provider.PaymentProvider
	Objects provider.ObjectStore
	Push    provider.PushGateway
}

// Application owns every kernel service and background worker and starts
// or stops all of them through one lifecycle.Manager.
type Application struct {
	log *logger.Logger
	bus *eventbus.Bus

	Task       *task.Service
	Money      *money.Service
	Ledger     *ledger.Service
	Correction *correction.Service
	Reaper     *reaper.Reaper
	Registry   *realtime.Registry

	pollers *manager
	manager *lifecycle.Manager
}

// manager tracks the live Pollers so Start can subscribe every one of them
// to eventbus wake-ups without hardcoding the queue list twice.
type manager struct {
	pollers []*workers.Poller
}

func (m *manager) wakeAll() {
	for _, p := range m.pollers {
		p.Wake()
	}
}

// New wires the full Application. db and redisClient may be nil (in-memory,
// single-process/dev mode): the distributed lock then degenerates to a
// nil-client lock.Service, which is only safe with a single replica, and
// bus stays nil so pollers rely solely on their fixed interval.
func New(cfg *config.Config, log *logger.Logger, store Store, db *sql.DB, redisClient *redis.Client, bus *eventbus.Bus, collab Collaborators) *Application {
	lockSvc := lock.New(redisClient)

	txCfg := txrunner.DefaultConfig()
	if cfg.Retry.MaxAttempts > 0 {
		txCfg.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseMS > 0 {
		txCfg.BaseDelay = time.Duration(cfg.Retry.BaseMS) * time.Millisecond
	}
	if cfg.Retry.MaxMS > 0 {
		txCfg.MaxDelay = time.Duration(cfg.Retry.MaxMS) * time.Millisecond
	}
	txRunner := txrunner.New(db, txCfg)

	taskSvc := task.New(store.Tasks, store.Proofs, store.Outbox, lockSvc, txRunner, log)
	moneySvc := money.New(store.Money, store.Tasks, store.Outbox, store.Audit, lockSvc, txRunner, collab.Payment, log)
	ledgerSvc := ledger.New(store.Ledger, store.Users, store.Tasks, txRunner)
	correctionSvc := correction.New(store.Corrections, store.Flags, store.Audit, log)
	registry := realtime.NewRegistry()

	batch := cfg.Worker.OutboxWorkerCount
	if batch <= 0 {
		batch = 10
	}

	consumers := map[outbox.Queue]*outboxsvc.Consumer{
		outbox.QueueXPAward:         outboxsvc.NewConsumer(store.Outbox, outbox.QueueXPAward),
		outbox.QueuePayoutDispatch:  outboxsvc.NewConsumer(store.Outbox, outbox.QueuePayoutDispatch),
		outbox.QueueNotifications:   outboxsvc.NewConsumer(store.Outbox, outbox.QueueNotifications),
		outbox.QueueTrustReevaluate: outboxsvc.NewConsumer(store.Outbox, outbox.QueueTrustReevaluate),
		outbox.QueueRealtimeFanout:  outboxsvc.NewConsumer(store.Outbox, outbox.QueueRealtimeFanout),
	}

	xpPoller := workers.NewPoller("xp_award", consumers[outbox.QueueXPAward],
		workers.XPAwardHandler(func(ctx context.Context, taskID string) error {
			_, err := ledgerSvc.AwardXP(ctx, taskID)
			return err
		}), pollInterval, batch, log)

	payoutPoller := workers.NewPoller("payout_dispatch", consumers[outbox.QueuePayoutDispatch],
		workers.PayoutDispatchHandler(func(ctx context.Context, taskID string) error {
			_, err := moneySvc.Release(ctx, taskID)
			return err
		}), pollInterval, batch, log)

	notifPoller := workers.NewPoller("notifications", consumers[outbox.QueueNotifications],
		workers.NotificationsHandler(collab.Push), pollInterval, batch, log)

	trustPoller := workers.NewPoller("trust_reevaluate", consumers[outbox.QueueTrustReevaluate],
		workers.TrustReevaluateHandler(func(ctx context.Context, userID string, delta int, reason string) error {
			_, err := ledgerSvc.AdjustTrust(ctx, userID, delta, reason)
			return err
		}), pollInterval, batch, log)

	realtimePoller := workers.NewPoller("realtime_fanout", consumers[outbox.QueueRealtimeFanout],
		workers.RealtimeFanoutHandler(store.Tasks, registry), pollInterval, batch, log)

	proofExpiry := workers.NewCronWorker("proof_expiry", proofExpirySpec,
		workers.ProofExpiryHandler(store.Proofs, func(ctx context.Context, taskID string) error {
			_, err := taskSvc.Expire(ctx, taskID)
			return err
		}, batch, log), log)

	reaperQueues := []*outboxsvc.Consumer{
		consumers[outbox.QueueXPAward],
		consumers[outbox.QueuePayoutDispatch],
		consumers[outbox.QueueNotifications],
		consumers[outbox.QueueTrustReevaluate],
		consumers[outbox.QueueRealtimeFanout],
	}
	rp := reaper.New(store.Money, collab.Payment, moneySvc, store.Flags, reaperQueues, log)

	pollerList := []*workers.Poller{xpPoller, payoutPoller, notifPoller, trustPoller, realtimePoller}
	mgr := lifecycle.NewManager()
	for _, p := range pollerList {
		mgr.Register(p)
	}
	mgr.Register(proofExpiry)
	mgr.Register(rp)

	return &Application{
		log:        log,
		bus:        bus,
		Task:       taskSvc,
		Money:      moneySvc,
		Ledger:     ledgerSvc,
		Correction: correctionSvc,
		Reaper:     rp,
		Registry:   registry,
		pollers:    &manager{pollers: pollerList},
		manager:    mgr,
	}
}

// outboxNotifyChannel is the Postgres NOTIFY channel Start subscribes the
// pollers to. This is the subscriber side only: no migration trigger and no
// code in this repository issues NOTIFY on it, so pollers wake early only
// when something outside the kernel sends that notification.
const outboxNotifyChannel = "outbox_events"

// Start subscribes every Poller to eventbus wake-ups (when bus is
// non-nil), then starts every worker and the Reaper in registration order.
func (a *Application) Start(ctx context.Context) error {
	if a.bus != nil {
		if err := a.bus.OnNotify(outboxNotifyChannel, a.pollers.wakeAll); err != nil {
			return err
		}
	}
	return a.manager.Start(ctx)
}

// Stop stops every worker and the Reaper in reverse registration order,
// then closes the eventbus subscription.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.bus != nil {
		if closeErr := a.bus.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
