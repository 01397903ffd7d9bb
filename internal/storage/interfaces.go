// Package storage declares the segregated per-domain persistence interfaces
// the service layer depends on. Two implementations exist: postgres (the
// system of record) and memory (in-process fakes for unit tests).
package storage

import (
	"context"
	"time"

	"github.com/hustlexp/core/internal/domain/correction"
	"github.com/hustlexp/core/internal/domain/ledger"
	"github.com/hustlexp/core/internal/domain/money"
	"github.com/hustlexp/core/internal/domain/outbox"
	"github.com/hustlexp/core/internal/domain/proof"
	"github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/domain/user"
)

// UserStore persists marketplace participants.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	UpdateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id string) (user.User, error)
	ListActiveUsers(ctx context.Context, limit int) ([]user.User, error)
}

// TaskStore persists tasks and their state transition log.
type TaskStore interface {
	CreateTask(ctx context.Context, t task.Task) (task.Task, error)
	UpdateTask(ctx context.Context, t task.Task) (task.Task, error)
	GetTask(ctx context.Context, id string) (task.Task, error)
	ListTasksByPoster(ctx context.Context, posterID string, limit int) ([]task.Task, error)
	ListOpenExpiredTasks(ctx context.Context, before time.Time, limit int) ([]task.Task, error)
	AppendStateLog(ctx context.Context, entry task.StateLogEntry) error
	ListStateLog(ctx context.Context, taskID string) ([]task.StateLogEntry, error)
}

// MoneyStore persists the one-row-per-task escrow lock and its audit events.
type MoneyStore interface {
	CreateLock(ctx context.Context, l money.Lock) (money.Lock, error)
	UpdateLock(ctx context.Context, l money.Lock) (money.Lock, error)
	GetLock(ctx context.Context, taskID string) (money.Lock, error)
	ListLocksByState(ctx context.Context, state money.State, olderThan time.Time, limit int) ([]money.Lock, error)
	AppendEvent(ctx context.Context, ev money.Event) (money.Event, error)
	GetEventByIdempotencyKey(ctx context.Context, key string) (money.Event, error)
	ListEventsByStatus(ctx context.Context, status string, olderThan time.Time, limit int) ([]money.Event, error)
}

// ProofStore persists completion proofs.
type ProofStore interface {
	CreateProof(ctx context.Context, p proof.Proof) (proof.Proof, error)
	UpdateProof(ctx context.Context, p proof.Proof) (proof.Proof, error)
	GetProof(ctx context.Context, id string) (proof.Proof, error)
	GetLatestProofForTask(ctx context.Context, taskID string) (proof.Proof, error)
	ListExpiredSubmittedProofs(ctx context.Context, before time.Time, limit int) ([]proof.Proof, error)
}

// LedgerStore persists the append-only XP and trust ledgers.
type LedgerStore interface {
	AppendXPEntry(ctx context.Context, e ledger.XPEntry) (ledger.XPEntry, error)
	GetXPEntryByMoneyStateLockTaskID(ctx context.Context, taskID string) (ledger.XPEntry, error)
	ListXPEntriesForUser(ctx context.Context, userID string, limit int) ([]ledger.XPEntry, error)
	SumXPForUser(ctx context.Context, userID string) (int64, error)

	AppendTrustEntry(ctx context.Context, e ledger.TrustEntry) (ledger.TrustEntry, error)
	ListTrustEntriesForUser(ctx context.Context, userID string, limit int) ([]ledger.TrustEntry, error)
	SumTrustForUser(ctx context.Context, userID string) (int, error)
}

// OutboxStore persists and claims transactional outbox rows.
type OutboxStore interface {
	Enqueue(ctx context.Context, e outbox.Event) (outbox.Event, error)
	Claim(ctx context.Context, queue outbox.Queue, limit int) ([]outbox.Event, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error
	MarkDead(ctx context.Context, id string, lastError string) error
	ListDead(ctx context.Context, queue outbox.Queue, limit int) ([]outbox.Event, error)
}

// CorrectionStore persists advisory corrections and their causal outcomes.
type CorrectionStore interface {
	CreateCorrection(ctx context.Context, c correction.Correction) (correction.Correction, error)
	UpdateCorrection(ctx context.Context, c correction.Correction) (correction.Correction, error)
	GetCorrection(ctx context.Context, id string) (correction.Correction, error)
	CountAppliedInScopeSince(ctx context.Context, scope correction.Scope, since time.Time) (int, error)
	ListExpiredActiveCorrections(ctx context.Context, before time.Time, limit int) ([]correction.Correction, error)

	CreateOutcome(ctx context.Context, o correction.Outcome) (correction.Outcome, error)
	ListOutcomesSince(ctx context.Context, since time.Time) ([]correction.Outcome, error)
}

// SystemFlagStore persists small persistent operational flags, such as the
// SafeMode latch, that must survive process restarts.
type SystemFlagStore interface {
	GetFlag(ctx context.Context, key string) (string, bool, error)
	SetFlag(ctx context.Context, key, value string) error
}

// AdminAuditStore persists the append-only admin action audit trail.
type AdminAuditStore interface {
	AppendAdminAction(ctx context.Context, actorID, targetEntity, targetID, action string, beforeState []byte, reason string) error
}
