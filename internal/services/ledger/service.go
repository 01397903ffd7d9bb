// Package ledger implements the Append-Only Ledgers service (C6): the XP
// award pipeline triggered off a released escrow, and trust-ledger
// adjustments, plus the derived user.XPTotal/Level/TrustTier/CurrentStreak
// columns the ledgers feed. Every write here is an INSERT; nothing in this
// package ever updates an existing ledger row.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/hustlexp/core/internal/domain/apperr"
	domainledger "github.com/hustlexp/core/internal/domain/ledger"
	"github.com/hustlexp/core/internal/platform/idgen"
	"github.com/hustlexp/core/internal/platform/txrunner"
	"github.com/hustlexp/core/internal/storage"
)

// levelXPStep is the XP distance between consecutive user levels.
const levelXPStep = 1000

// trustTierStep is the trust-ledger running sum distance between tiers,
// clamped to the fixed [0,5] tier range.
const trustTierStep = 20

// Service implements XP award and trust adjustment.
type Service struct {
	ledger storage.LedgerStore
	users  storage.UserStore
	tasks  storage.TaskStore
	tx     *txrunner.Runner
}

// New constructs a ledger Service.
func New(ledgerStore storage.LedgerStore, users storage.UserStore, tasks storage.TaskStore, tx *txrunner.Runner) *Service {
	return &Service{ledger: ledgerStore, users: users, tasks: tasks, tx: tx}
}

// AwardXP computes and appends the XP entry for a released escrow, keyed by
// moneyStateLockTaskID so the ledger's unique constraint makes the award
// idempotent against outbox redelivery from the XP-Award worker.
func (s *Service) AwardXP(ctx context.Context, moneyStateLockTaskID string) (domainledger.XPEntry, error) {
	if existing, err := s.ledger.GetXPEntryByMoneyStateLockTaskID(ctx, moneyStateLockTaskID); err == nil {
		return existing, nil
	}

	t, err := s.tasks.GetTask(ctx, moneyStateLockTaskID)
	if err != nil {
		return domainledger.XPEntry{}, apperr.NotFoundf("LEDGER_TASK_NOT_FOUND", "task %s not found", moneyStateLockTaskID)
	}
	if t.HustlerID == "" {
		return domainledger.XPEntry{}, apperr.New(apperr.ConflictState, "LEDGER_NO_HUSTLER", "task "+moneyStateLockTaskID+" has no assigned hustler to award")
	}

	var entry domainledger.XPEntry
	err = s.tx.SerializableTx(ctx, func(ctx context.Context, _ *sql.Tx) error {
		u, err := s.users.GetUser(ctx, t.HustlerID)
		if err != nil {
			return apperr.NotFoundf("LEDGER_USER_NOT_FOUND", "user %s not found", t.HustlerID)
		}

		totalBefore, err := s.ledger.SumXPForUser(ctx, u.ID)
		if err != nil {
			return err
		}

		computation := domainledger.Compute(t.PriceCents, totalBefore, u.CurrentStreak)

		appended, err := s.ledger.AppendXPEntry(ctx, domainledger.XPEntry{
			ID:                   idgen.New(),
			UserID:               u.ID,
			TaskID:               t.ID,
			MoneyStateLockTaskID: moneyStateLockTaskID,
			BaseXP:               computation.BaseXP,
			DecayFactor:          computation.DecayFactor.String(),
			EffectiveXP:          computation.EffectiveXP,
			StreakMultiplier:     computation.StreakMultiplier.String(),
			FinalXP:              computation.FinalXP,
			Reason:               "task_completed",
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		u.CurrentStreak = NextStreak(now, u.LastActiveAt, u.CurrentStreak)
		u.XPTotal = totalBefore + appended.FinalXP
		u.Level = int(u.XPTotal/levelXPStep) + 1
		u.LastActiveAt = now
		if _, err := s.users.UpdateUser(ctx, u); err != nil {
			return err
		}

		entry = appended
		return nil
	})
	if err != nil {
		return domainledger.XPEntry{}, err
	}
	return entry, nil
}

// AdjustTrust appends a trust-ledger entry and refreshes the user's cached
// trust tier from the ledger's running sum, clamped to [0,5].
func (s *Service) AdjustTrust(ctx context.Context, userID string, delta int, reason string) (domainledger.TrustEntry, error) {
	var entry domainledger.TrustEntry
	err := s.tx.SerializableTx(ctx, func(ctx context.Context, _ *sql.Tx) error {
		u, err := s.users.GetUser(ctx, userID)
		if err != nil {
			return apperr.NotFoundf("LEDGER_USER_NOT_FOUND", "user %s not found", userID)
		}

		appended, err := s.ledger.AppendTrustEntry(ctx, domainledger.TrustEntry{
			ID:     idgen.New(),
			UserID: userID,
			Delta:  delta,
			Reason: reason,
		})
		if err != nil {
			return err
		}

		sum, err := s.ledger.SumTrustForUser(ctx, userID)
		if err != nil {
			return err
		}
		tier := sum / trustTierStep
		switch {
		case tier < 0:
			tier = 0
		case tier > 5:
			tier = 5
		}
		u.TrustTier = tier
		if _, err := s.users.UpdateUser(ctx, u); err != nil {
			return err
		}

		entry = appended
		return nil
	})
	if err != nil {
		return domainledger.TrustEntry{}, err
	}
	return entry, nil
}
