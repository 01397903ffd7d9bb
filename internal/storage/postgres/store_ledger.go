package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hustlexp/core/internal/domain/ledger"
)

func (s *Store) AppendXPEntry(ctx context.Context, e ledger.XPEntry) (ledger.XPEntry, error) {
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO xp_ledger
			(id, user_id, task_id, money_state_lock_task_id, base_xp, decay_factor, effective_xp, streak_multiplier, final_xp, reason, created_at)
		VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11)
	`, e.ID, e.UserID, e.TaskID, e.MoneyStateLockTaskID, e.BaseXP, e.DecayFactor, e.EffectiveXP, e.StreakMultiplier, e.FinalXP, e.Reason, e.CreatedAt)
	if err != nil {
		return ledger.XPEntry{}, err
	}
	return e, nil
}

func (s *Store) GetXPEntryByMoneyStateLockTaskID(ctx context.Context, taskID string) (ledger.XPEntry, error) {
	var e ledger.XPEntry
	var refTaskID, lockTaskID sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, task_id, money_state_lock_task_id, base_xp, decay_factor, effective_xp, streak_multiplier, final_xp, reason, created_at
		FROM xp_ledger WHERE money_state_lock_task_id = $1
	`, taskID)
	if err := row.Scan(&e.ID, &e.UserID, &refTaskID, &lockTaskID, &e.BaseXP, &e.DecayFactor, &e.EffectiveXP, &e.StreakMultiplier, &e.FinalXP, &e.Reason, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.XPEntry{}, sql.ErrNoRows
		}
		return ledger.XPEntry{}, err
	}
	e.TaskID = refTaskID.String
	e.MoneyStateLockTaskID = lockTaskID.String
	return e, nil
}

func (s *Store) ListXPEntriesForUser(ctx context.Context, userID string, limit int) ([]ledger.XPEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, task_id, money_state_lock_task_id, base_xp, decay_factor, effective_xp, streak_multiplier, final_xp, reason, created_at
		FROM xp_ledger WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.XPEntry
	for rows.Next() {
		var e ledger.XPEntry
		var refTaskID, lockTaskID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &refTaskID, &lockTaskID, &e.BaseXP, &e.DecayFactor, &e.EffectiveXP, &e.StreakMultiplier, &e.FinalXP, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TaskID = refTaskID.String
		e.MoneyStateLockTaskID = lockTaskID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SumXPForUser(ctx context.Context, userID string) (int64, error) {
	var total sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT SUM(final_xp) FROM xp_ledger WHERE user_id = $1`, userID)
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

func (s *Store) AppendTrustEntry(ctx context.Context, e ledger.TrustEntry) (ledger.TrustEntry, error) {
	e.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_ledger (id, user_id, delta, reason, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, e.ID, e.UserID, e.Delta, e.Reason, e.CreatedAt)
	if err != nil {
		return ledger.TrustEntry{}, err
	}
	return e, nil
}

func (s *Store) ListTrustEntriesForUser(ctx context.Context, userID string, limit int) ([]ledger.TrustEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, delta, reason, created_at
		FROM trust_ledger WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.TrustEntry
	for rows.Next() {
		var e ledger.TrustEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) SumTrustForUser(ctx context.Context, userID string) (int, error) {
	var total sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT SUM(delta) FROM trust_ledger WHERE user_id = $1`, userID)
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return int(total.Int64), nil
}
