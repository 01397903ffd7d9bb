package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hustlexp/core/internal/domain/money"
)

func (s *Store) CreateLock(ctx context.Context, l money.Lock) (money.Lock, error) {
	now := time.Now().UTC()
	l.CreatedAt = now
	l.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO money_state_locks
			(task_id, state, amount_cents, payment_intent_id, charge_id, transfer_id, refund_id, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,0),NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,$9)
	`, l.TaskID, l.State, l.AmountCents, l.PaymentIntentID, l.ChargeID, l.TransferID, l.RefundID, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return money.Lock{}, err
	}
	return l, nil
}

func (s *Store) UpdateLock(ctx context.Context, l money.Lock) (money.Lock, error) {
	l.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE money_state_locks
		SET state = $2, amount_cents = NULLIF($3,0), payment_intent_id = NULLIF($4,''),
		    charge_id = NULLIF($5,''), transfer_id = NULLIF($6,''), refund_id = NULLIF($7,''), updated_at = $8
		WHERE task_id = $1
	`, l.TaskID, l.State, l.AmountCents, l.PaymentIntentID, l.ChargeID, l.TransferID, l.RefundID, l.UpdatedAt)
	if err != nil {
		return money.Lock{}, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return money.Lock{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) GetLock(ctx context.Context, taskID string) (money.Lock, error) {
	var l money.Lock
	var amount sql.NullInt64
	var intentID, chargeID, transferID, refundID sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT task_id, state, amount_cents, payment_intent_id, charge_id, transfer_id, refund_id, created_at, updated_at
		FROM money_state_locks WHERE task_id = $1
	`, taskID)
	if err := row.Scan(&l.TaskID, &l.State, &amount, &intentID, &chargeID, &transferID, &refundID, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return money.Lock{}, sql.ErrNoRows
		}
		return money.Lock{}, err
	}
	l.AmountCents = amount.Int64
	l.PaymentIntentID = intentID.String
	l.ChargeID = chargeID.String
	l.TransferID = transferID.String
	l.RefundID = refundID.String
	return l, nil
}

func (s *Store) ListLocksByState(ctx context.Context, state money.State, olderThan time.Time, limit int) ([]money.Lock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, state, amount_cents, payment_intent_id, charge_id, transfer_id, refund_id, created_at, updated_at
		FROM money_state_locks WHERE state = $1 AND updated_at < $2
		ORDER BY updated_at LIMIT $3
	`, state, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []money.Lock
	for rows.Next() {
		var l money.Lock
		var amount sql.NullInt64
		var intentID, chargeID, transferID, refundID sql.NullString
		if err := rows.Scan(&l.TaskID, &l.State, &amount, &intentID, &chargeID, &transferID, &refundID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.AmountCents = amount.Int64
		l.PaymentIntentID = intentID.String
		l.ChargeID = chargeID.String
		l.TransferID = transferID.String
		l.RefundID = refundID.String
		out = append(out, l)
	}
	return out, rows.Err()
}

// AppendEvent upserts by idempotency_key: a replayed call (e.g. the
// "pending" row followed by that same operation's "succeeded"/"failed" row,
// both sharing one key) updates the existing row's status in place rather
// than conflicting on the column's UNIQUE constraint.
func (s *Store) AppendEvent(ctx context.Context, ev money.Event) (money.Event, error) {
	ev.CreatedAt = time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO money_events_audit (id, task_id, event_type, idempotency_key, provider_ref, status, created_at)
		VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7)
		ON CONFLICT (idempotency_key) DO UPDATE
			SET status = EXCLUDED.status,
			    provider_ref = COALESCE(NULLIF(EXCLUDED.provider_ref,''), money_events_audit.provider_ref)
		RETURNING id
	`, ev.ID, ev.TaskID, ev.EventType, ev.IdempotencyKey, ev.ProviderRef, ev.Status, ev.CreatedAt)
	if err := row.Scan(&ev.ID); err != nil {
		return money.Event{}, err
	}
	return ev, nil
}

func (s *Store) ListEventsByStatus(ctx context.Context, status string, olderThan time.Time, limit int) ([]money.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, event_type, idempotency_key, provider_ref, status, created_at
		FROM money_events_audit WHERE status = $1 AND created_at < $2
		ORDER BY created_at LIMIT $3
	`, status, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []money.Event
	for rows.Next() {
		var ev money.Event
		var providerRef sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TaskID, &ev.EventType, &ev.IdempotencyKey, &providerRef, &ev.Status, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ProviderRef = providerRef.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) GetEventByIdempotencyKey(ctx context.Context, key string) (money.Event, error) {
	var ev money.Event
	var providerRef sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, event_type, idempotency_key, provider_ref, status, created_at
		FROM money_events_audit WHERE idempotency_key = $1
	`, key)
	if err := row.Scan(&ev.ID, &ev.TaskID, &ev.EventType, &ev.IdempotencyKey, &providerRef, &ev.Status, &ev.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return money.Event{}, sql.ErrNoRows
		}
		return money.Event{}, err
	}
	ev.ProviderRef = providerRef.String
	return ev, nil
}
