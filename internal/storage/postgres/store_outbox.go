package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/hustlexp/core/internal/domain/outbox"
)

func (s *Store) Enqueue(ctx context.Context, e outbox.Event) (outbox.Event, error) {
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Status == "" {
		e.Status = outbox.StatusPending
	}
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox_events
			(id, event_type, aggregate_type, aggregate_id, event_version, idempotency_key, payload, queue_name, status, attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, e.ID, e.EventType, e.AggregateType, e.AggregateID, e.EventVersion, e.IdempotencyKey, []byte(e.Payload), e.QueueName, e.Status, e.Attempts, e.NextAttemptAt, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return outbox.Event{}, err
	}
	return e, nil
}

// Claim locks up to limit pending, due rows for queue using SELECT ... FOR
// UPDATE SKIP LOCKED so concurrent pollers never double-claim the same row,
// and flips them to in_flight before returning.
func (s *Store) Claim(ctx context.Context, queue outbox.Queue, limit int) ([]outbox.Event, error) {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, event_type, aggregate_type, aggregate_id, event_version, idempotency_key, payload, queue_name, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM outbox_events
		WHERE queue_name = $1 AND status = $2 AND next_attempt_at <= now()
		ORDER BY next_attempt_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, queue, outbox.StatusPending, limit)
	if err != nil {
		return nil, err
	}

	var claimed []outbox.Event
	for rows.Next() {
		var e outbox.Event
		var lastError sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &e.AggregateType, &e.AggregateID, &e.EventVersion, &e.IdempotencyKey, &e.Payload, &e.QueueName, &e.Status, &e.Attempts, &e.NextAttemptAt, &lastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		e.LastError = lastError.String
		claimed = append(claimed, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	now := time.Now().UTC()
	for i := range claimed {
		if _, err := tx.ExecContext(ctx, `
			UPDATE outbox_events SET status = $2, attempts = attempts + 1, updated_at = $3 WHERE id = $1
		`, claimed[i].ID, outbox.StatusInFlight, now); err != nil {
			return nil, err
		}
		claimed[i].Status = outbox.StatusInFlight
		claimed[i].Attempts++
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = $2, updated_at = $3 WHERE id = $1
	`, id, outbox.StatusCompleted, time.Now().UTC())
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = $2, next_attempt_at = $3, last_error = $4, updated_at = $5 WHERE id = $1
	`, id, outbox.StatusPending, nextAttemptAt, lastError, time.Now().UTC())
	return err
}

func (s *Store) MarkDead(ctx context.Context, id string, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events SET status = $2, last_error = $3, updated_at = $4 WHERE id = $1
	`, id, outbox.StatusDead, lastError, time.Now().UTC())
	return err
}

func (s *Store) ListDead(ctx context.Context, queue outbox.Queue, limit int) ([]outbox.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_type, aggregate_id, event_version, idempotency_key, payload, queue_name, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM outbox_events WHERE queue_name = $1 AND status = $2
		ORDER BY updated_at DESC LIMIT $3
	`, queue, outbox.StatusDead, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var e outbox.Event
		var lastError sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &e.AggregateType, &e.AggregateID, &e.EventVersion, &e.IdempotencyKey, &e.Payload, &e.QueueName, &e.Status, &e.Attempts, &e.NextAttemptAt, &lastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.LastError = lastError.String
		out = append(out, e)
	}
	return out, rows.Err()
}
