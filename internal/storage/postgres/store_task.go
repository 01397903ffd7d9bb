package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hustlexp/core/internal/domain/task"
)

func (s *Store) CreateTask(ctx context.Context, t task.Task) (task.Task, error) {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, poster_id, hustler_id, category, price_cents, state, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7,$8)
	`, t.ID, t.PosterID, t.HustlerID, t.Category, t.PriceCents, t.State, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, t task.Task) (task.Task, error) {
	t.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET hustler_id = NULLIF($2,''), category = $3, price_cents = $4, state = $5, updated_at = $6
		WHERE id = $1
	`, t.ID, t.HustlerID, t.Category, t.PriceCents, t.State, t.UpdatedAt)
	if err != nil {
		return task.Task{}, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return task.Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	var t task.Task
	var hustlerID sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, poster_id, hustler_id, category, price_cents, state, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id)
	if err := row.Scan(&t.ID, &t.PosterID, &hustlerID, &t.Category, &t.PriceCents, &t.State, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return task.Task{}, sql.ErrNoRows
		}
		return task.Task{}, err
	}
	t.HustlerID = hustlerID.String
	return t, nil
}

func (s *Store) ListTasksByPoster(ctx context.Context, posterID string, limit int) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poster_id, hustler_id, category, price_cents, state, created_at, updated_at
		FROM tasks WHERE poster_id = $1 ORDER BY created_at DESC LIMIT $2
	`, posterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func (s *Store) ListOpenExpiredTasks(ctx context.Context, before time.Time, limit int) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, poster_id, hustler_id, category, price_cents, state, created_at, updated_at
		FROM tasks WHERE state = $1 AND created_at < $2
		ORDER BY created_at LIMIT $3
	`, task.Open, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]task.Task, error) {
	var out []task.Task
	for rows.Next() {
		var t task.Task
		var hustlerID sql.NullString
		if err := rows.Scan(&t.ID, &t.PosterID, &hustlerID, &t.Category, &t.PriceCents, &t.State, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.HustlerID = hustlerID.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) AppendStateLog(ctx context.Context, entry task.StateLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_state_log (task_id, from_state, to_state, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.TaskID, entry.FromState, entry.ToState, entry.ActorID, time.Now().UTC())
	return err
}

func (s *Store) ListStateLog(ctx context.Context, taskID string) ([]task.StateLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, from_state, to_state, actor_id, created_at
		FROM task_state_log WHERE task_id = $1 ORDER BY id
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.StateLogEntry
	for rows.Next() {
		var e task.StateLogEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.FromState, &e.ToState, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
