package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hustlexp/core/internal/domain/user"
)

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, role, trust_tier, xp_total, level, current_streak, last_active_at, archived_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, u.ID, u.Role, u.TrustTier, u.XPTotal, u.Level, u.CurrentStreak, u.LastActiveAt, u.ArchivedAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET role = $2, trust_tier = $3, xp_total = $4, level = $5, current_streak = $6,
		    last_active_at = $7, archived_at = $8, updated_at = $9
		WHERE id = $1
	`, u.ID, u.Role, u.TrustTier, u.XPTotal, u.Level, u.CurrentStreak, u.LastActiveAt, u.ArchivedAt, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	var u user.User
	row := s.db.QueryRowContext(ctx, `
		SELECT id, role, trust_tier, xp_total, level, current_streak, last_active_at, archived_at, created_at, updated_at
		FROM users WHERE id = $1
	`, id)
	if err := row.Scan(&u.ID, &u.Role, &u.TrustTier, &u.XPTotal, &u.Level, &u.CurrentStreak, &u.LastActiveAt, &u.ArchivedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, sql.ErrNoRows
		}
		return user.User{}, err
	}
	return u, nil
}

func (s *Store) ListActiveUsers(ctx context.Context, limit int) ([]user.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, trust_tier, xp_total, level, current_streak, last_active_at, archived_at, created_at, updated_at
		FROM users WHERE archived_at IS NULL ORDER BY last_active_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user.User
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Role, &u.TrustTier, &u.XPTotal, &u.Level, &u.CurrentStreak, &u.LastActiveAt, &u.ArchivedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
