package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/hustlexp/core/internal/platform/idgen"
)

func (s *Store) GetFlag(ctx context.Context, key string) (string, bool, error) {
	var raw json.RawMessage
	row := s.db.QueryRowContext(ctx, `SELECT value FROM system_flags WHERE key = $1`, key)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(raw), true, nil
}

func (s *Store) SetFlag(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_flags (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, key, json.RawMessage(value), time.Now().UTC())
	return err
}

// AppendAdminAction inserts one row of the append-only admin_action_audit
// trail. The service layer is responsible for issuing this in the same
// transaction as any admin override write it authorizes.
func (s *Store) AppendAdminAction(ctx context.Context, actorID, targetEntity, targetID, action string, beforeState []byte, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_action_audit (id, actor_id, target_entity, target_id, action, before_state, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, idgen.New(), actorID, targetEntity, targetID, action, beforeState, reason, time.Now().UTC())
	return err
}
