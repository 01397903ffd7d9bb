package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hustlexp/core/internal/domain/correction"
)

func (s *Store) CreateCorrection(ctx context.Context, c correction.Correction) (correction.Correction, error) {
	c.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO correction_log
			(id, type, target_entity, target_id, scope, adjustment, magnitude, reason_code, status, applied_by, expires_at, reversed_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, c.ID, c.Type, c.TargetEntity, c.TargetID, c.Scope, []byte(c.Adjustment), c.Magnitude, c.ReasonCode, c.Status, c.AppliedBy, c.ExpiresAt, c.ReversedAt, c.CreatedAt)
	if err != nil {
		return correction.Correction{}, err
	}
	return c, nil
}

func (s *Store) UpdateCorrection(ctx context.Context, c correction.Correction) (correction.Correction, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE correction_log SET status = $2, reversed_at = $3 WHERE id = $1
	`, c.ID, c.Status, c.ReversedAt)
	if err != nil {
		return correction.Correction{}, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return correction.Correction{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) GetCorrection(ctx context.Context, id string) (correction.Correction, error) {
	var c correction.Correction
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, target_entity, target_id, scope, adjustment, magnitude, reason_code, status, applied_by, expires_at, reversed_at, created_at
		FROM correction_log WHERE id = $1
	`, id)
	if err := row.Scan(&c.ID, &c.Type, &c.TargetEntity, &c.TargetID, &c.Scope, &c.Adjustment, &c.Magnitude, &c.ReasonCode, &c.Status, &c.AppliedBy, &c.ExpiresAt, &c.ReversedAt, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return correction.Correction{}, sql.ErrNoRows
		}
		return correction.Correction{}, err
	}
	return c, nil
}

func (s *Store) CountAppliedInScopeSince(ctx context.Context, scope correction.Scope, since time.Time) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM correction_log WHERE scope = $1 AND status = $2 AND created_at >= $3
	`, scope, correction.StatusApplied, since)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) ListExpiredActiveCorrections(ctx context.Context, before time.Time, limit int) ([]correction.Correction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, target_entity, target_id, scope, adjustment, magnitude, reason_code, status, applied_by, expires_at, reversed_at, created_at
		FROM correction_log
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at LIMIT $3
	`, correction.StatusApplied, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []correction.Correction
	for rows.Next() {
		var c correction.Correction
		if err := rows.Scan(&c.ID, &c.Type, &c.TargetEntity, &c.TargetID, &c.Scope, &c.Adjustment, &c.Magnitude, &c.ReasonCode, &c.Status, &c.AppliedBy, &c.ExpiresAt, &c.ReversedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateOutcome(ctx context.Context, o correction.Outcome) (correction.Outcome, error) {
	o.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO causal_outcomes
			(id, correction_id, treated_baseline, treated_post, control_baseline, control_post, net_lift, verdict, confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, o.ID, o.CorrectionID, []byte(o.TreatedBaseline), []byte(o.TreatedPost), []byte(o.ControlBaseline), []byte(o.ControlPost), []byte(o.NetLift), o.Verdict, o.Confidence, o.CreatedAt)
	if err != nil {
		return correction.Outcome{}, err
	}
	return o, nil
}

func (s *Store) ListOutcomesSince(ctx context.Context, since time.Time) ([]correction.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correction_id, treated_baseline, treated_post, control_baseline, control_post, net_lift, verdict, confidence, created_at
		FROM causal_outcomes WHERE created_at >= $1 ORDER BY created_at
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []correction.Outcome
	for rows.Next() {
		var o correction.Outcome
		if err := rows.Scan(&o.ID, &o.CorrectionID, &o.TreatedBaseline, &o.TreatedPost, &o.ControlBaseline, &o.ControlPost, &o.NetLift, &o.Verdict, &o.Confidence, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
