package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/hustlexp/core/internal/domain/proof"
)

func (s *Store) CreateProof(ctx context.Context, p proof.Proof) (proof.Proof, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proofs (id, task_id, submitter_id, artifact_refs, state, deadline_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, p.ID, p.TaskID, p.SubmitterID, pq.Array(p.ArtifactRefs), p.State, p.DeadlineAt, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return proof.Proof{}, err
	}
	return p, nil
}

func (s *Store) UpdateProof(ctx context.Context, p proof.Proof) (proof.Proof, error) {
	p.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE proofs SET state = $2, updated_at = $3 WHERE id = $1
	`, p.ID, p.State, p.UpdatedAt)
	if err != nil {
		return proof.Proof{}, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return proof.Proof{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetProof(ctx context.Context, id string) (proof.Proof, error) {
	var p proof.Proof
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, submitter_id, artifact_refs, state, deadline_at, created_at, updated_at
		FROM proofs WHERE id = $1
	`, id)
	if err := row.Scan(&p.ID, &p.TaskID, &p.SubmitterID, pq.Array(&p.ArtifactRefs), &p.State, &p.DeadlineAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return proof.Proof{}, sql.ErrNoRows
		}
		return proof.Proof{}, err
	}
	return p, nil
}

func (s *Store) GetLatestProofForTask(ctx context.Context, taskID string) (proof.Proof, error) {
	var p proof.Proof
	row := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, submitter_id, artifact_refs, state, deadline_at, created_at, updated_at
		FROM proofs WHERE task_id = $1 ORDER BY created_at DESC LIMIT 1
	`, taskID)
	if err := row.Scan(&p.ID, &p.TaskID, &p.SubmitterID, pq.Array(&p.ArtifactRefs), &p.State, &p.DeadlineAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return proof.Proof{}, sql.ErrNoRows
		}
		return proof.Proof{}, err
	}
	return p, nil
}

func (s *Store) ListExpiredSubmittedProofs(ctx context.Context, before time.Time, limit int) ([]proof.Proof, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, submitter_id, artifact_refs, state, deadline_at, created_at, updated_at
		FROM proofs WHERE state = $1 AND deadline_at < $2
		ORDER BY deadline_at LIMIT $3
	`, proof.Submitted, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []proof.Proof
	for rows.Next() {
		var p proof.Proof
		if err := rows.Scan(&p.ID, &p.TaskID, &p.SubmitterID, pq.Array(&p.ArtifactRefs), &p.State, &p.DeadlineAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
