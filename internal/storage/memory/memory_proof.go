package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hustlexp/core/internal/domain/proof"
)

func (s *Store) CreateProof(_ context.Context, p proof.Proof) (proof.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.proofs[p.ID] = p
	return p, nil
}

func (s *Store) UpdateProof(_ context.Context, p proof.Proof) (proof.Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.proofs[p.ID]
	if !ok {
		return proof.Proof{}, sql.ErrNoRows
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.proofs[p.ID] = p
	return p, nil
}

func (s *Store) GetProof(_ context.Context, id string) (proof.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proofs[id]
	if !ok {
		return proof.Proof{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *Store) GetLatestProofForTask(_ context.Context, taskID string) (proof.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest proof.Proof
	var found bool
	for _, p := range s.proofs {
		if p.TaskID != taskID {
			continue
		}
		if !found || p.CreatedAt.After(latest.CreatedAt) {
			latest, found = p, true
		}
	}
	if !found {
		return proof.Proof{}, sql.ErrNoRows
	}
	return latest, nil
}

func (s *Store) ListExpiredSubmittedProofs(_ context.Context, before time.Time, limit int) ([]proof.Proof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []proof.Proof
	for _, p := range s.proofs {
		if p.State == proof.Submitted && p.DeadlineAt.Before(before) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeadlineAt.Before(out[j].DeadlineAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
