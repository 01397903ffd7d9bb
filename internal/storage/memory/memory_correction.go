package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hustlexp/core/internal/domain/correction"
)

func (s *Store) CreateCorrection(_ context.Context, c correction.Correction) (correction.Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.CreatedAt = time.Now().UTC()
	s.corrections[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCorrection(_ context.Context, c correction.Correction) (correction.Correction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.corrections[c.ID]
	if !ok {
		return correction.Correction{}, sql.ErrNoRows
	}
	c.CreatedAt = existing.CreatedAt
	s.corrections[c.ID] = c
	return c, nil
}

func (s *Store) GetCorrection(_ context.Context, id string) (correction.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.corrections[id]
	if !ok {
		return correction.Correction{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) CountAppliedInScopeSince(_ context.Context, scope correction.Scope, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	for _, c := range s.corrections {
		if c.Scope == scope && c.Status == correction.StatusApplied && !c.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListExpiredActiveCorrections(_ context.Context, before time.Time, limit int) ([]correction.Correction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []correction.Correction
	for _, c := range s.corrections {
		if c.Status == correction.StatusApplied && c.ExpiresAt != nil && c.ExpiresAt.Before(before) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateOutcome(_ context.Context, o correction.Outcome) (correction.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.CreatedAt = time.Now().UTC()
	s.outcomes[o.ID] = o
	return o, nil
}

func (s *Store) ListOutcomesSince(_ context.Context, since time.Time) ([]correction.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []correction.Outcome
	for _, o := range s.outcomes {
		if !o.CreatedAt.Before(since) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- SystemFlagStore / AdminAuditStore -----------------------------------

func (s *Store) GetFlag(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.flags[key]
	return v, ok, nil
}

func (s *Store) SetFlag(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = value
	return nil
}

func (s *Store) AppendAdminAction(_ context.Context, actorID, targetEntity, targetID, action string, beforeState []byte, reason string) error {
	// admin_action_audit is not queried back by any service under test today;
	// memory.Store only needs to accept the call without erroring.
	return nil
}
