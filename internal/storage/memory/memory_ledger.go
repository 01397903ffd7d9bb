package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hustlexp/core/internal/domain/ledger"
)

func (s *Store) AppendXPEntry(_ context.Context, e ledger.XPEntry) (ledger.XPEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = time.Now().UTC()
	s.xpEntries[e.ID] = e
	return e, nil
}

func (s *Store) GetXPEntryByMoneyStateLockTaskID(_ context.Context, taskID string) (ledger.XPEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.xpEntries {
		if e.MoneyStateLockTaskID == taskID {
			return e, nil
		}
	}
	return ledger.XPEntry{}, sql.ErrNoRows
}

func (s *Store) ListXPEntriesForUser(_ context.Context, userID string, limit int) ([]ledger.XPEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.XPEntry
	for _, e := range s.xpEntries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SumXPForUser(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, e := range s.xpEntries {
		if e.UserID == userID {
			total += e.FinalXP
		}
	}
	return total, nil
}

func (s *Store) AppendTrustEntry(_ context.Context, e ledger.TrustEntry) (ledger.TrustEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.CreatedAt = time.Now().UTC()
	s.trustEntries[e.ID] = e
	return e, nil
}

func (s *Store) ListTrustEntriesForUser(_ context.Context, userID string, limit int) ([]ledger.TrustEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.TrustEntry
	for _, e := range s.trustEntries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SumTrustForUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int
	for _, e := range s.trustEntries {
		if e.UserID == userID {
			total += e.Delta
		}
	}
	return total, nil
}
