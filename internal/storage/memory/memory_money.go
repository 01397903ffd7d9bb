package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hustlexp/core/internal/domain/money"
)

func (s *Store) CreateLock(_ context.Context, l money.Lock) (money.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	l.CreatedAt, l.UpdatedAt = now, now
	s.locks[l.TaskID] = l
	return l, nil
}

func (s *Store) UpdateLock(_ context.Context, l money.Lock) (money.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locks[l.TaskID]
	if !ok {
		return money.Lock{}, sql.ErrNoRows
	}
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = time.Now().UTC()
	s.locks[l.TaskID] = l
	return l, nil
}

func (s *Store) GetLock(_ context.Context, taskID string) (money.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locks[taskID]
	if !ok {
		return money.Lock{}, sql.ErrNoRows
	}
	return l, nil
}

func (s *Store) ListLocksByState(_ context.Context, state money.State, olderThan time.Time, limit int) ([]money.Lock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []money.Lock
	for _, l := range s.locks {
		if l.State == state && l.UpdatedAt.Before(olderThan) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AppendEvent(_ context.Context, ev money.Event) (money.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.moneyEvents {
		if existing.IdempotencyKey == ev.IdempotencyKey {
			existing.Status = ev.Status
			if ev.ProviderRef != "" {
				existing.ProviderRef = ev.ProviderRef
			}
			s.moneyEvents[id] = existing
			return existing, nil
		}
	}
	ev.CreatedAt = time.Now().UTC()
	s.moneyEvents[ev.ID] = ev
	return ev, nil
}

func (s *Store) GetEventByIdempotencyKey(_ context.Context, key string) (money.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.moneyEvents {
		if ev.IdempotencyKey == key {
			return ev, nil
		}
	}
	return money.Event{}, sql.ErrNoRows
}

func (s *Store) ListEventsByStatus(_ context.Context, status string, olderThan time.Time, limit int) ([]money.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []money.Event
	for _, ev := range s.moneyEvents {
		if ev.Status == status && ev.CreatedAt.Before(olderThan) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
