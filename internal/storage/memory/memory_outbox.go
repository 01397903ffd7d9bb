package memory

import (
	"context"
	"sort"
	"time"

	"github.com/hustlexp/core/internal/domain/outbox"
)

func (s *Store) Enqueue(_ context.Context, e outbox.Event) (outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.outboxEvents {
		if existing.IdempotencyKey == e.IdempotencyKey {
			return existing, nil
		}
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = outbox.StatusPending
	}
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = now
	}
	s.outboxEvents[e.ID] = e
	return e, nil
}

func (s *Store) Claim(_ context.Context, queue outbox.Queue, limit int) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()

	var candidates []outbox.Event
	for _, e := range s.outboxEvents {
		if e.QueueName == queue && e.Status == outbox.StatusPending && !e.NextAttemptAt.After(now) {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt) })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	for i, e := range candidates {
		e.Status = outbox.StatusInFlight
		e.Attempts++
		e.UpdatedAt = now
		s.outboxEvents[e.ID] = e
		candidates[i] = e
	}
	return candidates, nil
}

func (s *Store) MarkCompleted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.outboxEvents[id]
	e.Status = outbox.StatusCompleted
	e.UpdatedAt = time.Now().UTC()
	s.outboxEvents[id] = e
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.outboxEvents[id]
	e.Status = outbox.StatusPending
	e.NextAttemptAt = nextAttemptAt
	e.LastError = lastError
	e.UpdatedAt = time.Now().UTC()
	s.outboxEvents[id] = e
	return nil
}

func (s *Store) MarkDead(_ context.Context, id string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.outboxEvents[id]
	e.Status = outbox.StatusDead
	e.LastError = lastError
	e.UpdatedAt = time.Now().UTC()
	s.outboxEvents[id] = e
	return nil
}

func (s *Store) ListDead(_ context.Context, queue outbox.Queue, limit int) ([]outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []outbox.Event
	for _, e := range s.outboxEvents {
		if e.QueueName == queue && e.Status == outbox.StatusDead {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
