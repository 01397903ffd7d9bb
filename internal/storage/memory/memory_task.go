package memory

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/hustlexp/core/internal/domain/task"
)

func (s *Store) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tasks[t.ID]
	if !ok {
		return task.Task{}, sql.ErrNoRows
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.tasks[t.ID] = t
	return t, nil
}

func (s *Store) GetTask(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, sql.ErrNoRows
	}
	return t, nil
}

func (s *Store) ListTasksByPoster(_ context.Context, posterID string, limit int) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.tasks {
		if t.PosterID == posterID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListOpenExpiredTasks(_ context.Context, before time.Time, limit int) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.tasks {
		if t.State == task.Open && t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AppendStateLog(_ context.Context, entry task.StateLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.stateLog) + 1)
	entry.CreatedAt = time.Now().UTC()
	s.stateLog = append(s.stateLog, entry)
	return nil
}

func (s *Store) ListStateLog(_ context.Context, taskID string) ([]task.StateLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.StateLogEntry
	for _, e := range s.stateLog {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}
