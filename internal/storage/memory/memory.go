// Package memory is a thread-safe in-memory persistence layer implementing
// the storage interfaces, for unit tests that exercise service logic without
// a real PostgreSQL connection.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/hustlexp/core/internal/domain/correction"
	"github.com/hustlexp/core/internal/domain/ledger"
	"github.com/hustlexp/core/internal/domain/money"
	"github.com/hustlexp/core/internal/domain/outbox"
	"github.com/hustlexp/core/internal/domain/proof"
	"github.com/hustlexp/core/internal/domain/task"
	"github.com/hustlexp/core/internal/domain/user"
	"github.com/hustlexp/core/internal/storage"
)

// Store is a thread-safe in-memory implementation of every storage
// interface, deliberately kept simple the way the upstream Memory store is.
type Store struct {
	mu sync.RWMutex

	users        map[string]user.User
	tasks        map[string]task.Task
	stateLog     []task.StateLogEntry
	locks        map[string]money.Lock
	moneyEvents  map[string]money.Event
	proofs       map[string]proof.Proof
	xpEntries    map[string]ledger.XPEntry
	trustEntries map[string]ledger.TrustEntry
	outboxEvents map[string]outbox.Event
	corrections  map[string]correction.Correction
	outcomes     map[string]correction.Outcome
	flags        map[string]string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[string]user.User),
		tasks:        make(map[string]task.Task),
		locks:        make(map[string]money.Lock),
		moneyEvents:  make(map[string]money.Event),
		proofs:       make(map[string]proof.Proof),
		xpEntries:    make(map[string]ledger.XPEntry),
		trustEntries: make(map[string]ledger.TrustEntry),
		outboxEvents: make(map[string]outbox.Event),
		corrections:  make(map[string]correction.Correction),
		outcomes:     make(map[string]correction.Outcome),
		flags:        make(map[string]string),
	}
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.MoneyStore = (*Store)(nil)
var _ storage.ProofStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.OutboxStore = (*Store)(nil)
var _ storage.CorrectionStore = (*Store)(nil)
var _ storage.SystemFlagStore = (*Store)(nil)
var _ storage.AdminAuditStore = (*Store)(nil)

// --- UserStore ---------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) ListActiveUsers(_ context.Context, limit int) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []user.User
	for _, u := range s.users {
		if u.ArchivedAt == nil {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
