// Package realtime implements the in-process client-session registry the
// Realtime-Fanout worker (C8) dispatches through. The actual transport to a
// mobile client is an external collaborator (spec §1 Non-goals: "no
// realtime transport implementation"); this package is only the fan-out
// contract: per-user channels, membership-checked publish, and close-on-
// write-failure session eviction.
package realtime

import (
	"sync"
)

// Event is one realtime message delivered to a subscribed session.
type Event struct {
	Type    string
	TaskID  string
	Payload []byte
}

// Registry is a thread-safe map of userID to that user's active sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

// Session is one subscribed client connection's delivery channel.
type Session struct {
	userID string
	ch     chan Event
	once   sync.Once
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]map[*Session]struct{})}
}

// Register opens a new session for userID with a bounded delivery buffer.
func (r *Registry) Register(userID string) *Session {
	s := &Session{userID: userID, ch: make(chan Event, 32)}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == nil {
		r.sessions[userID] = make(map[*Session]struct{})
	}
	r.sessions[userID][s] = struct{}{}
	return s
}

// Close evicts the session; safe to call more than once.
func (r *Registry) Close(s *Session) {
	s.once.Do(func() { close(s.ch) })
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions[s.userID], s)
	if len(r.sessions[s.userID]) == 0 {
		delete(r.sessions, s.userID)
	}
}

// Recv returns the session's delivery channel.
func (s *Session) Recv() <-chan Event { return s.ch }

// Publish delivers ev to every active session of userID. A session whose
// buffer is full is closed rather than blocked on, mirroring the contract
// that write failures mark the session closed for the client to reconnect.
func (r *Registry) Publish(userID string, ev Event) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions[userID]))
	for s := range r.sessions[userID] {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		select {
		case s.ch <- ev:
		default:
			r.Close(s)
		}
	}
}
