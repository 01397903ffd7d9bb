// Package lifecycle defines the Service contract shared by every worker and
// long-running component, and a Manager that starts/stops them in
// registration order (and reverse order on shutdown).
package lifecycle

import (
	"context"
	"fmt"
)

// Service is implemented by every worker, poller and reaper loop.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager owns a set of Services and coordinates their start/stop order.
type Manager struct {
	services []Service
	started  []Service
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a service to be started by Start, in registration order.
func (m *Manager) Register(s Service) {
	m.services = append(m.services, s)
}

// Start starts every registered service in order, stopping whatever already
// started if one fails.
func (m *Manager) Start(ctx context.Context) error {
	for _, s := range m.services {
		if err := s.Start(ctx); err != nil {
			_ = m.Stop(ctx)
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
		m.started = append(m.started, s)
	}
	return nil
}

// Stop stops every started service in reverse order, collecting but not
// short-circuiting on individual failures.
func (m *Manager) Stop(ctx context.Context) error {
	var firstErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		s := m.started[i]
		if err := s.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", s.Name(), err)
		}
	}
	m.started = nil
	return firstErr
}
