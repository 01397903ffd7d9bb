package lifecycle

import (
	"context"
	"errors"
	"testing"
)

type fakeService struct {
	name        string
	startErr    error
	started     *bool
	stopped     *bool
	startOrder  *[]string
	stopOrder   *[]string
}

func (f fakeService) Name() string { return f.name }
func (f fakeService) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.started = true
	*f.startOrder = append(*f.startOrder, f.name)
	return nil
}
func (f fakeService) Stop(ctx context.Context) error {
	*f.stopped = true
	*f.stopOrder = append(*f.stopOrder, f.name)
	return nil
}

func TestManagerStartsAndStopsInOrder(t *testing.T) {
	var aStarted, bStarted, aStopped, bStopped bool
	var startOrder, stopOrder []string

	m := NewManager()
	m.Register(fakeService{name: "a", started: &aStarted, stopped: &aStopped, startOrder: &startOrder, stopOrder: &stopOrder})
	m.Register(fakeService{name: "b", started: &bStarted, stopped: &bStopped, startOrder: &startOrder, stopOrder: &stopOrder})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !aStarted || !bStarted {
		t.Fatal("expected both services started")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !aStopped || !bStopped {
		t.Fatal("expected both services stopped")
	}
	if startOrder[0] != "a" || startOrder[1] != "b" {
		t.Fatalf("unexpected start order: %v", startOrder)
	}
	if stopOrder[0] != "b" || stopOrder[1] != "a" {
		t.Fatalf("unexpected stop order (should be reverse): %v", stopOrder)
	}
}

func TestManagerStopsAlreadyStartedOnFailure(t *testing.T) {
	var aStarted, aStopped bool
	var startOrder, stopOrder []string

	m := NewManager()
	m.Register(fakeService{name: "a", started: &aStarted, stopped: &aStopped, startOrder: &startOrder, stopOrder: &stopOrder})
	m.Register(fakeService{name: "b", startErr: errors.New("boom")})

	err := m.Start(context.Background())
	if err == nil {
		t.Fatal("expected start error")
	}
	if !aStopped {
		t.Fatal("expected already-started service a to be stopped on failure")
	}
}
