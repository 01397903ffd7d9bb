// Package eventbus LISTENs on PostgreSQL NOTIFY channels and invokes the
// handlers subscribed to each, which internal/app uses to wake Worker Fleet
// pollers. It only receives notifications; nothing in this package sends
// one. This is a latency optimization only: C7's claim-by-poll loop is
// correct without it.
package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Bus listens on a fixed set of channels and fans out notifications to
// subscribed handlers.
type Bus struct {
	listener *pq.Listener

	mu       sync.RWMutex
	handlers map[string][]func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New opens a listener connection against dsn. reportProblem mirrors
// pq.Listener's own diagnostic callback signature.
func New(dsn string, reportProblem func(pq.ListenerEventType, error)) *Bus {
	if reportProblem == nil {
		reportProblem = func(pq.ListenerEventType, error) {}
	}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem)

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		listener: listener,
		handlers: make(map[string][]func()),
		cancel:   cancel,
	}
	b.wg.Add(1)
	go b.loop(ctx)
	return b
}

// OutboxChannel names an outbox NOTIFY channel. Nothing in this repository
// sends on it or subscribes to it; internal/app subscribes the pollers to
// "outbox_events" instead.
const OutboxChannel = "hustlexp_outbox"

// OnNotify subscribes fn to be invoked (without payload data; the outbox
// pattern only needs a wake-up pulse, not event content over the channel)
// whenever channel receives a notification.
func (b *Bus) OnNotify(channel string, fn func()) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.handlers[channel]) == 0 {
		if err := b.listener.Listen(channel); err != nil {
			return fmt.Errorf("eventbus: listen %s: %w", channel, err)
		}
	}
	b.handlers[channel] = append(b.handlers[channel], fn)
	return nil
}

func (b *Bus) loop(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.listener.Notify:
			if n == nil {
				continue
			}
			b.mu.RLock()
			fns := append([]func(){}, b.handlers[n.Channel]...)
			b.mu.RUnlock()
			for _, fn := range fns {
				fn()
			}
		}
	}
}

// Close stops the listener goroutine and releases the connection.
func (b *Bus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.listener.Close()
}
