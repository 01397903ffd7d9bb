// Package workers implements the Worker Fleet (C8): one single-poller
// lifecycle.Service per outbox queue, each claiming a small batch of due
// rows with storage's SELECT ... FOR UPDATE SKIP LOCKED, handing them to a
// queue-specific Handler, and acking/nacking with jittered backoff.
package workers

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hustlexp/core/internal/domain/outbox"
	outboxsvc "github.com/hustlexp/core/internal/services/outbox"
	"github.com/hustlexp/core/pkg/logger"
)

// Handler processes a single claimed outbox event. A returned error marks
// the event for retry (or dead-lettering past maxAttempts); nil acks it.
type Handler func(ctx context.Context, e outbox.Event) error

// maxAttempts bounds how many times an event is retried before it is
// dead-lettered for the DLQ processor (C9) to triage.
const maxAttempts = 8

// backoffBase and backoffCap bound the jittered retry delay applied to a
// failed event's next_attempt_at, mirroring C2's transaction retry shape.
const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 5 * time.Minute
)

// Poller is a single-queue worker: it polls one outbox queue on a fixed
// interval, claims a bounded batch, and runs each claimed event through its
// Handler.
type Poller struct {
	name     string
	consumer *outboxsvc.Consumer
	handle   Handler
	interval time.Duration
	batch    int
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	wake    chan struct{}
}

// NewPoller constructs a Poller driving consumer.
func NewPoller(name string, consumer *outboxsvc.Consumer, handle Handler, interval time.Duration, batch int, log *logger.Logger) *Poller {
	if batch <= 0 {
		batch = 10
	}
	return &Poller{name: name, consumer: consumer, handle: handle, interval: interval, batch: batch, log: log, wake: make(chan struct{}, 1)}
}

// Wake requests an immediate tick ahead of the fixed interval; internal/app
// calls it on each eventbus notification received on the outbox channel. A
// pending wake already queued is not duplicated.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

var _ interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
} = (*Poller)(nil)

// Name identifies the worker for lifecycle.Manager logging.
func (p *Poller) Name() string { return p.name }

// Start begins the polling loop in a background goroutine.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			case <-p.wake:
				p.tick(runCtx)
			}
		}
	}()

	p.log.WithField("queue", string(p.consumer.Queue())).Info("worker started")
	return nil
}

// Stop cancels the polling loop and waits for the in-flight tick to finish.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	return nil
}

// tick claims one batch and processes it sequentially; claimed rows are
// SKIP LOCKED so concurrent poller instances never duplicate work.
func (p *Poller) tick(ctx context.Context) {
	events, err := p.consumer.Claim(ctx, p.batch)
	if err != nil {
		p.log.WithError(err).WithField("queue", string(p.consumer.Queue())).Warn("claim failed")
		return
	}
	if len(events) > 0 {
		eventsClaimed.WithLabelValues(string(p.consumer.Queue())).Add(float64(len(events)))
	}
	for _, e := range events {
		p.process(ctx, e)
	}
}

func (p *Poller) process(ctx context.Context, e outbox.Event) {
	if err := p.handle(ctx, e); err != nil {
		p.log.WithError(err).WithField("event_id", e.ID).WithField("queue", string(p.consumer.Queue())).Warn("handler failed")
		if e.Attempts >= maxAttempts {
			if dlqErr := p.consumer.Dead(ctx, e.ID, err.Error()); dlqErr != nil {
				p.log.WithError(dlqErr).Warn("failed to dead-letter event")
			} else {
				eventsDead.WithLabelValues(string(p.consumer.Queue())).Inc()
			}
			return
		}
		// Exponential in attempts with +/-20% jitter, capped at backoffCap.
		delay := time.Duration(float64(backoffBase<<uint(e.Attempts)) * (0.8 + 0.4*rand.Float64()))
		if delay > backoffCap || delay <= 0 {
			delay = backoffCap
		}
		if markErr := p.consumer.Nack(ctx, e.ID, time.Now().UTC().Add(delay), err.Error()); markErr != nil {
			p.log.WithError(markErr).Warn("failed to reschedule event")
		} else {
			eventsNacked.WithLabelValues(string(p.consumer.Queue())).Inc()
		}
		return
	}
	if ackErr := p.consumer.Ack(ctx, e.ID); ackErr != nil {
		p.log.WithError(ackErr).WithField("event_id", e.ID).Warn("failed to ack event")
	} else {
		eventsAcked.WithLabelValues(string(p.consumer.Queue())).Inc()
	}
}
