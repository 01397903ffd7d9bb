package workers

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/hustlexp/core/pkg/logger"
)

// CronWorker drives one CronHandler on a cron schedule rather than an
// outbox queue — the shape Proof-Expiry requires (spec §4.8: a periodic
// sweep, not an event reaction).
type CronWorker struct {
	name   string
	spec   string
	handle CronHandler
	log    *logger.Logger

	cron *cron.Cron
}

// NewCronWorker constructs a CronWorker that fires handle on spec (standard
// five-field cron syntax).
func NewCronWorker(name, spec string, handle CronHandler, log *logger.Logger) *CronWorker {
	return &CronWorker{name: name, spec: spec, handle: handle, log: log}
}

// Name identifies the worker for lifecycle.Manager logging.
func (w *CronWorker) Name() string { return w.name }

// Start schedules the handler and begins the cron's own goroutine.
func (w *CronWorker) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(w.spec, func() {
		if err := w.handle(ctx); err != nil {
			w.log.WithError(err).WithField("worker", w.name).Warn("cron handler failed")
		}
	}); err != nil {
		return err
	}
	w.cron = c
	c.Start()
	w.log.WithField("worker", w.name).WithField("spec", w.spec).Info("cron worker started")
	return nil
}

// Stop halts the scheduler and waits for any in-flight run to finish.
func (w *CronWorker) Stop(ctx context.Context) error {
	if w.cron == nil {
		return nil
	}
	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}
