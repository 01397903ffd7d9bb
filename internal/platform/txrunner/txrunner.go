// Package txrunner is the Transaction Runtime (C2): it wraps work units in
// database transactions and retries on serialization failure or deadlock
// with jittered exponential backoff.
package txrunner

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	"github.com/lib/pq"

	"github.com/hustlexp/core/internal/domain/apperr"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Config controls retry behaviour. Defaults mirror the specification: 5
// attempts, 50ms base delay, 2s cap.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultConfig returns the specification's defaults.
func DefaultConfig() Config {
	return Config{MaxAttempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: 2 * time.Second}
}

type txCtxKey struct{}

// TxFromContext returns the *sql.Tx the current Tx/SerializableTx callback
// is running under, if any. Storage implementations use this to run their
// queries against the in-flight transaction instead of the pooled *sql.DB
// without every call site having to thread a *sql.Tx through explicitly.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txCtxKey{}).(*sql.Tx)
	return tx, ok
}

type noRetryKey struct{}

// WithNoRetry disables retry for callers that manage their own idempotency,
// such as the single provider-call window in the Money State Machine.
func WithNoRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func noRetryRequested(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}

// Runner executes units of work inside transactions against a *sql.DB.
type Runner struct {
	db  *sql.DB
	cfg Config
}

// New builds a Runner with the given retry configuration.
func New(db *sql.DB, cfg Config) *Runner {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	return &Runner{db: db, cfg: cfg}
}

// Tx runs f in a READ COMMITTED transaction, retrying on serialization
// failure/deadlock per cfg.
func (r *Runner) Tx(ctx context.Context, f func(ctx context.Context, tx *sql.Tx) error) error {
	return r.run(ctx, sql.LevelReadCommitted, f)
}

// SerializableTx runs f in a SERIALIZABLE transaction, used by the Money and
// Ledger services and any writer that emits outbox rows alongside a domain
// mutation.
func (r *Runner) SerializableTx(ctx context.Context, f func(ctx context.Context, tx *sql.Tx) error) error {
	return r.run(ctx, sql.LevelSerializable, f)
}

func (r *Runner) run(ctx context.Context, level sql.IsolationLevel, f func(ctx context.Context, tx *sql.Tx) error) error {
	attempts := 1
	if !noRetryRequested(ctx) {
		attempts = r.cfg.MaxAttempts
	}

	var lastErr error
	delay := r.cfg.BaseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay)):
			}
			delay = nextDelay(delay, r.cfg.MaxDelay)
		}

		err := r.runOnce(ctx, level, f)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryablePG(err) {
			return err
		}
	}
	return lastErr
}

func (r *Runner) runOnce(ctx context.Context, level sql.IsolationLevel, f func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: level})
	if err != nil {
		return apperr.Wrap(apperr.Internal, "TX_BEGIN_FAILED", "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	ctx = context.WithValue(ctx, txCtxKey{}, tx)

	if err := f(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			// Rollback itself failed; preserve the original error per C2's
			// "rollback is best-effort" contract but surface both for ops.
			return apperr.Wrap(apperr.Internal, "TX_ROLLBACK_FAILED", "rollback failed after: "+err.Error(), rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isRetryablePG(err) {
			return apperr.RetryableWrap(err)
		}
		return apperr.Wrap(apperr.Internal, "TX_COMMIT_FAILED", "commit transaction", err)
	}
	return nil
}

func isRetryablePG(err error) bool {
	if apperr.IsRetryable(err) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgSerializationFailure || string(pqErr.Code) == pgDeadlockDetected
	}
	return false
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func addJitter(d time.Duration) time.Duration {
	// +/-20% jitter around d.
	delta := float64(d) * 0.2
	return d + time.Duration(rand.Float64()*delta*2-delta)
}
