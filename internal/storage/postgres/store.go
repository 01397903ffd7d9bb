// Package postgres implements the storage interfaces against PostgreSQL
// using database/sql and lib/pq, following the same hand-written-SQL,
// $-placeholder style the rest of this codebase uses for its stores.
package postgres

import (
	"context"
	"database/sql"

	"github.com/hustlexp/core/internal/platform/txrunner"
	"github.com/hustlexp/core/internal/storage"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, letting the same Store
// methods run inside or outside an explicit transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements every storage interface backed by a pooled *sql.DB. Any
// method called with a context carrying an in-flight transaction (set by
// txrunner.Runner around a Tx/SerializableTx callback) runs against that
// transaction instead of the pool, so a service can compose several store
// calls into one atomic unit of work without threading a *sql.Tx through
// every function signature by hand.
type Store struct {
	pool *sql.DB
	db   DBTX
}

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{pool: db, db: &ctxBoundDB{pool: db}}
}

// ctxBoundDB resolves to the transaction in ctx (via txrunner.TxFromContext)
// when one is present, and to the pooled *sql.DB otherwise.
type ctxBoundDB struct {
	pool *sql.DB
}

func (c *ctxBoundDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if tx, ok := txrunner.TxFromContext(ctx); ok {
		return tx.ExecContext(ctx, query, args...)
	}
	return c.pool.ExecContext(ctx, query, args...)
}

func (c *ctxBoundDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx, ok := txrunner.TxFromContext(ctx); ok {
		return tx.QueryContext(ctx, query, args...)
	}
	return c.pool.QueryContext(ctx, query, args...)
}

func (c *ctxBoundDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if tx, ok := txrunner.TxFromContext(ctx); ok {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return c.pool.QueryRowContext(ctx, query, args...)
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
