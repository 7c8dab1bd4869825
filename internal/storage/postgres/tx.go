package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/hdcontrol/internal/domain/store"
)

var _ store.Transactor = (*DB)(nil)

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

type txKey struct{}

// DB runs repository queries on the pool, or on the transaction carried by
// the context when there is one.
type DB struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewDB wraps pool. Every transaction is bounded by timeout; zero disables
// the bound.
func NewDB(pool *pgxpool.Pool, timeout time.Duration) *DB {
	return &DB{pool: pool, timeout: timeout}
}

// Pool returns the underlying pool.
func (d *DB) Pool() *pgxpool.Pool { return d.pool }

func (d *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.pool
}

func (d *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.run(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, fn)
}

func (d *DB) InReadTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return d.run(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, fn)
}

func (d *DB) run(ctx context.Context, opts pgx.TxOptions, fn func(ctx context.Context) error) (rerr error) {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return errors.Wrap(classify(err, 0), "begin")
	}
	defer func() {
		if rerr != nil {
			// Rollback on a broken connection fails too; the cause is already in rerr.
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return classify(err, 0)
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(classify(err, 0), "commit")
	}
	return nil
}
