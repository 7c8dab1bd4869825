// Package store declares the transaction boundary the domain services run in.
package store

import "context"

// Transactor runs a function inside one atomic unit of work against the
// backing store. The context passed to fn carries the transaction; every
// repository call made with it participates. Calls made while a transaction
// is already present in ctx join it instead of opening a new one.
type Transactor interface {
	// InTx runs fn read-write. If fn returns an error every write made
	// through its context is rolled back.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// InReadTx runs fn against a consistent read-only snapshot.
	InReadTx(ctx context.Context, fn func(ctx context.Context) error) error
}
