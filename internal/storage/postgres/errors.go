package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeStringTooLong        = "22001"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// classify attaches a domain kind to driver failures. onForeignKey is the
// kind for a foreign key violation: a missing reference on insert, a
// conflict on delete. Errors that already carry a kind pass through.
func classify(err error, onForeignKey apperr.Kind) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperr.Wrap(apperr.KindConflict, err, "duplicate "+pgErr.ConstraintName)
		case codeForeignKeyViolation:
			if onForeignKey == apperr.KindUnknown {
				onForeignKey = apperr.KindConflict
			}
			return apperr.Wrap(onForeignKey, err, "violates "+pgErr.ConstraintName)
		case codeCheckViolation, codeStringTooLong:
			return apperr.Wrap(apperr.KindInvalidArgument, err, "rejected by store")
		case codeSerializationFailure, codeDeadlockDetected:
			return apperr.Wrap(apperr.KindUnavailable, err, "transaction aborted")
		}
		return err
	}

	var connErr *pgconn.ConnectError
	switch {
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return apperr.Wrap(apperr.KindUnavailable, err, "store timeout")
	case errors.As(err, &connErr):
		return apperr.Wrap(apperr.KindUnavailable, err, "store unreachable")
	}
	return err
}
