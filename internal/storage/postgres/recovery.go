package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hdcontrol/internal/domain/recovery"
)

const (
	createTokenSQL = `INSERT INTO password_recover_tokens (email, token, expiration)
		VALUES ($1, $2, $3) RETURNING id`

	findValidTokenSQL = `SELECT id, email, token, expiration, consumed_at
		FROM password_recover_tokens
		WHERE token = $1 AND consumed_at IS NULL AND expiration > $2
		FOR UPDATE`

	consumeTokenSQL = `UPDATE password_recover_tokens SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL`
)

var _ recovery.Repository = (*TokenRepository)(nil)

// TokenRepository implements recovery.Repository backed by PostgreSQL.
type TokenRepository struct {
	db *DB
}

// NewTokenRepository returns a TokenRepository that uses db.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Create(ctx context.Context, t *recovery.Token) error {
	err := r.db.conn(ctx).QueryRow(ctx, createTokenSQL, t.Email, t.Token, t.Expiration).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("creating recovery token: %w", classify(err, 0))
	}
	return nil
}

// FindValid locks and returns the unconsumed, unexpired token.
func (r *TokenRepository) FindValid(ctx context.Context, token string, now time.Time) (*recovery.Token, error) {
	rows, err := r.db.conn(ctx).Query(ctx, findValidTokenSQL, token, now)
	if err != nil {
		return nil, fmt.Errorf("finding recovery token: %w", classify(err, 0))
	}
	t, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (recovery.Token, error) {
		var t recovery.Token
		err := row.Scan(&t.ID, &t.Email, &t.Token, &t.Expiration, &t.ConsumedAt)
		return t, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, recovery.ErrInvalidToken
		}
		return nil, fmt.Errorf("finding recovery token: %w", classify(err, 0))
	}
	return &t, nil
}

func (r *TokenRepository) MarkConsumed(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.conn(ctx).Exec(ctx, consumeTokenSQL, id, at)
	if err != nil {
		return fmt.Errorf("consuming recovery token %d: %w", id, classify(err, 0))
	}
	if tag.RowsAffected() == 0 {
		return recovery.ErrInvalidToken
	}
	return nil
}
