package memory

import (
	"context"
	"time"

	"github.com/xenking/hdcontrol/internal/domain/recovery"
)

var _ recovery.Repository = (*TokenRepository)(nil)

// TokenRepository implements recovery.Repository.
type TokenRepository struct {
	s *Store
}

func (r *TokenRepository) Create(ctx context.Context, t *recovery.Token) error {
	return r.s.do(ctx, func(st *state) error {
		t.ID = st.next("tokens")
		st.tokens[t.ID] = *t
		return nil
	})
}

func (r *TokenRepository) FindValid(ctx context.Context, token string, now time.Time) (*recovery.Token, error) {
	var out *recovery.Token
	err := r.s.do(ctx, func(st *state) error {
		for _, t := range st.tokens {
			if t.Token == token && t.ConsumedAt == nil && t.Expiration.After(now) {
				out = &t
				return nil
			}
		}
		return recovery.ErrInvalidToken
	})
	return out, err
}

func (r *TokenRepository) MarkConsumed(ctx context.Context, id int64, at time.Time) error {
	return r.s.do(ctx, func(st *state) error {
		t, ok := st.tokens[id]
		if !ok || t.ConsumedAt != nil {
			return recovery.ErrInvalidToken
		}
		t.ConsumedAt = &at
		st.tokens[id] = t
		return nil
	})
}
