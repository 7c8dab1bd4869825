package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/xenking/hdcontrol/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository.
type APIKeyRepository struct {
	s *Store
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var out *auth.APIKeyInfo
	err := r.s.do(ctx, func(st *state) error {
		info, ok := st.apiKeys[hash]
		if !ok {
			return auth.ErrUnauthorized
		}
		out = &info
		return nil
	})
	return out, err
}

func (r *APIKeyRepository) Create(ctx context.Context, info *auth.APIKeyInfo) error {
	return r.s.do(ctx, func(st *state) error {
		if info.ID == "" {
			info.ID = uuid.NewString()
		}
		st.apiKeys[info.KeyHash] = *info
		return nil
	})
}
