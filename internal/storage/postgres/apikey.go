package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, user_id
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	createAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, user_id) VALUES ($1, $2, $3, $4)`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	db *DB
}

// NewAPIKeyRepository returns an APIKeyRepository that uses db.
func NewAPIKeyRepository(db *DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	var (
		info auth.APIKeyInfo
		id   uuid.UUID
	)
	err := r.db.conn(ctx).QueryRow(ctx, getAPIKeyByHashSQL, hash).Scan(
		&id, &info.KeyHash, &info.Name, &info.UserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("api key not found: %w", auth.ErrUnauthorized)
		}
		return nil, fmt.Errorf("finding api key by hash: %w", classify(err, 0))
	}
	info.ID = id.String()
	return &info, nil
}

// Create stores a new active key for info.UserID, generating its ID when unset.
func (r *APIKeyRepository) Create(ctx context.Context, info *auth.APIKeyInfo) error {
	id := uuid.New()
	if info.ID != "" {
		parsed, err := uuid.Parse(info.ID)
		if err != nil {
			return apperr.Wrap(apperr.KindInvalidArgument, err, "api key id")
		}
		id = parsed
	}
	if _, err := r.db.conn(ctx).Exec(ctx, createAPIKeySQL, id, info.KeyHash, info.Name, info.UserID); err != nil {
		return fmt.Errorf("creating api key %q: %w", info.Name, classify(err, apperr.KindReferenceNotFound))
	}
	info.ID = id.String()
	return nil
}
