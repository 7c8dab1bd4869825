package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"

	"github.com/xenking/hdcontrol/internal/domain/user"
)

// ErrUnauthorized is returned for missing, unknown or inactive API keys.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the stored record of an API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  int64
}

// Repository provides lookup of active API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	Create(ctx context.Context, info *APIKeyInfo) error
}

// Identity is the authenticated caller. Handlers pass it explicitly to the
// operations that scope by owner.
type Identity struct {
	UserID int64
	Email  string
	Roles  []string
}

// Has reports whether the caller holds authority.
func (id Identity) Has(authority string) bool {
	for _, r := range id.Roles {
		if r == authority {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the caller may act on every user's data.
func (id Identity) IsAdmin() bool {
	return id.Has(user.RoleAdmin) || id.Has(user.RoleOperator)
}

// Authenticator resolves raw API keys to identities.
type Authenticator struct {
	keys   Repository
	users  user.Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given HMAC pepper.
func NewAuthenticator(keys Repository, users user.Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, users: users, pepper: pepper}
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, as stored in the
// api_keys table.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate looks the key up by hash and loads its owner.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (Identity, error) {
	if key == "" {
		return Identity{}, ErrUnauthorized
	}

	hexHash := HashKey(a.pepper, key)
	info, err := a.keys.FindByHash(ctx, hexHash)
	if err != nil {
		return Identity{}, ErrUnauthorized
	}

	// The row was found by hash; compare anyway so a wrong row can never
	// authenticate.
	computed, _ := hex.DecodeString(hexHash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return Identity{}, ErrUnauthorized
	}

	u, err := a.users.GetByID(ctx, info.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, errors.Wrap(err, "load key owner")
	}

	roles := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		roles[i] = r.Authority
	}
	return Identity{UserID: u.ID, Email: u.Email, Roles: roles}, nil
}
