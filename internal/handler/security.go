package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "api_key"

type identityKey struct{}

func withIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// identityFrom returns the caller resolved by authenticate.
func identityFrom(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// authenticate resolves the api_key header to an identity.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := h.auth.Authenticate(r.Context(), r.Header.Get(HeaderAPIKey))
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := withIdentity(r.Context(), id)
		ctx = zctx.With(ctx, zap.Int64("caller_id", id.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type role func(auth.Identity) bool

var (
	roleAdmin role = func(id auth.Identity) bool { return id.Has(user.RoleAdmin) }
	roleStaff role = auth.Identity.IsAdmin
)

// requireRole rejects authenticated callers that lack the role.
func requireRole(allowed role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := identityFrom(r.Context())
			if !ok {
				writeError(w, r, auth.ErrUnauthorized)
				return
			}
			if !allowed(id) {
				writeError(w, r, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ownerScope returns the user id a caller's order reads are limited to, or
// nil for staff.
func ownerScope(ctx context.Context) *int64 {
	id, ok := identityFrom(ctx)
	if !ok || id.IsAdmin() {
		return nil
	}
	uid := id.UserID
	return &uid
}
