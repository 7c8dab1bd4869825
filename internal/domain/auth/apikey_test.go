package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/hdcontrol/internal/domain/auth"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/storage/memory"
)

var pepper = []byte("test-pepper")

func TestHashKey(t *testing.T) {
	a := auth.HashKey(pepper, "key-1")
	assert.Len(t, a, 64)
	assert.Equal(t, a, auth.HashKey(pepper, "key-1"))
	assert.NotEqual(t, a, auth.HashKey(pepper, "key-2"))
	assert.NotEqual(t, a, auth.HashKey([]byte("other"), "key-1"))
}

func TestAuthenticator_Authenticate(t *testing.T) {
	ctx := context.Background()
	st := memory.New()

	admin := &user.User{Email: "admin@example.com", Roles: []user.Role{{Authority: user.RoleAdmin}}}
	client := &user.User{Email: "client@example.com", Roles: []user.Role{{Authority: user.RoleClient}}}
	require.NoError(t, st.Users().Create(ctx, admin))
	require.NoError(t, st.Users().Create(ctx, client))

	keys := st.APIKeys()
	require.NoError(t, keys.Create(ctx, &auth.APIKeyInfo{KeyHash: auth.HashKey(pepper, "admin-key"), Name: "ops", UserID: admin.ID}))
	require.NoError(t, keys.Create(ctx, &auth.APIKeyInfo{KeyHash: auth.HashKey(pepper, "client-key"), Name: "app", UserID: client.ID}))
	require.NoError(t, keys.Create(ctx, &auth.APIKeyInfo{KeyHash: auth.HashKey(pepper, "orphan-key"), Name: "gone", UserID: 99}))

	a := auth.NewAuthenticator(keys, st.Users(), pepper)

	id, err := a.Authenticate(ctx, "admin-key")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, id.UserID)
	assert.True(t, id.IsAdmin())

	id, err = a.Authenticate(ctx, "client-key")
	require.NoError(t, err)
	assert.Equal(t, "client@example.com", id.Email)
	assert.False(t, id.IsAdmin())
	assert.True(t, id.Has(user.RoleClient))

	for _, key := range []string{"", "wrong-key", "orphan-key"} {
		_, err := a.Authenticate(ctx, key)
		assert.ErrorIs(t, err, auth.ErrUnauthorized, key)
	}
}
