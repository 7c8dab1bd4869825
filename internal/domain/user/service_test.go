package user_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/user"
	"github.com/xenking/hdcontrol/internal/storage/memory"
)

func newService(t *testing.T) (*user.Service, *memory.Store, user.Hasher) {
	t.Helper()
	st := memory.New()
	h := user.NewBcryptHasher(bcrypt.MinCost)
	return user.NewService(st, st.Users(), h), st, h
}

func ana() user.Input {
	return user.Input{
		FirstName: "Ana",
		LastName:  "Lima",
		Email:     "ana@example.com",
		Phone:     "+55 11 5555-0000",
		Password:  "correct horse",
	}
}

func authorities(u *user.User) []string {
	out := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		out[i] = r.Authority
	}
	return out
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, _, h := newService(t)

	u, err := svc.Create(ctx, ana())
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, []string{user.RoleClient}, authorities(u), "clients by default")
	assert.True(t, h.Verify(u.PasswordHash, "correct horse"))

	in := ana()
	in.Email = "Bia@Example.com"
	in.Roles = []string{user.RoleOperator, user.RoleAdmin}
	staff, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{user.RoleOperator, user.RoleAdmin}, authorities(staff))

	found, err := svc.Find(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", found.Email)
}

func TestService_Create_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	_, err := svc.Create(ctx, ana())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*user.Input)
		target error
	}{
		{name: "DuplicateEmail", mutate: func(in *user.Input) { in.Email = "ANA@example.com" }, target: apperr.ErrConflict},
		{name: "BadEmail", mutate: func(in *user.Input) { in.Email = "ana" }, target: apperr.ErrInvalidArgument},
		{name: "BlankName", mutate: func(in *user.Input) { in.Email = "x@example.com"; in.FirstName = " " }, target: apperr.ErrInvalidArgument},
		{name: "NoPassword", mutate: func(in *user.Input) { in.Email = "x@example.com"; in.Password = "" }, target: user.ErrPasswordRequired},
		{name: "ShortPassword", mutate: func(in *user.Input) { in.Email = "x@example.com"; in.Password = "short" }, target: apperr.ErrInvalidArgument},
		{name: "UnknownRole", mutate: func(in *user.Input) { in.Email = "x@example.com"; in.Roles = []string{"ROLE_ROOT"} }, target: apperr.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := ana()
			tt.mutate(&in)
			_, err := svc.Create(ctx, in)
			require.ErrorIs(t, err, tt.target)
		})
	}

	var taken *user.EmailTakenError
	_, err = svc.Create(ctx, ana())
	require.ErrorAs(t, err, &taken)
	assert.Equal(t, "ana@example.com", taken.Email)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	svc, _, h := newService(t)
	u, err := svc.Create(ctx, ana())
	require.NoError(t, err)

	in := ana()
	in.Email = "bia@example.com"
	_, err = svc.Create(ctx, in)
	require.NoError(t, err)

	in = ana()
	in.FirstName = "Ana Maria"
	in.Password = ""
	updated, err := svc.Update(ctx, u.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.FirstName)
	assert.Equal(t, []string{user.RoleClient}, authorities(updated), "roles kept when none are given")
	assert.True(t, h.Verify(updated.PasswordHash, "correct horse"), "password kept when none is given")

	in.Roles = []string{user.RoleOperator}
	in.Password = "battery staple"
	updated, err = svc.Update(ctx, u.ID, in)
	require.NoError(t, err)
	assert.Equal(t, []string{user.RoleOperator}, authorities(updated))
	assert.True(t, h.Verify(updated.PasswordHash, "battery staple"))

	in.Email = "bia@example.com"
	_, err = svc.Update(ctx, u.ID, in)
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = svc.Update(ctx, 999, ana())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newService(t)
	u, err := svc.Create(ctx, ana())
	require.NoError(t, err)

	o := &order.Order{ServiceDescription: "Repair", Status: order.StatusPending, UserID: u.ID}
	require.NoError(t, st.Orders().Create(ctx, o))
	require.ErrorIs(t, svc.Delete(ctx, u.ID), apperr.ErrConflict)

	require.NoError(t, st.Orders().Delete(ctx, o.ID))
	require.NoError(t, svc.Delete(ctx, u.ID))
	_, err = svc.Find(ctx, u.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, u.ID), apperr.ErrNotFound)
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newService(t)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		in := ana()
		in.Email = email
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}

	p, err := svc.List(ctx, page.Request{Number: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Total)
	require.Len(t, p.Items, 1)
	assert.Equal(t, "c@example.com", p.Items[0].Email)
	assert.Equal(t, []string{user.RoleClient}, authorities(&p.Items[0]))
}
