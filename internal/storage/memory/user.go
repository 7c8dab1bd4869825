package memory

import (
	"context"
	"strings"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository.
type UserRepository struct {
	s *Store
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var out *user.User
	err := r.s.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return user.ErrNotFound
		}
		u.Roles = append([]user.Role(nil), u.Roles...)
		out = &u
		return nil
	})
	return out, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	var out *user.User
	err := r.s.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				u.Roles = append([]user.Role(nil), u.Roles...)
				out = &u
				return nil
			}
		}
		return user.ErrNotFound
	})
	return out, err
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.s.do(ctx, func(st *state) error {
		_, ok = st.users[id]
		return nil
	})
	return ok, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return r.s.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return user.ErrNotFound
		}
		u.PasswordHash = hash
		st.users[id] = u
		return nil
	})
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	return r.s.do(ctx, func(st *state) error {
		if err := st.checkEmail(u.Email, 0); err != nil {
			return err
		}
		roles, err := st.grants(u.Roles)
		if err != nil {
			return err
		}
		u.ID = st.next("users")
		u.Roles = roles
		stored := *u
		stored.Roles = append([]user.Role(nil), roles...)
		st.users[u.ID] = stored
		return nil
	})
}

func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	return r.s.do(ctx, func(st *state) error {
		stored, ok := st.users[u.ID]
		if !ok {
			return user.ErrNotFound
		}
		if err := st.checkEmail(u.Email, u.ID); err != nil {
			return err
		}
		if u.Roles != nil {
			roles, err := st.grants(u.Roles)
			if err != nil {
				return err
			}
			stored.Roles = roles
		}
		stored.FirstName = u.FirstName
		stored.LastName = u.LastName
		stored.Email = u.Email
		stored.Phone = u.Phone
		st.users[u.ID] = stored

		u.PasswordHash = stored.PasswordHash
		u.Roles = append([]user.Role(nil), stored.Roles...)
		return nil
	})
}

func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.users[id]; !ok {
			return user.ErrNotFound
		}
		for _, o := range st.orders {
			if o.UserID == id {
				return apperr.New(apperr.KindConflict, "user %d still owns orders", id)
			}
		}
		for hash, k := range st.apiKeys {
			if k.UserID == id {
				delete(st.apiKeys, hash)
			}
		}
		delete(st.users, id)
		return nil
	})
}

func (r *UserRepository) List(ctx context.Context, req page.Request) (page.Page[user.User], error) {
	var out page.Page[user.User]
	err := r.s.do(ctx, func(st *state) error {
		all := sortedValues(st.users)
		for i := range all {
			all[i].Roles = append([]user.Role(nil), all[i].Roles...)
		}
		out = page.Slice(all, req)
		return nil
	})
	return out, err
}

// checkEmail rejects an e-mail registered to a user other than self.
func (st *state) checkEmail(email string, self int64) error {
	for id, existing := range st.users {
		if id != self && strings.EqualFold(existing.Email, email) {
			return apperr.New(apperr.KindConflict, "email %q already registered", email)
		}
	}
	return nil
}

// grants resolves authorities to the seeded roles.
func (st *state) grants(want []user.Role) ([]user.Role, error) {
	roles := make([]user.Role, 0, len(want))
	for _, w := range want {
		found := false
		for _, r := range st.roles {
			if r.Authority == w.Authority {
				roles = append(roles, r)
				found = true
				break
			}
		}
		if !found {
			return nil, apperr.New(apperr.KindConflict, "unknown authority %q", w.Authority)
		}
	}
	return roles, nil
}
