package user

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/store"
	"github.com/xenking/hdcontrol/internal/domain/validate"
)

// ErrPasswordRequired is returned when a new account has no password.
var ErrPasswordRequired = &apperr.Error{Kind: apperr.KindInvalidArgument, Msg: "Password is required"}

// Input holds the writable fields of an account. Roles lists authorities;
// empty means ROLE_CLIENT on create and "keep the current grants" on update.
// An empty Password on update keeps the current one.
type Input struct {
	FirstName string   `validate:"notblank,max=255"`
	LastName  string   `validate:"max=255"`
	Email     string   `validate:"required,email,max=255"`
	Phone     string   `validate:"max=50"`
	Password  string   `validate:"omitempty,min=8,max=72"`
	Roles     []string `validate:"dive,oneof=ROLE_ADMIN ROLE_OPERATOR ROLE_CLIENT"`
}

func (in Input) user() *User {
	u := &User{
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
	}
	for _, a := range in.Roles {
		u.Roles = append(u.Roles, Role{Authority: a})
	}
	return u
}

// Service manages accounts and their role grants.
type Service struct {
	tx     store.Transactor
	repo   Repository
	hasher Hasher
}

// NewService creates a user Service.
func NewService(tx store.Transactor, repo Repository, hasher Hasher) *Service {
	return &Service{tx: tx, repo: repo, hasher: hasher}
}

// Find returns a user with roles.
func (s *Service) Find(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get user %d", id)
	}
	return u, nil
}

// List returns a page of users ordered by id.
func (s *Service) List(ctx context.Context, req page.Request) (page.Page[User], error) {
	p, err := s.repo.List(ctx, req.Normalize())
	if err != nil {
		return page.Page[User]{}, errors.Wrap(err, "list users")
	}
	return p, nil
}

// Create registers a new account. The e-mail must not belong to anyone else.
func (s *Service) Create(ctx context.Context, in Input) (*User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, ErrPasswordRequired
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := in.user()
	u.PasswordHash = hash
	if len(u.Roles) == 0 {
		u.Roles = []Role{{Authority: RoleClient}}
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireFreeEmail(ctx, u.Email, 0); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return errors.Wrap(err, "create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("User created", zap.Int64("user_id", u.ID), zap.Int("roles", len(u.Roles)))
	return u, nil
}

// Update replaces the profile of an existing account and, when in lists
// roles, its grants.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*User, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	var hash string
	if in.Password != "" {
		var err error
		if hash, err = s.hasher.Hash(in.Password); err != nil {
			return nil, errors.Wrap(err, "hash password")
		}
	}

	var updated *User
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, id); err != nil {
			return errors.Wrapf(err, "get user %d", id)
		}
		u := in.user()
		u.ID = id
		if err := s.requireFreeEmail(ctx, u.Email, id); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, u); err != nil {
			return errors.Wrapf(err, "update user %d", id)
		}
		if hash != "" {
			if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
				return errors.Wrapf(err, "update password of user %d", id)
			}
		}
		loaded, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "get user %d", id)
		}
		updated = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("User updated", zap.Int64("user_id", id), zap.Bool("password_changed", hash != ""))
	return updated, nil
}

// Delete removes an account. It fails with a conflict while the user owns
// orders.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete user %d", id)
	}
	zctx.From(ctx).Info("User deleted", zap.Int64("user_id", id))
	return nil
}

// requireFreeEmail fails when email belongs to a user other than self.
func (s *Service) requireFreeEmail(ctx context.Context, email string, self int64) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return errors.Wrap(err, "check email")
	case existing.ID != self:
		return &EmailTakenError{Email: email}
	default:
		return nil
	}
}
