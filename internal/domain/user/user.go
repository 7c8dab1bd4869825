package user

import (
	"context"
	"fmt"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
)

// ErrNotFound is returned when a requested user does not exist.
var ErrNotFound = &apperr.Error{Kind: apperr.KindNotFound, Msg: "user not found"}

// Authorities seeded with the schema.
const (
	RoleAdmin    = "ROLE_ADMIN"
	RoleOperator = "ROLE_OPERATOR"
	RoleClient   = "ROLE_CLIENT"
)

// Role is a granted authority.
type Role struct {
	ID        int64
	Authority string
}

// User is an account that owns orders.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PasswordHash string
	Roles        []Role
}

// HasRole reports whether the user holds authority.
func (u *User) HasRole(authority string) bool {
	for _, r := range u.Roles {
		if r.Authority == authority {
			return true
		}
	}
	return false
}

// Summary is the owner information embedded in order reads.
type Summary struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
}

// Summarize strips credentials and roles.
func (u *User) Summarize() Summary {
	return Summary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email}
}

// Repository defines persistence operations for users.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Exists(ctx context.Context, id int64) (bool, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	// Create stores u with the role authorities it lists; unknown authorities
	// are a conflict.
	Create(ctx context.Context, u *User) error
	// Update replaces the profile fields of u. A non-nil Roles replaces the
	// grants as well and is refreshed from the store.
	Update(ctx context.Context, u *User) error
	// Delete removes a user with its grants and API keys. Users that still
	// own orders are a conflict.
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, req page.Request) (page.Page[User], error)
}

// EmailTakenError indicates an e-mail already registered to another user.
type EmailTakenError struct {
	Email string
}

func (e *EmailTakenError) Error() string {
	return fmt.Sprintf("email %q is already registered", e.Email)
}

func (e *EmailTakenError) Kind() apperr.Kind { return apperr.KindConflict }

func (e *EmailTakenError) Is(target error) bool {
	return apperr.Matches(apperr.KindConflict, target)
}
