package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

const (
	userColumns = `id, first_name, last_name, email, phone, password_hash`

	getUserByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	userExistsSQL     = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`

	getUserRolesSQL = `SELECT r.id, r.authority FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 ORDER BY r.id`

	updatePasswordSQL = `UPDATE users SET password_hash = $2 WHERE id = $1`

	createUserSQL = `INSERT INTO users (first_name, last_name, email, phone, password_hash)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	grantRolesSQL = `INSERT INTO user_roles (user_id, role_id)
		SELECT $1, id FROM roles WHERE authority = ANY($2)
		RETURNING role_id`
	revokeRolesSQL = `DELETE FROM user_roles WHERE user_id = $1`

	updateUserSQL = `UPDATE users SET first_name = $2, last_name = $3, email = $4, phone = $5
		WHERE id = $1 RETURNING password_hash`
	deleteUserSQL = `DELETE FROM users WHERE id = $1`

	listUsersSQL  = `SELECT ` + userColumns + ` FROM users ORDER BY id LIMIT $1 OFFSET $2`
	countUsersSQL = `SELECT COUNT(*) FROM users`

	listRolesOfUsersSQL = `SELECT ur.user_id, r.id, r.authority FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = ANY($1) ORDER BY ur.user_id, r.id`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db *DB
}

// NewUserRepository returns a UserRepository that uses db.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user with roles.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.get(ctx, getUserByIDSQL, id)
}

// GetByEmail returns a user with roles, matching email case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.get(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) get(ctx context.Context, sql string, arg any) (*user.User, error) {
	q := r.db.conn(ctx)

	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting user %v: %w", arg, classify(err, 0))
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %v: %w", arg, classify(err, 0))
	}

	rows, err = q.Query(ctx, getUserRolesSQL, u.ID)
	if err != nil {
		return nil, fmt.Errorf("getting roles of user %d: %w", u.ID, classify(err, 0))
	}
	u.Roles, err = pgx.CollectRows(rows, scanRole)
	if err != nil {
		return nil, fmt.Errorf("getting roles of user %d: %w", u.ID, classify(err, 0))
	}
	return &u, nil
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := r.db.conn(ctx).QueryRow(ctx, userExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking user %d: %w", id, classify(err, 0))
	}
	return ok, nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, hash string) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updatePasswordSQL, id, hash)
	if err != nil {
		return fmt.Errorf("updating password of user %d: %w", id, classify(err, 0))
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// Create inserts u and grants its roles in one transaction.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	authorities := make([]string, len(u.Roles))
	for i, role := range u.Roles {
		authorities[i] = role.Authority
	}

	return r.db.InTx(ctx, func(ctx context.Context) error {
		q := r.db.conn(ctx)
		err := q.QueryRow(ctx, createUserSQL, u.FirstName, u.LastName, u.Email, u.Phone, u.PasswordHash).Scan(&u.ID)
		if err != nil {
			return fmt.Errorf("creating user %q: %w", u.Email, classify(err, 0))
		}
		if len(authorities) == 0 {
			return nil
		}
		return r.grant(ctx, u, authorities)
	})
}

// Update replaces the profile fields and, when u.Roles is not nil, the grants.
func (r *UserRepository) Update(ctx context.Context, u *user.User) error {
	return r.db.InTx(ctx, func(ctx context.Context) error {
		q := r.db.conn(ctx)
		err := q.QueryRow(ctx, updateUserSQL, u.ID, u.FirstName, u.LastName, u.Email, u.Phone).Scan(&u.PasswordHash)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return user.ErrNotFound
			}
			return fmt.Errorf("updating user %d: %w", u.ID, classify(err, 0))
		}
		if u.Roles == nil {
			rows, err := q.Query(ctx, getUserRolesSQL, u.ID)
			if err != nil {
				return fmt.Errorf("getting roles of user %d: %w", u.ID, classify(err, 0))
			}
			u.Roles, err = pgx.CollectRows(rows, scanRole)
			if err != nil {
				return fmt.Errorf("getting roles of user %d: %w", u.ID, classify(err, 0))
			}
			return nil
		}

		authorities := make([]string, len(u.Roles))
		for i, role := range u.Roles {
			authorities[i] = role.Authority
		}
		if _, err := q.Exec(ctx, revokeRolesSQL, u.ID); err != nil {
			return fmt.Errorf("revoking roles of user %d: %w", u.ID, classify(err, 0))
		}
		return r.grant(ctx, u, authorities)
	})
}

// grant inserts the role grants of u and reloads u.Roles. Unknown
// authorities are a conflict.
func (r *UserRepository) grant(ctx context.Context, u *user.User, authorities []string) error {
	q := r.db.conn(ctx)
	rows, err := q.Query(ctx, grantRolesSQL, u.ID, authorities)
	if err != nil {
		return fmt.Errorf("granting roles: %w", classify(err, 0))
	}
	granted, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return fmt.Errorf("granting roles: %w", classify(err, 0))
	}
	if len(granted) != len(authorities) {
		return apperr.New(apperr.KindConflict, "unknown authority in %v", authorities)
	}
	rows, err = q.Query(ctx, getUserRolesSQL, u.ID)
	if err != nil {
		return fmt.Errorf("getting roles of user %d: %w", u.ID, classify(err, 0))
	}
	u.Roles, err = pgx.CollectRows(rows, scanRole)
	if err != nil {
		return fmt.Errorf("getting roles of user %d: %w", u.ID, classify(err, 0))
	}
	return nil
}

// Delete removes a user. Grants and API keys cascade; owned orders make it a
// conflict.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.conn(ctx).Exec(ctx, deleteUserSQL, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, classify(err, apperr.KindConflict))
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// List returns a page of users with roles, ordered by id.
func (r *UserRepository) List(ctx context.Context, req page.Request) (page.Page[user.User], error) {
	q := r.db.conn(ctx)

	var total int64
	if err := q.QueryRow(ctx, countUsersSQL).Scan(&total); err != nil {
		return page.Page[user.User]{}, fmt.Errorf("counting users: %w", classify(err, 0))
	}
	rows, err := q.Query(ctx, listUsersSQL, req.Size, req.Offset())
	if err != nil {
		return page.Page[user.User]{}, fmt.Errorf("listing users: %w", classify(err, 0))
	}
	items, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return page.Page[user.User]{}, fmt.Errorf("listing users: %w", classify(err, 0))
	}
	if len(items) == 0 {
		return page.New(items, req, total), nil
	}

	ids := make([]int64, len(items))
	index := make(map[int64]int, len(items))
	for i, u := range items {
		ids[i] = u.ID
		index[u.ID] = i
	}
	rows, err = q.Query(ctx, listRolesOfUsersSQL, ids)
	if err != nil {
		return page.Page[user.User]{}, fmt.Errorf("listing roles: %w", classify(err, 0))
	}
	var (
		userID int64
		role   user.Role
	)
	_, err = pgx.ForEachRow(rows, []any{&userID, &role.ID, &role.Authority}, func() error {
		i := index[userID]
		items[i].Roles = append(items[i].Roles, role)
		return nil
	})
	if err != nil {
		return page.Page[user.User]{}, fmt.Errorf("listing roles: %w", classify(err, 0))
	}
	return page.New(items, req, total), nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.PasswordHash)
	return u, err
}

func scanRole(row pgx.CollectableRow) (user.Role, error) {
	var role user.Role
	err := row.Scan(&role.ID, &role.Authority)
	return role, err
}
