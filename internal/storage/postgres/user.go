package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-go/storefront/internal/domain/user"
)

const (
	insertUserSQL = `INSERT INTO users (full_name, email, hashed_password, is_admin)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`

	getUserByIDSQL = `SELECT id, full_name, email, hashed_password, is_admin, created_at
		FROM users WHERE id = $1`

	getUserByEmailSQL = `SELECT id, full_name, email, hashed_password, is_admin, created_at
		FROM users WHERE email = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create persists a new account, filling its ID and CreatedAt. A duplicate
// email is reported as user.ErrEmailTaken.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, insertUserSQL,
		u.FullName, u.Email, u.HashedPassword, u.IsAdmin,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return errors.Wrapf(err, "creating user %q", u.Email)
	}
	return nil
}

// GetByID returns the account with the given ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getBy(ctx, getUserByIDSQL, id)
}

// GetByEmail returns the account registered under email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getBy(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) getBy(ctx context.Context, sql string, arg any) (*user.User, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "getting user")
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, errors.Wrap(err, "getting user")
	}
	return &u, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.HashedPassword, &u.IsAdmin, &u.CreatedAt)
	return u, err
}
