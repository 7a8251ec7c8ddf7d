package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for user lookup and registration.
var (
	ErrNotFound    = errors.New("user not found")
	ErrEmailTaken  = errors.New("email already registered")
	ErrBadPassword = errors.New("invalid credentials")
)

// User is a registered account. HashedPassword holds a bcrypt hash and is
// never serialized to API responses.
type User struct {
	ID             int64
	FullName       string
	Email          string
	HashedPassword string
	IsAdmin        bool
	CreatedAt      time.Time
}

// Identity is the authenticated-caller handle passed to domain services.
type Identity struct {
	ID      int64
	IsAdmin bool
}

// Identity returns the caller handle for this user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, IsAdmin: u.IsAdmin}
}

// Repository defines persistence for user accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
