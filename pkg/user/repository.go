package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUserNotFound is returned when no user matches the lookup
	ErrUserNotFound = errors.New("user not found")

	// ErrUsernameTaken is returned when creating a user with an existing username
	ErrUsernameTaken = errors.New("username is already taken")

	// ErrEmailTaken is returned when creating a user with an existing email
	ErrEmailTaken = errors.New("email is already in use")
)

// User is the account record owned by this store. Password holds the
// one-way hash, never plaintext.
type User struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Password   string    `json:"-"`
	TfaEnabled bool      `json:"tfa_enabled"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateUserParams represents parameters for creating a user
type CreateUserParams struct {
	Username string
	Email    string
	Password string
}

// Repository defines the user store operations the auth flows need.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	// FindByUsernameOrEmail resolves a login identifier against the
	// username first, then the email.
	FindByUsernameOrEmail(ctx context.Context, identifier string) (User, error)
	Create(ctx context.Context, params CreateUserParams) (User, error)
	Save(ctx context.Context, u User) (User, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
