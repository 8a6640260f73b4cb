package twofa

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrConfigNotFound is returned when a user has no 2FA configuration
var ErrConfigNotFound = errors.New("2FA configuration not found")

// Repository defines storage for 2FA configurations. Save upserts on the
// user reference: the one-config-per-user invariant lives here.
type Repository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (Config, error)
	Save(ctx context.Context, config Config) (Config, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}
