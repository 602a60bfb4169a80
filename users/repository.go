package users

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists users. Implementations must enforce email uniqueness
// (returning ErrEmailTaken) and return ErrUserNotFound for missing rows.
type Repository interface {
	// Create assigns ID and timestamps when they are zero and stores u.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateName(ctx context.Context, id uuid.UUID, name *string) (*User, error)
}
