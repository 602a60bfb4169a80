// Package users owns the user record: its storage contract, the Postgres
// implementation, and the profile endpoints under /users/me.
package users

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUserNotFound is returned by lookups that match no user.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Create when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
)

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         *string   `json:"name" db:"name"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
