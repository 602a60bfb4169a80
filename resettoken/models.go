// Package resettoken issues and consumes single-use password reset tokens.
//
// A token is a bearer credential: 32 random bytes from crypto/rand, hex encoded.
// Expiry is checked only when a token is consumed; expired records are inert
// until Purge removes them. Consuming deletes the record conditionally, so of
// two concurrent consumers of one token exactly one succeeds.
package resettoken

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenBytes is the amount of randomness in a token.
	TokenBytes = 32
	// DefaultTTL is how long a token stays consumable.
	DefaultTTL = 30 * time.Minute
)

var (
	// ErrInvalidToken means the token is unknown or was already used.
	ErrInvalidToken = errors.New("invalid reset token")
	// ErrExpiredToken means the token exists but its expiry has passed.
	ErrExpiredToken = errors.New("expired reset token")
	// ErrNotFound is returned by Store.Get for an unknown token.
	ErrNotFound = errors.New("reset token not found")
)

// Token is a persisted reset token record.
type Token struct {
	Token     string    `db:"token"`
	UserID    uuid.UUID `db:"user_id"`
	Expires   time.Time `db:"expires"`
	CreatedAt time.Time `db:"created_at"`
}

// Expired reports whether the token's expiry is strictly before now.
func (t *Token) Expired(now time.Time) bool {
	return t.Expires.Before(now)
}

// Store persists token records. Delete removes a record only if it still exists
// and reports whether this call removed it.
type Store interface {
	Create(ctx context.Context, t *Token) error
	Get(ctx context.Context, token string) (*Token, error)
	Delete(ctx context.Context, token string) (bool, error)
	DeleteForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	// PurgeExpired removes records whose expiry is before the given time.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// Notifier delivers a reset link to an email address.
type Notifier interface {
	SendPasswordReset(ctx context.Context, to, link string) error
}
