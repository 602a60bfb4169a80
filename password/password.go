// Package password hashes and verifies user passwords with bcrypt and enforces
// the length policy shared by registration and password reset.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/user/taskdesk-go/apperror"
)

const (
	// MinLength is the shortest accepted password, in bytes.
	MinLength = 6
	// MaxLength is bcrypt's input limit; longer inputs would be silently truncated.
	MaxLength = 72
)

// ErrMismatch is returned by Compare when the password does not match the hash.
var ErrMismatch = errors.New("password does not match")

// Hasher is a one-way password hash with verification.
type Hasher interface {
	Hash(plain string) (string, error)
	Compare(hash, plain string) error
}

// Bcrypt implements Hasher with golang.org/x/crypto/bcrypt.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a Bcrypt hasher. A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{Cost: cost}
}

// Hash returns the bcrypt hash of plain.
func (b *Bcrypt) Hash(plain string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), b.Cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare returns nil when plain matches hash and ErrMismatch when it does not.
func (b *Bcrypt) Compare(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// Validate checks plain against the length policy and reports the problem on field.
func Validate(field, plain string) error {
	switch {
	case plain == "":
		return apperror.NewFieldError(field, "must be provided")
	case len(plain) < MinLength:
		return apperror.NewFieldError(field, fmt.Sprintf("must be at least %d bytes long", MinLength))
	case len(plain) > MaxLength:
		return apperror.NewFieldError(field, fmt.Sprintf("must be at most %d bytes long", MaxLength))
	}
	return nil
}
