// Package auth handles account registration, credential login and the HTTP
// side of session issuance and password reset.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/password"
	"github.com/user/taskdesk-go/session"
	"github.com/user/taskdesk-go/users"
	"github.com/user/taskdesk-go/validation"
)

const invalidCredentials = "invalid credentials"

// Service registers and authenticates users.
type Service struct {
	users     users.Repository
	hasher    password.Hasher
	authority *session.Authority
}

// NewService creates a new auth Service.
func NewService(repo users.Repository, hasher password.Hasher, authority *session.Authority) *Service {
	return &Service{
		users:     repo,
		hasher:    hasher,
		authority: authority,
	}
}

func emailTaken() error {
	return apperror.NewFieldError("email", "is already registered")
}

// Register creates a user. A duplicate email is reported as a validation error on
// the email field, whether it is caught by the lookup or by the store's unique constraint.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*users.User, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	if err := password.Validate("password", req.Password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return nil, emailTaken()
	} else if !errors.Is(err, users.ErrUserNotFound) {
		return nil, apperror.NewDatabaseError("failed to check email", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperror.NewInternalError("failed to hash password", err)
	}

	user := &users.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         users.NormalizeOptional(req.Name),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrEmailTaken) {
			return nil, emailTaken()
		}
		return nil, apperror.NewDatabaseError("failed to create user", err)
	}

	log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return user, nil
}

// Login checks the credentials and issues a session. Unknown emails and wrong
// passwords produce the same error.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*users.User, *session.TokenPair, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, nil, apperror.NewAuthError(invalidCredentials, nil)
		}
		return nil, nil, apperror.NewDatabaseError("failed to look up user", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, password.ErrMismatch) {
			return nil, nil, apperror.NewAuthError(invalidCredentials, nil)
		}
		return nil, nil, apperror.NewInternalError("failed to verify password", err)
	}

	tokens, err := s.authority.Issue(user.ID)
	if err != nil {
		return nil, nil, apperror.NewInternalError("failed to issue session", err)
	}
	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(req RefreshTokenRequest) (*session.TokenPair, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	tokens, err := s.authority.Refresh(req.RefreshToken)
	if err != nil {
		log.Debug().Err(err).Msg("refresh rejected")
		return nil, apperror.NewAuthError("invalid or expired refresh token", nil)
	}
	return tokens, nil
}
