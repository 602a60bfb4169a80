package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/validation"
)

// UpdateProfileRequest is the body of PUT /users/me.
type UpdateProfileRequest struct {
	// Display name; null or blank clears it.
	Name *string `json:"name" validate:"omitempty,max=100" example:"Alice"`
}

// Service implements profile lookups and edits for the signed-in user.
type Service struct {
	repo Repository
}

// NewService creates a new profile Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetProfile returns the caller's own user record.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperror.NewNotFoundError("user not found", nil)
		}
		return nil, apperror.NewDatabaseError("failed to get user profile", err)
	}
	return u, nil
}

// UpdateProfile changes the caller's display name.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, req UpdateProfileRequest) (*User, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	u, err := s.repo.UpdateName(ctx, userID, NormalizeOptional(req.Name))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperror.NewNotFoundError("user not found", nil)
		}
		return nil, apperror.NewDatabaseError("failed to update user profile", err)
	}
	return u, nil
}

// NormalizeOptional trims s and maps nil, empty and whitespace-only input to nil.
func NormalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
