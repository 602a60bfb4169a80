package tasks

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/validation"
)

// Service is the ownership gate in front of the task Repository.
type Service struct {
	repo Repository
}

// NewService creates a new task Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func notFound() error {
	return apperror.NewNotFoundError("task not found", nil)
}

// AuthorizeAccess returns the task when it exists and belongs to userID. Missing and
// foreign tasks produce the same NotFound error.
func (s *Service) AuthorizeAccess(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	if userID == uuid.Nil {
		return nil, apperror.NewAuthError("authentication required", nil)
	}
	t, err := s.repo.Get(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, notFound()
		}
		return nil, apperror.NewDatabaseError("failed to load task", err)
	}
	// The store already filters by owner; keep the gate independent of that.
	if t.UserID != userID {
		return nil, notFound()
	}
	return t, nil
}

// Create stores a new task owned by userID.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateTaskRequest) (*Task, error) {
	if userID == uuid.Nil {
		return nil, apperror.NewAuthError("authentication required", nil)
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperror.NewFieldError("title", "must not be empty")
	}

	t := &Task{
		UserID:      userID,
		Title:       title,
		Description: normalizeDescription(req.Description),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, apperror.NewDatabaseError("failed to create task", err)
	}
	log.Debug().Str("user_id", userID.String()).Str("task_id", t.ID.String()).Msg("task created")
	return t, nil
}

// Get returns a single task owned by userID.
func (s *Service) Get(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	return s.AuthorizeAccess(ctx, userID, taskID)
}

// Update applies the fields present in req to a task owned by userID.
func (s *Service) Update(ctx context.Context, userID, taskID uuid.UUID, req UpdateTaskRequest) (*Task, error) {
	current, err := s.AuthorizeAccess(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	var patch Patch
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, apperror.NewFieldError("title", "must not be empty")
		}
		patch.Title = &title
	}
	if req.Description.Set {
		patch.SetDescription = true
		patch.Description = normalizeDescription(req.Description.Value)
	}
	patch.IsCompleted = req.IsCompleted

	if patch.Empty() {
		return current, nil
	}

	updated, err := s.repo.Update(ctx, userID, taskID, patch)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, notFound()
		}
		return nil, apperror.NewDatabaseError("failed to update task", err)
	}
	return updated, nil
}

// Delete permanently removes a task owned by userID.
func (s *Service) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	if _, err := s.AuthorizeAccess(ctx, userID, taskID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, taskID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return notFound()
		}
		return apperror.NewDatabaseError("failed to delete task", err)
	}
	return nil
}

// List returns the caller's tasks, newest first. A store failure yields an empty
// list; the failure is logged.
func (s *Service) List(ctx context.Context, userID uuid.UUID) []Task {
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list tasks")
		return []Task{}
	}
	if list == nil {
		return []Task{}
	}
	return list
}

func normalizeDescription(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
