package tasks

import (
	"context"

	"github.com/google/uuid"
)

// Patch lists the columns an update writes. A nil field is left untouched;
// Description is written whenever SetDescription is true, including nil.
type Patch struct {
	Title          *string
	SetDescription bool
	Description    *string
	IsCompleted    *bool
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && !p.SetDescription && p.IsCompleted == nil
}

// Repository persists tasks. Get, Update and Delete match on both the task id and
// the owner id, returning ErrTaskNotFound when no row matches.
type Repository interface {
	// Create assigns ID and timestamps when they are zero and stores t.
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, userID, taskID uuid.UUID) (*Task, error)
	// ListByUser returns the owner's tasks, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Task, error)
	Update(ctx context.Context, userID, taskID uuid.UUID, patch Patch) (*Task, error)
	Delete(ctx context.Context, userID, taskID uuid.UUID) error
}
