// Package tasks implements per-user task CRUD. Every read and mutation of a
// single task goes through Service.AuthorizeAccess, which hides tasks owned by
// other users behind the same not-found outcome as a missing task.
package tasks

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrTaskNotFound is returned when a task does not exist or is not owned by the caller.
var ErrTaskNotFound = errors.New("task not found")

// Task is a single to-do item. UserID is fixed at creation.
type Task struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"userId" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Description *string   `json:"description" db:"description"`
	IsCompleted bool      `json:"isCompleted" db:"is_completed"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
