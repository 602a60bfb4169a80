package session

import (
	"context"

	"github.com/google/uuid"
)

// contextKey is unexported so no other package can collide with or forge the value.
type contextKey string

const userIDKey contextKey = "session_user_id"

// NewContext returns a child of ctx carrying the authenticated user id.
func NewContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the user id stored by Middleware.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(userIDKey).(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}
