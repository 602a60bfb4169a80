// Package apperror defines the error taxonomy shared by every layer of taskdesk.
// Services return *AppError values (or domain sentinels that handlers translate),
// and the HTTP layer turns them into a status code plus a JSON ErrorResponse.
// Only the user-facing Message (and optional field messages) ever reaches the caller;
// the wrapped Err is kept for logging.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType is the category of an application error.
type ErrorType int

const (
	// UnknownError is for unspecified errors
	UnknownError ErrorType = iota
	// DatabaseError means the store failed or was unreachable
	DatabaseError
	// AuthError represents an authentication failure (missing session, bad credentials)
	AuthError
	// NotFoundError represents a resource that is absent or not visible to the caller
	NotFoundError
	// ValidationError represents field-level input problems
	ValidationError
	// BadRequestError represents a malformed request (e.g. undecodable JSON)
	BadRequestError
	// InternalError represents a generic internal server error
	InternalError
	// ExternalServiceError represents a failing collaborator such as the mail relay
	ExternalServiceError
	// MigrationError represents an error during database migrations
	MigrationError
)

// AppError is the application's error type.
// Fields carries per-field validation messages keyed by the JSON field name.
type AppError struct {
	Type    ErrorType
	Message string
	Fields  map[string]string
	Err     error
}

// Error returns the string representation of the error, including the wrapped error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code appropriate for the error type
func (e *AppError) StatusCode() int {
	switch e.Type {
	case DatabaseError, InternalError, MigrationError:
		return http.StatusInternalServerError
	case AuthError:
		return http.StatusUnauthorized
	case NotFoundError:
		return http.StatusNotFound
	case ValidationError, BadRequestError:
		return http.StatusBadRequest
	case ExternalServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewAppError creates a new AppError.
func NewAppError(errType ErrorType, message string, underlyingError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     underlyingError,
	}
}

// NewDatabaseError creates a new DatabaseError
func NewDatabaseError(message string, underlyingError error) *AppError {
	return NewAppError(DatabaseError, message, underlyingError)
}

// NewAuthError creates a new AuthError (for authentication issues)
func NewAuthError(message string, underlyingError error) *AppError {
	return NewAppError(AuthError, message, underlyingError)
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(message string, underlyingError error) *AppError {
	return NewAppError(NotFoundError, message, underlyingError)
}

// NewFieldError creates a ValidationError carrying a single field message.
func NewFieldError(field, message string) *AppError {
	return &AppError{
		Type:    ValidationError,
		Message: "validation failed",
		Fields:  map[string]string{field: message},
	}
}

// NewFieldsError creates a ValidationError from a map of field messages.
func NewFieldsError(fields map[string]string) *AppError {
	return &AppError{
		Type:    ValidationError,
		Message: "validation failed",
		Fields:  fields,
	}
}

// NewBadRequestError creates a new BadRequestError
func NewBadRequestError(message string, underlyingError error) *AppError {
	return NewAppError(BadRequestError, message, underlyingError)
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, underlyingError error) *AppError {
	return NewAppError(InternalError, message, underlyingError)
}

// NewExternalServiceError creates a new ExternalServiceError
func NewExternalServiceError(message string, underlyingError error) *AppError {
	return NewAppError(ExternalServiceError, message, underlyingError)
}

// NewMigrationError creates a new MigrationError
func NewMigrationError(message string, underlyingError error) *AppError {
	return NewAppError(MigrationError, message, underlyingError)
}

// ErrorResponse represents the error payload returned to API clients.
type ErrorResponse struct {
	Error  string            `json:"error" example:"validation failed"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ToResponse converts an AppError to an ErrorResponse. The wrapped Err is never included.
func (e *AppError) ToResponse() ErrorResponse {
	return ErrorResponse{Error: e.Message, Fields: e.Fields}
}

// FromError finds the first *AppError in err's chain.
func FromError(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsNotFound checks if an error is a NotFound error
func IsNotFound(err error) bool { return isType(err, NotFoundError) }

// IsValidationError checks if an error is a Validation error
func IsValidationError(err error) bool { return isType(err, ValidationError) }

// IsDatabaseError checks if an error is a Database error
func IsDatabaseError(err error) bool { return isType(err, DatabaseError) }
