// Package respond writes JSON responses and converts errors into the
// apperror.ErrorResponse shape. Internal error detail is logged, never returned.
package respond

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/user/taskdesk-go/apperror"
)

// maxBodyBytes caps request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message" example:"Task deleted successfully"`
}

// JSON serializes data and writes it with status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

// Message writes a MessageResponse.
func Message(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, MessageResponse{Message: msg})
}

// Error writes err as an ErrorResponse. Errors that are not *apperror.AppError become
// a generic 500. Server-side failures are logged with the request id.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.FromError(err)
	if !ok {
		appErr = apperror.NewInternalError("an unexpected error occurred", err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Msg("request failed")
	}

	JSON(w, status, appErr.ToResponse())
}

// DecodeJSON decodes the request body into dest. Unknown fields are ignored so
// clients may send extra properties (such as an owner id) that the server overrides.
func DecodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return apperror.NewBadRequestError("request body required", nil)
	}
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.NewBadRequestError("request body required", err)
		}
		return apperror.NewBadRequestError("invalid request body", err)
	}
	return nil
}
