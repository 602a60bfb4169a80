package users

import (
	"net/http"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/respond"
	"github.com/user/taskdesk-go/session"
)

// Handlers exposes the profile Service over HTTP.
type Handlers struct {
	service *Service
}

// NewHandlers creates new profile Handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// HandleGetProfile godoc
// @Summary Get current user's profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} users.User
// @Failure 401 {object} apperror.ErrorResponse
// @Router /users/me [get]
func (h *Handlers) HandleGetProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := session.UserIDFromContext(r.Context())
		if !ok {
			respond.Error(w, r, apperror.NewAuthError("authentication required", nil))
			return
		}

		profile, err := h.service.GetProfile(r.Context(), userID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, profile)
	}
}

// HandleUpdateProfile godoc
// @Summary Update current user's profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body users.UpdateProfileRequest true "Profile fields"
// @Success 200 {object} users.User
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /users/me [put]
func (h *Handlers) HandleUpdateProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := session.UserIDFromContext(r.Context())
		if !ok {
			respond.Error(w, r, apperror.NewAuthError("authentication required", nil))
			return
		}

		var req UpdateProfileRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		profile, err := h.service.UpdateProfile(r.Context(), userID, req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusOK, profile)
	}
}
