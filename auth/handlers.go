package auth

import (
	"errors"
	"net/http"

	"github.com/user/taskdesk-go/resettoken"
	"github.com/user/taskdesk-go/respond"
	"github.com/user/taskdesk-go/session"
	"github.com/user/taskdesk-go/validation"
)

const (
	forgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."
	invalidTokenMessage   = "Invalid or expired token."
)

// Handlers serves the /auth routes.
type Handlers struct {
	service      *Service
	ledger       *resettoken.Ledger
	cookieSecure bool
}

// NewHandlers creates new auth Handlers.
func NewHandlers(service *Service, ledger *resettoken.Ledger, cookieSecure bool) *Handlers {
	return &Handlers{service: service, ledger: ledger, cookieSecure: cookieSecure}
}

// HandleRegister godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.RegisterRequest true "Account details"
// @Success 201 {object} auth.RegisterResponse
// @Failure 400 {object} apperror.ErrorResponse "Invalid input or email already registered"
// @Router /auth/register [post]
func (h *Handlers) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		user, err := h.service.Register(r.Context(), req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.JSON(w, http.StatusCreated, RegisterResponse{Message: "User registered successfully", User: user})
	}
}

// HandleLogin godoc
// @Summary Log in
// @Description Returns a token pair and sets the HttpOnly session cookie.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.LoginRequest true "Credentials"
// @Success 200 {object} session.TokenPair
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *Handlers) HandleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		_, tokens, err := h.service.Login(r.Context(), req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		session.SetCookie(w, tokens.AccessToken, tokens.AccessExpiresAt(), h.cookieSecure)
		respond.JSON(w, http.StatusOK, tokens)
	}
}

// HandleRefresh godoc
// @Summary Refresh the access token
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.RefreshTokenRequest true "Refresh token"
// @Success 200 {object} session.TokenPair
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /auth/refresh [post]
func (h *Handlers) HandleRefresh() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefreshTokenRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		tokens, err := h.service.Refresh(req)
		if err != nil {
			respond.Error(w, r, err)
			return
		}
		session.SetCookie(w, tokens.AccessToken, tokens.AccessExpiresAt(), h.cookieSecure)
		respond.JSON(w, http.StatusOK, tokens)
	}
}

// HandleLogout godoc
// @Summary Log out
// @Description Clears the session cookie. Bearer tokens stay valid until they expire.
// @Tags auth
// @Produce json
// @Success 200 {object} respond.MessageResponse
// @Router /auth/logout [post]
func (h *Handlers) HandleLogout() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		session.ClearCookie(w, h.cookieSecure)
		respond.Message(w, http.StatusOK, "Logged out successfully")
	}
}

// HandleForgotPassword godoc
// @Summary Request a password reset email
// @Description The response is identical whether or not the email is registered.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.ForgotPasswordRequest true "Account email"
// @Success 200 {object} respond.MessageResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Router /auth/forgot-password [post]
func (h *Handlers) HandleForgotPassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ForgotPasswordRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		if err := validation.Struct(req); err != nil {
			respond.Error(w, r, err)
			return
		}

		if err := h.ledger.RequestReset(r.Context(), req.Email); err != nil {
			respond.Error(w, r, err)
			return
		}
		respond.Message(w, http.StatusOK, forgotPasswordMessage)
	}
}

// HandleResetPassword godoc
// @Summary Set a new password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param body body auth.ResetPasswordRequest true "Token and new password"
// @Success 200 {object} respond.MessageResponse
// @Failure 400 {object} respond.MessageResponse "Invalid or expired token"
// @Router /auth/reset-password [post]
func (h *Handlers) HandleResetPassword() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResetPasswordRequest
		if err := respond.DecodeJSON(r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		err := h.ledger.Consume(r.Context(), req.Token, req.Password)
		switch {
		case err == nil:
			respond.Message(w, http.StatusOK, "Password has been reset successfully.")
		case errors.Is(err, resettoken.ErrInvalidToken), errors.Is(err, resettoken.ErrExpiredToken):
			respond.Message(w, http.StatusBadRequest, invalidTokenMessage)
		default:
			respond.Error(w, r, err)
		}
	}
}
