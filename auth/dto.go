package auth

import "github.com/user/taskdesk-go/users"

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email,max=254" example:"alice@example.com"`
	Password string  `json:"password" example:"secret1"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=100" example:"Alice"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	Message string      `json:"message" example:"User registered successfully"`
	User    *users.User `json:"user"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required" example:"alice@example.com"`
	Password string `json:"password" validate:"required" example:"secret1"`
}

// RefreshTokenRequest is the body of POST /auth/refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required" example:"alice@example.com"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token" example:"3f7c..."`
	Password string `json:"password" example:"newsecret"`
}
