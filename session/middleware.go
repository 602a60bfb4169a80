package session

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/respond"
)

// CookieName is the HttpOnly cookie carrying the access token for browser clients.
const CookieName = "session"

// Middleware authenticates requests from the `Authorization: Bearer` header, falling
// back to the session cookie, and stores the user id in the request context.
func Middleware(a *Authority) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Authorization")

			tokenString, appErr := tokenFromRequest(r)
			if appErr != nil {
				respond.Error(w, r, appErr)
				return
			}

			claims, err := a.Validate(tokenString, TokenTypeAccess)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("rejected session token")
				respond.Error(w, r, apperror.NewAuthError("invalid or expired session", nil))
				return
			}

			// Validate has already checked the claim parses.
			userID := uuid.MustParse(claims.UserID)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), userID)))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, *apperror.AppError) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", apperror.NewAuthError("Authorization header format must be Bearer {token}", nil)
		}
		return parts[1], nil
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", apperror.NewAuthError("authentication required", nil)
}

// SetCookie stores the access token in an HttpOnly cookie.
func SetCookie(w http.ResponseWriter, token string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
