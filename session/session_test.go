package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/user/taskdesk-go/config"
)

func newTestAuthority(now func() time.Time) *Authority {
	return NewAuthority(config.AuthConfig{
		JWTSecret:            "test-secret",
		AccessTokenDuration:  15 * time.Minute,
		RefreshTokenDuration: 24 * time.Hour,
	}).WithClock(now)
}

func TestIssueAndValidate(t *testing.T) {
	a := newTestAuthority(time.Now)
	userID := uuid.New()

	pair, err := a.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("ExpiresIn = %d", pair.ExpiresIn)
	}

	claims, err := a.Validate(pair.AccessToken, TokenTypeAccess)
	if err != nil {
		t.Fatalf("Validate(access) error = %v", err)
	}
	if claims.UserID != userID.String() {
		t.Fatalf("UserID = %s, want %s", claims.UserID, userID)
	}

	if _, err := a.Validate(pair.RefreshToken, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate(refresh as access) error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejects(t *testing.T) {
	issuedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a := newTestAuthority(func() time.Time { return issuedAt })
	pair, err := a.Issue(uuid.New())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name      string
		authority *Authority
		token     string
	}{
		{
			name:      "expired",
			authority: newTestAuthority(func() time.Time { return issuedAt.Add(16 * time.Minute) }),
			token:     pair.AccessToken,
		},
		{
			name: "wrong secret",
			authority: NewAuthority(config.AuthConfig{
				JWTSecret:            "other-secret",
				AccessTokenDuration:  time.Minute,
				RefreshTokenDuration: time.Minute,
			}).WithClock(func() time.Time { return issuedAt }),
			token: pair.AccessToken,
		},
		{
			name:      "garbage",
			authority: a,
			token:     "not-a-jwt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.authority.Validate(tt.token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	a := newTestAuthority(time.Now)
	userID := uuid.New()
	pair, err := a.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	refreshed, err := a.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if refreshed.RefreshToken != pair.RefreshToken {
		t.Fatal("Refresh() rotated the refresh token")
	}
	if _, err := a.Refresh(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Refresh(access token) error = %v, want ErrInvalidToken", err)
	}
}

func TestMiddleware(t *testing.T) {
	a := newTestAuthority(time.Now)
	userID := uuid.New()
	pair, err := a.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var seen uuid.UUID
	handler := Middleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{name: "no credentials", setup: func(*http.Request) {}, status: http.StatusUnauthorized},
		{
			name:   "malformed header",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Token abc") },
			status: http.StatusUnauthorized,
		},
		{
			name:   "refresh token as bearer",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+pair.RefreshToken) },
			status: http.StatusUnauthorized,
		},
		{
			name:   "bearer",
			setup:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+pair.AccessToken) },
			status: http.StatusNoContent,
		},
		{
			name:   "cookie",
			setup:  func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: pair.AccessToken}) },
			status: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = uuid.Nil
			req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusNoContent && seen != userID {
				t.Fatalf("context user = %s, want %s", seen, userID)
			}
		})
	}
}
