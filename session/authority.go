// Package session is taskdesk's session authority. It signs and validates the
// HS256 JWTs that identify a user, and provides the middleware that resolves the
// caller's identity for downstream handlers.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/user/taskdesk-go/config"
)

const (
	// TokenTypeAccess marks short-lived tokens accepted by the middleware.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks long-lived tokens accepted only by the refresh endpoint.
	TokenTypeRefresh = "refresh"

	issuer = "taskdesk"
)

// ErrInvalidToken is returned for any token that fails signature, expiry, or type checks.
var ErrInvalidToken = errors.New("invalid session token")

// Claims is the payload of taskdesk JWTs.
type Claims struct {
	UserID    string `json:"user_id"`
	TokenType string `json:"token_type"` // "access" or "refresh"
	jwt.RegisteredClaims
}

// TokenPair is returned to clients after login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	RefreshToken string `json:"refresh_token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
	TokenType    string `json:"token_type" example:"Bearer"`
	ExpiresIn    int64  `json:"expires_in" example:"900"` // access token lifetime in seconds

	accessExpiresAt time.Time
}

// AccessExpiresAt is the absolute expiry of the access token.
func (p *TokenPair) AccessExpiresAt() time.Time {
	return p.accessExpiresAt
}

// Authority issues and validates session tokens.
type Authority struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewAuthority creates an Authority from the auth configuration.
func NewAuthority(cfg config.AuthConfig) *Authority {
	return &Authority{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenDuration,
		refreshTTL: cfg.RefreshTokenDuration,
		now:        time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (a *Authority) WithClock(now func() time.Time) *Authority {
	a.now = now
	return a
}

// Issue creates an access and refresh token for userID.
func (a *Authority) Issue(userID uuid.UUID) (*TokenPair, error) {
	access, accessExp, err := a.sign(userID, TokenTypeAccess, a.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refresh, _, err := a.sign(userID, TokenTypeRefresh, a.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    refresh,
		TokenType:       "Bearer",
		ExpiresIn:       int64(a.accessTTL.Seconds()),
		accessExpiresAt: accessExp,
	}, nil
}

// Refresh validates a refresh token and returns a new access token alongside it.
func (a *Authority) Refresh(refreshToken string) (*TokenPair, error) {
	claims, err := a.Validate(refreshToken, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	access, accessExp, err := a.sign(userID, TokenTypeAccess, a.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new access token: %w", err)
	}
	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    refreshToken,
		TokenType:       "Bearer",
		ExpiresIn:       int64(a.accessTTL.Seconds()),
		accessExpiresAt: accessExp,
	}, nil
}

func (a *Authority) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := a.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		UserID:    userID.String(),
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   userID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate parses tokenString and checks signature, expiry, issuer and token type.
// Every failure is reported as ErrInvalidToken wrapping the cause.
func (a *Authority) Validate(tokenString, expectedType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != expectedType {
		return nil, fmt.Errorf("%w: expected %s token, got %s", ErrInvalidToken, expectedType, claims.TokenType)
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, fmt.Errorf("%w: user_id claim is missing or invalid", ErrInvalidToken)
	}
	return claims, nil
}
