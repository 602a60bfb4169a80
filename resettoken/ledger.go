package resettoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/config"
	"github.com/user/taskdesk-go/metrics"
	"github.com/user/taskdesk-go/password"
	"github.com/user/taskdesk-go/users"
)

// deliveryTimeout bounds one background reset email send, retries included.
const deliveryTimeout = time.Minute

// Accounts is the part of the user store the ledger needs.
type Accounts interface {
	GetByEmail(ctx context.Context, email string) (*users.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// Ledger manages the reset token lifecycle.
type Ledger struct {
	tokens   Store
	accounts Accounts
	hasher   password.Hasher
	notifier Notifier
	cfg      config.ResetConfig
	metrics  *metrics.Metrics
	now      func() time.Time
	random   io.Reader
	inflight sync.WaitGroup
}

// NewLedger creates a Ledger. A zero TokenTTL falls back to DefaultTTL.
func NewLedger(tokens Store, accounts Accounts, hasher password.Hasher, notifier Notifier, cfg config.ResetConfig) *Ledger {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTTL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Ledger{
		tokens:   tokens,
		accounts: accounts,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// WithMetrics records issue and consume outcomes on m.
func (l *Ledger) WithMetrics(m *metrics.Metrics) *Ledger {
	l.metrics = m
	return l
}

// ResetLink builds the URL mailed to the user.
func (l *Ledger) ResetLink(token string) string {
	return l.cfg.BaseURL + "/reset-password?token=" + url.QueryEscape(token)
}

func (l *Ledger) newToken() (string, error) {
	b := make([]byte, TokenBytes)
	if _, err := io.ReadFull(l.random, b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Issue creates a token for the user registered under email. An unknown email
// returns an empty token and a nil error and stores nothing.
func (l *Ledger) Issue(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}

	user, err := l.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return "", nil
		}
		return "", apperror.NewDatabaseError("failed to look up user", err)
	}

	token, err := l.newToken()
	if err != nil {
		return "", apperror.NewInternalError("failed to generate reset token", err)
	}

	if l.cfg.InvalidatePrevious {
		n, err := l.tokens.DeleteForUser(ctx, user.ID)
		if err != nil {
			return "", apperror.NewDatabaseError("failed to invalidate previous reset tokens", err)
		}
		if n > 0 {
			log.Debug().Str("user_id", user.ID.String()).Int64("count", n).Msg("invalidated previous reset tokens")
		}
	}

	now := l.now().UTC()
	rec := &Token{
		Token:     token,
		UserID:    user.ID,
		Expires:   now.Add(l.cfg.TokenTTL),
		CreatedAt: now,
	}
	if err := l.tokens.Create(ctx, rec); err != nil {
		return "", apperror.NewDatabaseError("failed to store reset token", err)
	}

	l.metrics.ResetIssued()
	log.Info().Str("user_id", user.ID.String()).Time("expires", rec.Expires).Msg("password reset token issued")
	return token, nil
}

// RequestReset issues a token and mails the reset link in the background, so
// known and unknown emails take the same time to answer. Delivery failures are
// logged, not returned.
func (l *Ledger) RequestReset(ctx context.Context, email string) error {
	token, err := l.Issue(ctx, email)
	if err != nil {
		return err
	}
	if token == "" {
		log.Debug().Msg("password reset requested for unknown email")
		return nil
	}

	to, link := strings.TrimSpace(email), l.ResetLink(token)
	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if err := l.notifier.SendPasswordReset(sendCtx, to, link); err != nil {
			log.Error().
				Err(apperror.NewExternalServiceError("failed to deliver password reset email", err)).
				Msg("password reset email not sent")
		}
	}()
	return nil
}

// Wait blocks until every reset email started by RequestReset has finished sending.
func (l *Ledger) Wait() {
	l.inflight.Wait()
}

// Consume sets a new password for the token's user and invalidates the token.
// It returns a validation error for a password outside policy, ErrInvalidToken
// for unknown or already used tokens and ErrExpiredToken for expired ones.
func (l *Ledger) Consume(ctx context.Context, token, newPassword string) error {
	if err := password.Validate("password", newPassword); err != nil {
		l.metrics.ResetConsumed(metrics.ResultRejected)
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		l.metrics.ResetConsumed(metrics.ResultInvalid)
		return ErrInvalidToken
	}

	rec, err := l.tokens.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			l.metrics.ResetConsumed(metrics.ResultInvalid)
			return ErrInvalidToken
		}
		l.metrics.ResetConsumed(metrics.ResultError)
		return apperror.NewDatabaseError("failed to look up reset token", err)
	}
	if rec.Expired(l.now()) {
		l.metrics.ResetConsumed(metrics.ResultExpired)
		return ErrExpiredToken
	}

	hash, err := l.hasher.Hash(newPassword)
	if err != nil {
		l.metrics.ResetConsumed(metrics.ResultError)
		return apperror.NewInternalError("failed to hash password", err)
	}

	removed, err := l.tokens.Delete(ctx, token)
	if err != nil {
		l.metrics.ResetConsumed(metrics.ResultError)
		return apperror.NewDatabaseError("failed to consume reset token", err)
	}
	if !removed {
		// Another request consumed it between Get and Delete.
		l.metrics.ResetConsumed(metrics.ResultInvalid)
		return ErrInvalidToken
	}

	if err := l.accounts.UpdatePassword(ctx, rec.UserID, hash); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			l.metrics.ResetConsumed(metrics.ResultInvalid)
			return ErrInvalidToken
		}
		if restoreErr := l.tokens.Create(context.WithoutCancel(ctx), rec); restoreErr != nil {
			log.Error().Err(restoreErr).Str("user_id", rec.UserID.String()).Msg("failed to restore reset token")
		}
		l.metrics.ResetConsumed(metrics.ResultError)
		return apperror.NewDatabaseError("failed to update password", err)
	}

	l.metrics.ResetConsumed(metrics.ResultSuccess)
	log.Info().Str("user_id", rec.UserID.String()).Msg("password reset completed")
	return nil
}

// Purge deletes expired tokens and returns how many were removed.
func (l *Ledger) Purge(ctx context.Context) (int64, error) {
	n, err := l.tokens.PurgeExpired(ctx, l.now())
	if err != nil {
		return 0, apperror.NewDatabaseError("failed to purge expired reset tokens", err)
	}
	return n, nil
}
