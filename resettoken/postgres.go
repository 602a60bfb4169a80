package resettoken

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/taskdesk-go/db"
)

// PostgresStore keeps tokens in the `password_reset_tokens` table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, t *Token) error {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO password_reset_tokens (token, user_id, expires, created_at) VALUES ($1, $2, $3, $4)`,
		t.Token, t.UserID, t.Expires, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, token string) (*Token, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	var t Token
	err := pgxscan.Get(ctx, s.pool, &t,
		`SELECT token, user_id, expires, created_at FROM password_reset_tokens WHERE token = $1`, token)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select reset token: %w", err)
	}
	return &t, nil
}

// Delete is the atomic boundary of a consume: only the caller whose DELETE
// affects the row gets true.
func (s *PostgresStore) Delete(ctx context.Context, token string) (bool, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("delete reset token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeleteForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete user reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
