package users

import (
	"context"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/taskdesk-go/db"
)

const userColumns = `id, email, password_hash, name, created_at, updated_at`

// PostgresRepository stores users in the `users` table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	query := `INSERT INTO users (id, email, password_hash, name)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, u.ID, u.Email, u.PasswordHash, u.Name).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "users_email_key") {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail matches the email exactly as stored.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*User, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	var u User
	if err := pgxscan.Get(ctx, r.pool, &u, query, arg); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdateName(ctx context.Context, id uuid.UUID, name *string) (*User, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	var u User
	err := pgxscan.Get(ctx, r.pool, &u,
		`UPDATE users SET name = $1, updated_at = $2 WHERE id = $3 RETURNING `+userColumns,
		name, time.Now().UTC(), id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user name: %w", err)
	}
	return &u, nil
}
