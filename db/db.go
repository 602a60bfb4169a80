// Package db provides the PostgreSQL connection pool, the embedded schema
// migrations, and small helpers shared by the Postgres-backed stores.
package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	// Registers the "postgres" database driver for golang-migrate; it speaks lib/pq.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // database/sql driver used by migrate's postgres driver

	"github.com/user/taskdesk-go/apperror"
	"github.com/user/taskdesk-go/config"
)

// QueryTimeout bounds every store call so a hung connection cannot pin a request.
const QueryTimeout = 5 * time.Second

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewPool establishes the application's pgx connection pool and pings it.
func NewPool(cfg *config.PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, apperror.NewDatabaseError(fmt.Sprintf("error parsing DSN for database %s", cfg.DBName), err)
	}

	poolConfig.MaxConns = int32(cfg.MaxSize)
	poolConfig.MaxConnIdleTime = 10 * time.Minute
	poolConfig.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, apperror.NewDatabaseError(fmt.Sprintf("error creating pgxpool for database %s", cfg.DBName), err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, apperror.NewDatabaseError(fmt.Sprintf("error connecting to the database %s", cfg.DBName), err)
	}

	return pool, nil
}

// DSN builds a postgres:// URL understood by both pgx and golang-migrate.
func DSN(cfg *config.PoolConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     "/" + cfg.DBName,
		RawQuery: url.Values{"sslmode": []string{cfg.SSLMode}}.Encode(),
	}
	return u.String()
}

// MigrateDirection selects what RunMigrations does.
type MigrateDirection string

const (
	MigrateUp   MigrateDirection = "up"
	MigrateDown MigrateDirection = "down" // rolls back a single step
)

// RunMigrations applies (or rolls back one step of) the embedded SQL migrations.
// It returns the schema version after the run.
func RunMigrations(cfg *config.PoolConfig, direction MigrateDirection) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, apperror.NewMigrationError("failed to open embedded migrations", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, DSN(cfg))
	if err != nil {
		return 0, apperror.NewMigrationError("failed to create migrator", err)
	}
	defer m.Close()

	switch direction {
	case MigrateUp:
		err = m.Up()
	case MigrateDown:
		err = m.Steps(-1)
	default:
		return 0, apperror.NewMigrationError(fmt.Sprintf("unknown migration direction %q", direction), nil)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, apperror.NewMigrationError(fmt.Sprintf("failed to run migrations %s", direction), err)
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, apperror.NewMigrationError("failed to read schema version", err)
	}
	return version, nil
}

// WithTimeout derives a context bounded by QueryTimeout.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, QueryTimeout)
}

// IsUniqueViolation reports whether err is a PostgreSQL unique violation,
// optionally restricted to constraint.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
