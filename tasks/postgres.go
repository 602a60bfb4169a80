package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/taskdesk-go/db"
)

const taskColumns = `id, user_id, title, description, is_completed, created_at, updated_at`

// PostgresRepository stores tasks in the `tasks` table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, t *Task) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	query := `INSERT INTO tasks (id, user_id, title, description, is_completed)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query, t.ID, t.UserID, t.Title, t.Description, t.IsCompleted).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, taskID uuid.UUID) (*Task, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	var t Task
	err := pgxscan.Get(ctx, r.pool, &t,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Task, error) {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	var list []Task
	err := pgxscan.Select(ctx, r.pool, &list,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	return list, nil
}

// Update writes only the columns named by patch, in a single statement scoped to the owner.
func (r *PostgresRepository) Update(ctx context.Context, userID, taskID uuid.UUID, patch Patch) (*Task, error) {
	if patch.Empty() {
		return r.Get(ctx, userID, taskID)
	}

	var setClauses []string
	var args []any
	argID := 1

	if patch.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", argID))
		args = append(args, *patch.Title)
		argID++
	}
	if patch.SetDescription {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argID))
		args = append(args, patch.Description)
		argID++
	}
	if patch.IsCompleted != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_completed = $%d", argID))
		args = append(args, *patch.IsCompleted)
		argID++
	}
	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argID))
	args = append(args, time.Now().UTC())
	argID++

	args = append(args, taskID, userID)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d AND user_id = $%d RETURNING `+taskColumns,
		strings.Join(setClauses, ", "), argID, argID+1)

	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	var t Task
	if err := pgxscan.Get(ctx, r.pool, &t, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, taskID uuid.UUID) error {
	ctx, cancel := db.WithTimeout(ctx)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1 AND user_id = $2`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}
