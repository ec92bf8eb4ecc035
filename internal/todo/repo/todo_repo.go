package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/todo/entity"
)

// TodoRepo provides owner-scoped data access for the todos table.
// Every query that touches a single row filters on id AND user_id in the same
// statement; there is no unscoped lookup by id.
type TodoRepo struct {
	db *sqlx.DB
}

func NewTodoRepo(db *sqlx.DB) *TodoRepo { return &TodoRepo{db: db} }

const todoColumns = `id, user_id, title, description, deadline, completed, created_at, updated_at`

// Create inserts t (ID already assigned) and fills the timestamps.
func (r *TodoRepo) Create(ctx context.Context, t *entity.Todo) error {
	const q = `INSERT INTO todos (id, user_id, title, description, deadline, completed)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q, t.ID, t.UserID, t.Title, t.Description, t.Deadline, t.Completed).
		Scan(&t.CreatedAt, &t.UpdatedAt)
}

// ListByOwner returns the owner's todos ordered by deadline, then id.
func (r *TodoRepo) ListByOwner(ctx context.Context, userID int64) ([]entity.Todo, error) {
	todos := []entity.Todo{}
	q := `SELECT ` + todoColumns + ` FROM todos WHERE user_id=$1 ORDER BY deadline ASC, id ASC`
	if err := r.db.SelectContext(ctx, &todos, q, userID); err != nil {
		return nil, err
	}
	return todos, nil
}

// GetScoped returns sql.ErrNoRows unless the row exists and belongs to userID.
func (r *TodoRepo) GetScoped(ctx context.Context, userID, id int64) (*entity.Todo, error) {
	var t entity.Todo
	q := `SELECT ` + todoColumns + ` FROM todos WHERE id=$1 AND user_id=$2`
	if err := r.db.GetContext(ctx, &t, q, id, userID); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateScoped locks the owner's row, lets apply mutate it and writes it back
// in one transaction. An error from apply aborts the update.
func (r *TodoRepo) UpdateScoped(ctx context.Context, userID, id int64, apply func(*entity.Todo) error) (*entity.Todo, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var t entity.Todo
	sel := `SELECT ` + todoColumns + ` FROM todos WHERE id=$1 AND user_id=$2 FOR UPDATE`
	if err := tx.GetContext(ctx, &t, sel, id, userID); err != nil {
		return nil, err
	}
	if err := apply(&t); err != nil {
		return nil, err
	}

	const upd = `UPDATE todos SET title=$3, description=$4, deadline=$5, completed=$6, updated_at=NOW()
		WHERE id=$1 AND user_id=$2 RETURNING updated_at`
	if err := tx.QueryRowxContext(ctx, upd, t.ID, userID, t.Title, t.Description, t.Deadline, t.Completed).
		Scan(&t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteScoped permanently removes the owner's row; sql.ErrNoRows if none matched.
func (r *TodoRepo) DeleteScoped(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM todos WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
