package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user/entity"
)

// UserRepo provides data access for the users table using sqlx.
// Lookups return sql.ErrNoRows when nothing matches; callers translate.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, password_hash, password_algo, first_name, last_name, created_at, updated_at`

// Create inserts a new user row and fills ID and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (email, password_hash, password_algo, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q, u.Email, u.PasswordHash, u.PasswordAlgo, u.FirstName, u.LastName).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// GetByEmail returns a user matched by email (case-insensitive due to citext).
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email=$1`, email); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// Update persists the mutable profile columns and the credential as given.
// Hashing is the caller's job; this writes whatever PasswordHash holds.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET email=$2, password_hash=$3, password_algo=$4, first_name=$5, last_name=$6, updated_at=NOW()
		WHERE id=$1 RETURNING updated_at`
	return r.db.QueryRowxContext(ctx, q, u.ID, u.Email, u.PasswordHash, u.PasswordAlgo, u.FirstName, u.LastName).
		Scan(&u.UpdatedAt)
}
