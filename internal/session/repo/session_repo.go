package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/session"
)

// SessionRepo persists sessions keyed by token fingerprint.
type SessionRepo struct {
	db *sqlx.DB
}

func NewSessionRepo(db *sqlx.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (r *SessionRepo) Save(ctx context.Context, s *session.Session) error {
	query := `INSERT INTO sessions (token_hash, id, user_id, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, s.TokenHash, s.ID, s.UserID, s.CreatedAt, s.ExpiresAt)
	return err
}

// Get returns sql.ErrNoRows when the fingerprint is unknown.
func (r *SessionRepo) Get(ctx context.Context, tokenHash string) (*session.Session, error) {
	var s session.Session
	query := `SELECT token_hash, id, user_id, created_at, expires_at FROM sessions WHERE token_hash = $1`
	if err := r.db.GetContext(ctx, &s, query, tokenHash); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete is a no-op for unknown fingerprints.
func (r *SessionRepo) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	return err
}

// DeleteExpired removes every session that expired at or before cutoff.
func (r *SessionRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
