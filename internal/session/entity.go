package session

import "time"

// Session is a persisted login. The opaque token itself is never stored,
// only its SHA-256 fingerprint.
type Session struct {
	TokenHash string    `db:"token_hash"`
	ID        string    `db:"id"`
	UserID    int64     `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
	ExpiresAt time.Time `db:"expires_at"`
}

// Expired reports whether the session is past its lifetime at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
