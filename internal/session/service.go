package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/utilities"
)

// tokenBytes is the entropy of an opaque session token before encoding.
const tokenBytes = 32

// Store is the server-side session table. Get reports an unknown
// fingerprint as sql.ErrNoRows; Delete of an unknown fingerprint succeeds.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, tokenHash string) (*Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	Secret        string
	TTL           time.Duration
	SweepInterval time.Duration
	CookieSecure  bool
}

// ConfigFromEnv reads SESSION_SECRET, SESSION_TTL, SESSION_SWEEP_INTERVAL and COOKIE_SECURE.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Secret:        os.Getenv("SESSION_SECRET"),
		TTL:           24 * time.Hour,
		SweepInterval: 10 * time.Minute,
		CookieSecure:  os.Getenv("COOKIE_SECURE") != "false",
	}
	if len(cfg.Secret) < 32 {
		return Config{}, errors.New("SESSION_SECRET must be set to at least 32 characters")
	}
	if v := os.Getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid SESSION_TTL %q", v)
		}
		cfg.TTL = d
	}
	if v := os.Getenv("SESSION_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid SESSION_SWEEP_INTERVAL %q", v)
		}
		cfg.SweepInterval = d
	}
	return cfg, nil
}

// Manager issues, resolves and destroys opaque session tokens.
type Manager struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewManager(store Store, ttl time.Duration, logger *zap.SugaredLogger) *Manager {
	return &Manager{store: store, ttl: ttl, now: time.Now, logger: logger}
}

// Create binds a fresh unguessable token to userID and persists it.
func (m *Manager) Create(ctx context.Context, userID int64) (string, *Session, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := m.now().UTC()
	s := &Session{
		TokenHash: Fingerprint(token),
		ID:        utilities.NewKSUID(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return "", nil, apperr.Storage("save session", err)
	}
	m.logger.Infow("session created", "session_id", s.ID, "user_id", userID)
	return token, s, nil
}

// Resolve returns the user bound to token. ok is false for unknown or
// expired tokens; err is set only when the store itself fails.
func (m *Manager) Resolve(ctx context.Context, token string) (userID int64, ok bool, err error) {
	if token == "" {
		return 0, false, nil
	}
	s, err := m.store.Get(ctx, Fingerprint(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, apperr.Storage("get session", err)
	}
	if s.Expired(m.now()) {
		return 0, false, nil
	}
	return s.UserID, true, nil
}

// Destroy invalidates token. Destroying an absent session succeeds.
func (m *Manager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := m.store.Delete(ctx, Fingerprint(token)); err != nil {
		return apperr.Storage("delete session", err)
	}
	return nil
}

// Sweep removes expired sessions and returns how many were deleted.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	n, err := m.store.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, apperr.Storage("sweep sessions", err)
	}
	return n, nil
}

// RunJanitor sweeps every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Warnw("session sweep failed", "err", err)
				continue
			}
			if n > 0 {
				m.logger.Debugw("expired sessions removed", "count", n)
			}
		}
	}
}

// Fingerprint is the storage key for a token.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
