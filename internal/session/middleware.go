package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/apperr"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// Resolver maps a token to its user. *Manager satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, token string) (int64, bool, error)
}

// WithUserID attaches the acting user id to ctx.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// UserIDFromContext returns the acting user id set by RequireSession.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDContextKey).(int64)
	return id, ok
}

var errUnauthenticated = apperr.New(apperr.ErrUnauthenticated, "authentication required")

// RequireSession rejects requests without a live session with 401 before
// they reach next, and otherwise passes the resolved user id down through
// the request context. It never mutates session or user state.
func RequireSession(resolver Resolver, codec *CookieCodec, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := codec.TokenFromRequest(r)
			if !ok {
				apperr.Write(w, logger, errUnauthenticated)
				return
			}
			userID, ok, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				apperr.Write(w, logger, err)
				return
			}
			if !ok {
				apperr.Write(w, logger, errUnauthenticated)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
