package router

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/session"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/todo"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/internal/user"
	"github.com/ovaphlow/pitchfork/service-todo-go-stdlib/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if lrw.status == 0 {
		lrw.status = code
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

func (lrw *loggingResponseWriter) statusCode() int {
	if lrw.status == 0 {
		return http.StatusOK
	}
	return lrw.status
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			logger.Debugw("http request",
				"request_id", RequestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", lrw.statusCode(),
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			// JSON only; nothing here should ever be rendered or framed
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Cache-Control", "no-store")

			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Pinger reports whether the backing database is reachable. *sqlx.DB and
// *sql.DB satisfy it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators RegisterRoutes mounts.
type Deps struct {
	Logger   *zap.SugaredLogger
	DB       Pinger
	Users    *user.UserService
	Sessions *session.Manager
	Codec    *session.CookieCodec
	Todos    *todo.Service
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
// Everything under /api/todos and /api/users/me sits behind the session gate.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	logger := d.Logger

	mux.HandleFunc("GET /api/health", healthHandler(d.DB, logger))
	mux.Handle("GET /metrics", promhttp.Handler())

	userHandler := user.NewHandler(d.Users, d.Sessions, d.Codec, logger, RecordLogin)
	todoHandler := todo.NewHandler(d.Todos, logger)
	gate := session.RequireSession(d.Sessions, d.Codec, logger)

	mux.HandleFunc("POST /api/users/register", userHandler.Register)
	mux.HandleFunc("POST /api/users/login", userHandler.Login)
	mux.HandleFunc("POST /api/users/logout", userHandler.Logout)
	mux.Handle("GET /api/users/me", gate(http.HandlerFunc(userHandler.Me)))
	mux.Handle("PUT /api/users/me", gate(http.HandlerFunc(userHandler.UpdateMe)))

	mux.Handle("POST /api/todos", gate(http.HandlerFunc(todoHandler.Create)))
	mux.Handle("GET /api/todos", gate(http.HandlerFunc(todoHandler.List)))
	mux.Handle("GET /api/todos/{id}", gate(http.HandlerFunc(todoHandler.Get)))
	mux.Handle("PUT /api/todos/{id}", gate(http.HandlerFunc(todoHandler.Update)))
	mux.Handle("PATCH /api/todos/{id}", gate(http.HandlerFunc(todoHandler.Update)))
	mux.Handle("DELETE /api/todos/{id}", gate(http.HandlerFunc(todoHandler.Delete)))

	// outermost first: request id, recover, logging, headers, metrics, mux
	var handler http.Handler = MetricsMiddleware(mux)
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(logger)(handler)
	handler = RecoverMiddleware(logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

func healthHandler(db Pinger, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			logger.Warnw("health check failed", "err", err)
			utilities.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		utilities.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
