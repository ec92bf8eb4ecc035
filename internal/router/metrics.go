package router

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "todo_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "todo_login_attempts_total",
			Help: "Total login attempts by outcome",
		},
		[]string{"success"},
	)
)

// MetricsMiddleware records request duration labelled by the matched route
// pattern, so ids in paths do not blow up label cardinality. It must wrap the
// ServeMux directly for r.Pattern to be visible after dispatch.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := &loggingResponseWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(lrw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(lrw.statusCode())).
			Observe(time.Since(start).Seconds())
	})
}

// RecordLogin counts a login attempt.
func RecordLogin(success bool) {
	loginAttempts.WithLabelValues(strconv.FormatBool(success)).Inc()
}
