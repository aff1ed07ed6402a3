package middleware

import (
	"net/http"
	"time"
)

type httpRecorder interface {
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// MetricsMiddleware records request under route pattern, not raw path, to keep label set bounded
func MetricsMiddleware(m httpRecorder, pattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			m.RecordHTTPRequest(r.Method, pattern, sw.status, time.Since(start))
		})
	}
}
