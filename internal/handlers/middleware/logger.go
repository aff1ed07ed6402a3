package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Request id is taken from client if sane, otherwise generated; echoed back in response
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 64

type logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// statusWriter remembers what handler wrote
type statusWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.size += size
	return size, err
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.status = statusCode
}

func requestID(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	return id
}

// LoggerMiddleware logs every request; 5xx responses are logged as errors
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := requestID(r)
			w.Header().Set(RequestIDHeader, id)

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			args := []any{
				"request_id", id,
				"method", r.Method,
				"uri", r.RequestURI,
				"status", sw.status,
				"size", sw.size,
				"duration", time.Since(start),
			}
			if sw.status >= http.StatusInternalServerError {
				l.Error("HTTP request failed", args...)
				return
			}
			l.Info("HTTP request served", args...)
		})
	}
}
