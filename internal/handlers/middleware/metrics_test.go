package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recorderFunc func(method, path string, status int, duration time.Duration)

func (f recorderFunc) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	f(method, path, status, duration)
}

func TestMetricsMiddleware(t *testing.T) {
	var gotMethod, gotPath string
	var gotStatus int
	called := 0

	recorder := recorderFunc(func(method, path string, status int, _ time.Duration) {
		called++
		gotMethod, gotPath, gotStatus = method, path, status
	})

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	srv := httptest.NewServer(MetricsMiddleware(recorder, "POST /api/withdrawals/{id}")(h))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/withdrawals/42", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, 1, called)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "POST /api/withdrawals/{id}", gotPath, "pattern is used instead of raw path")
	require.Equal(t, http.StatusConflict, gotStatus)
}
