package appMiddleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-user-accounts/config"
)

func newLimiter(t *testing.T, perMinute float64, burst int) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerMinute: perMinute, Burst: burst, CleanupInterval: time.Hour},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(rl.Stop)
	return rl
}

func call(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := newLimiter(t, 6, 2)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.Equal(t, http.StatusNoContent, call(h, "10.0.0.1:1111").Code)
	assert.Equal(t, http.StatusNoContent, call(h, "10.0.0.1:2222").Code)

	rr := call(h, "10.0.0.1:3333")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"statusCode":429,"data":null,"error":"Too many requests"}`, rr.Body.String())

	assert.Equal(t, http.StatusNoContent, call(h, "10.0.0.2:1111").Code, "other clients have their own bucket")
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := newLimiter(t, 60, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.get("a")
	now = now.Add(10 * time.Minute)
	rl.get("b")
	rl.sweep(5 * time.Minute)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
	rl.Stop()
}
