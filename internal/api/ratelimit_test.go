package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func limitedRequest(l *RateLimiter, method, path, forwardedFor string) (*httptest.ResponseRecorder, bool) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "198.51.100.7:54321"
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	l.Middleware(next).ServeHTTP(rec, req)
	return rec, nextCalled
}

func TestRateLimiter_RejectsOverBudget(t *testing.T) {
	l := NewRateLimiter(2, 5*time.Minute)

	for i := 0; i < 2; i++ {
		rec, nextCalled := limitedRequest(l, http.MethodPost, "/api/chat", "")
		require.True(t, nextCalled)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, nextCalled := limitedRequest(l, http.MethodPost, "/api/chat", "")
	require.False(t, nextCalled)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	var out struct {
		Error             string `json:"error"`
		RetryAfterSeconds int    `json:"retryAfterSeconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Error)
	require.Greater(t, out.RetryAfterSeconds, 0)
}

func TestRateLimiter_SetsBudgetHeaders(t *testing.T) {
	l := NewRateLimiter(5, time.Minute)

	rec, _ := limitedRequest(l, http.MethodPost, "/api/chat", "")
	require.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	require.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimiter_ExemptsPreflightAndHealth(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	for i := 0; i < 5; i++ {
		rec, nextCalled := limitedRequest(l, http.MethodOptions, "/api/chat", "")
		require.True(t, nextCalled)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, nextCalled = limitedRequest(l, http.MethodGet, "/health", "")
		require.True(t, nextCalled)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	// Budget is still untouched.
	rec, nextCalled := limitedRequest(l, http.MethodPost, "/api/chat", "")
	require.True(t, nextCalled)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Now()
	l := NewRateLimiter(1, time.Minute)
	l.now = func() time.Time { return now }

	_, nextCalled := limitedRequest(l, http.MethodPost, "/api/chat", "")
	require.True(t, nextCalled)

	_, nextCalled = limitedRequest(l, http.MethodPost, "/api/chat", "")
	require.False(t, nextCalled)

	now = now.Add(61 * time.Second)
	_, nextCalled = limitedRequest(l, http.MethodPost, "/api/chat", "")
	require.True(t, nextCalled)
}

func TestRateLimiter_KeysByClientIP(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	_, nextCalled := limitedRequest(l, http.MethodPost, "/api/chat", "203.0.113.1")
	require.True(t, nextCalled)

	// Different forwarded client, same socket address: separate budget.
	_, nextCalled = limitedRequest(l, http.MethodPost, "/api/chat", "203.0.113.2")
	require.True(t, nextCalled)

	_, nextCalled = limitedRequest(l, http.MethodPost, "/api/chat", "203.0.113.1")
	require.False(t, nextCalled)
}

func TestClientIP_TrustsOneForwardedHop(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "198.51.100.7:54321"
	require.Equal(t, "198.51.100.7", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "203.0.113.9", clientIP(req))

	// Only the entry appended by the trusted hop counts.
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 203.0.113.9")
	require.Equal(t, "203.0.113.9", clientIP(req))
}
