package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func corsRequest(c *CORS, method, origin string, headers map[string]string) (*httptest.ResponseRecorder, bool) {
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(method, "/api/chat", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c.Middleware(next).ServeHTTP(rec, req)
	return rec, nextCalled
}

func TestCORS_EchoesAllowedOrigin(t *testing.T) {
	c := NewCORS([]string{"https://allowed.example"})

	rec, nextCalled := corsRequest(c, http.MethodPost, "https://allowed.example", nil)
	require.True(t, nextCalled)
	require.Equal(t, "https://allowed.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestCORS_NormalizesConfiguredOrigins(t *testing.T) {
	c := NewCORS([]string{" https://Allowed.Example/ "})

	rec, _ := corsRequest(c, http.MethodPost, "https://allowed.example", nil)
	require.Equal(t, "https://allowed.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_UnknownOriginGetsNoHeader(t *testing.T) {
	c := NewCORS([]string{"https://allowed.example"})

	rec, nextCalled := corsRequest(c, http.MethodPost, "https://evil.example", nil)
	require.True(t, nextCalled)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyAllowListIsPermissive(t *testing.T) {
	c := NewCORS(nil)
	require.True(t, c.AllowAll())

	rec, _ := corsRequest(c, http.MethodPost, "https://anything.example", nil)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	c := NewCORS([]string{"https://allowed.example"})

	rec, nextCalled := corsRequest(c, http.MethodOptions, "https://allowed.example", map[string]string{
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type, X-Custom",
	})
	require.False(t, nextCalled)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Body.Bytes())
	require.Equal(t, "https://allowed.example", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "POST", rec.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Content-Type, X-Custom", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestCORS_PreflightWithoutRequestHeadersUsesDefaults(t *testing.T) {
	c := NewCORS(nil)

	rec, _ := corsRequest(c, http.MethodOptions, "https://anything.example", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	require.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
}
