package api

import (
	"net/http"
	"strings"
)

// CORS echoes allow-listed origins back on every request and short-circuits
// preflight. An empty allow-list means permissive mode: every origin is
// allowed via the wildcard header.
type CORS struct {
	origins  map[string]struct{}
	allowAll bool
}

func NewCORS(allowed []string) *CORS {
	origins := make(map[string]struct{})
	for _, o := range allowed {
		o = normalizeOrigin(o)
		if o != "" {
			origins[o] = struct{}{}
		}
	}
	return &CORS{
		origins:  origins,
		allowAll: len(origins) == 0,
	}
}

// AllowAll reports whether the negotiator is running without an allow-list.
func (c *CORS) AllowAll() bool { return c.allowAll }

func (c *CORS) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if c.allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if _, ok := c.origins[normalizeOrigin(origin)]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			methods := r.Header.Get("Access-Control-Request-Method")
			if methods == "" {
				methods = "GET, POST, DELETE, OPTIONS"
			}
			headers := r.Header.Get("Access-Control-Request-Headers")
			if headers == "" {
				headers = "Content-Type"
			}
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// normalizeOrigin folds case and strips the trailing slash so config
// entries like "https://Example.com/" match the browser's Origin header.
func normalizeOrigin(o string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
}
