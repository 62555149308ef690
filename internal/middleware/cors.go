package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig lists the browser origins allowed to call the API. There are
// no wildcards; an empty list disables CORS handling.
type CORSConfig struct {
	AllowedOrigins []string
	AllowedHeaders []string
	MaxAge         int // preflight cache, seconds
}

// OriginPolicy answers whether a browser origin may call the API. The
// websocket upgrader uses it for its origin check.
type OriginPolicy struct {
	origins map[string]bool
}

// NewOriginPolicy builds a policy from the configured origins.
func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{origins: make(map[string]bool, len(origins))}
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			p.origins[o] = true
		}
	}
	return p
}

// Enabled reports whether any origin is configured.
func (p *OriginPolicy) Enabled() bool { return len(p.origins) > 0 }

// Allowed reports whether r may proceed: requests without an Origin header
// are same-origin; with CORS disabled every origin is accepted.
func (p *OriginPolicy) Allowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || !p.Enabled() {
		return true
	}
	return p.origins[origin]
}

// CORS answers preflight requests and sets CORS headers for allowed
// origins. Disallowed origins get 403.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := NewOriginPolicy(cfg.AllowedOrigins)
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Authorization", RequestIDHeader}
	}
	allowHeaders := strings.Join(headers, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if !policy.Enabled() || origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !policy.Allowed(r) {
				writeError(w, http.StatusForbidden, "forbidden", "Origin not allowed")
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader+", Retry-After")
			if r.Method == http.MethodOptions {
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
