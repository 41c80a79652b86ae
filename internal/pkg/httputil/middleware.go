package httputil

import (
	"net/http"
)

// OriginPolicy decides which browser origins may call the control API.
// "*" allows every origin.
type OriginPolicy struct {
	any     bool
	origins map[string]bool
}

// NewOriginPolicy builds a policy from configured origins.
func NewOriginPolicy(origins []string) OriginPolicy {
	p := OriginPolicy{origins: make(map[string]bool, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.any = true
		}
		p.origins[o] = true
	}
	return p
}

// Allowed reports whether origin may call the API.
func (p OriginPolicy) Allowed(origin string) bool {
	return origin != "" && (p.any || p.origins[origin])
}

// CheckRequest is a websocket.Upgrader CheckOrigin function. Requests without
// an Origin header come from non-browser clients and are accepted.
func (p OriginPolicy) CheckRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.Allowed(origin)
}

// CORSMiddleware adds CORS headers for allowed origins and answers preflight
// requests.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := NewOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if policy.Allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-Id")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
