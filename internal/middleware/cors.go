// Package middleware provides HTTP middleware for the model manager API.
package middleware

import (
	"net/http"
	"strconv"
	"time"
)

const preflightMaxAge = 10 * time.Minute

// CORS returns middleware that handles CORS headers. An origin of "*" admits
// every caller but never enables credentials.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			w.Header().Add("Vary", "Origin")

			if origin != "" {
				if explicit, ok := matchOrigin(allowedOrigins, origin); ok {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
					h.Set("Access-Control-Max-Age", strconv.Itoa(int(preflightMaxAge.Seconds())))
					if explicit {
						h.Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// matchOrigin reports whether origin is allowed and whether it was listed
// explicitly rather than through the wildcard.
func matchOrigin(allowedOrigins []string, origin string) (explicit, ok bool) {
	for _, o := range allowedOrigins {
		if o == origin {
			return true, true
		}
	}
	for _, o := range allowedOrigins {
		if o == "*" {
			return false, true
		}
	}
	return false, false
}
