package internal

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// CORS lets browsers on allowed origins call the upload endpoint. Patterns
// are host globs, the same form the websocket handshake accepts, matched
// case-insensitively against the Origin host.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !originAllowed(origin, r.Host, allowedOrigins) {
				http.Error(w, "origin not allowed", http.StatusForbidden)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin, host string, patterns []string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	// Same-origin requests are always fine.
	if strings.EqualFold(u.Host, host) {
		return true
	}

	for _, pattern := range patterns {
		matched, err := path.Match(strings.ToLower(pattern), strings.ToLower(u.Host))
		if err == nil && matched {
			return true
		}
	}

	return false
}
