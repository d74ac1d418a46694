package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "Content-Type, " + RequestIDHeader
	corsMaxAge       = "600"
)

// CORS lets the configured front-end origin call the API. allowedOrigin is
// read per request so a refreshed configuration applies without a restart;
// "*" allows any origin and "" disables CORS headers.
//
// Preflight requests are answered here with 204 and never reach next.
func CORS(allowedOrigin func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := allowedOrigin()
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin != "" && allowed != "" {
				switch {
				case allowed == "*":
					h.Set("Access-Control-Allow-Origin", "*")
				case strings.EqualFold(strings.TrimRight(allowed, "/"), origin):
					h.Set("Access-Control-Allow-Origin", origin)
				}
				h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
