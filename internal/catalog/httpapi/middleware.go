package httpapi

import (
	"net/http"
	"strings"
)

// ServiceAuthMiddleware guards the internal endpoints: callers must present a
// bearer token issued by the auth service. Signature and claim validation
// happen in the edge layer; this only rejects unauthenticated calls outright.
func ServiceAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") || strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")) == "" {
			respondError(w, http.StatusUnauthorized, "unauthenticated", "missing service credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}
