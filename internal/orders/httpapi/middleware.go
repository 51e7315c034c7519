package httpapi

import (
	"context"
	"net/http"
)

type contextKey string

const userIDContextKey contextKey = "user_id"

// UserAuthMiddleware extracts the caller identity from the X-User-Id header
// set by the edge gateway after it validates the JWT. Requests without an
// identity are rejected before reaching any handler.
func UserAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getUserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDContextKey).(string)
	return userID
}
