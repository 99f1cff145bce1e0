package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// HeaderOwnerID names the owner a request acts for.
const HeaderOwnerID = "X-Owner-ID"

type ownerIDKey struct{}

// Owner requires an X-Owner-ID header and stores its value in the request
// context. Requests without one are rejected with 401.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := strings.TrimSpace(r.Header.Get(HeaderOwnerID))
		if owner == "" {
			writeError(w, http.StatusUnauthorized, "missing "+HeaderOwnerID+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), owner)))
	})
}

// WithOwnerID returns ctx carrying ownerID.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey{}, ownerID)
}

// OwnerIDFromContext returns the owner stored by Owner.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ownerIDKey{}).(string)
	return id, ok && id != ""
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"message": message,
	})
}
