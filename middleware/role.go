package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/credcore"
)

// RequireRole must run after Guard. It answers 403 unless the identity holds
// one of roles.
func RequireRole(roles ...credcore.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				unauthorized(w, nil)
				return
			}
			if !slices.Contains(roles, credcore.Role(id.Role)) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
