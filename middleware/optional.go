package middleware

import (
	"context"
	"net/http"
)

// Optional attaches the identity when a valid access token is present and
// passes every request through otherwise.
func Optional(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v != nil {
				if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
					if id, err := v.VerifyAccessToken(r.Context(), token); err == nil {
						r = r.WithContext(context.WithValue(r.Context(), identityContextKey{}, id))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
