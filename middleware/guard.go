package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/credcore"
)

// Verifier checks a bearer access token. *credcore.Engine satisfies it.
type Verifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (credcore.Identity, error)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by Guard or Optional.
func IdentityFromContext(ctx context.Context) (credcore.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(credcore.Identity)
	return id, ok
}

// Guard rejects requests without a valid access token. Tokens minted for
// any other purpose are refused.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w, nil)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, nil)
				return
			}

			id, err := v.VerifyAccessToken(r.Context(), token)
			if err != nil {
				unauthorized(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, err error) {
	challenge := `Bearer realm="credcore"`
	switch {
	case errors.Is(err, credcore.ErrTokenExpired):
		challenge += `, error="invalid_token", error_description="token expired"`
	case err != nil:
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
