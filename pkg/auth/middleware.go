// Package auth authenticates API callers. Every authenticated request acts as
// exactly one wallet, taken from a bearer token's subject.
package auth

import (
	"net/http"
	"strings"

	"github.com/alexbensimon/pakt/pkg/httpx"
	"github.com/alexbensimon/pakt/pkg/identity"
)

// Validator turns a bearer token into wallet claims.
type Validator interface {
	Validate(token string) (*identity.WalletClaims, error)
}

// publicPaths are reachable without a token.
var publicPaths = []string{
	"/health",
	"/webhook/verifier",
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return strings.HasPrefix(path, "/api/v1/public/")
}

// NewMiddleware creates bearer token middleware. A nil validator rejects every
// non-public request.
func NewMiddleware(validator Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				httpx.WriteUnauthorized(w, "Missing Authorization header")
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				httpx.WriteUnauthorized(w, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}
			if validator == nil {
				httpx.WriteUnauthorized(w, "Authentication not configured")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				httpx.WriteUnauthorized(w, "Invalid or expired token")
				return
			}
			if claims.Wallet.IsZero() {
				httpx.WriteUnauthorized(w, "Token wallet binding is required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithWallet(r.Context(), claims.Wallet)))
		})
	}
}
