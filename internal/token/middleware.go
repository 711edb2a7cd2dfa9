package token

import (
	"context"
	"net/http"

	"github.com/lumora-social/lumora/internal/platform/httpx"
)

type claimsCtxKey struct{}

// ClaimsFromContext returns the verified claims attached by Middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsCtxKey{}).(*Claims)
	return claims, ok
}

// Middleware requires a valid bearer token and attaches its claims to
// the request context. Requests without one get a 401 problem response.
func Middleware(issuer *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := FromHeader(r)
			if err != nil {
				httpx.Unauthorized(w)
				return
			}
			claims, err := issuer.Parse(raw)
			if err != nil {
				httpx.Unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsCtxKey{}, claims)))
		})
	}
}
