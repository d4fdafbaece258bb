package middleware

import (
	"net/http"

	tokenAuth "github.com/MrEthical07/tokenAuth"
)

// RequireClaims rejects with 403 unless the identity placed in the context by
// [Guard] holds every claim. Without an identity it answers 401.
func RequireClaims(claims ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := tokenAuth.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, c := range claims {
				if !id.HasClaim(c) {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
