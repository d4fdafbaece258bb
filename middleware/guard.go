package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	tokenAuth "github.com/MrEthical07/tokenAuth"
)

// Authenticator validates an access token. *tokenAuth.Engine implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (tokenAuth.Identity, error)
}

const expiredChallenge = `Bearer error="invalid_token", error_description="token expired"`

// Guard authenticates the bearer token of every request and stores the
// identity in the request context (see [tokenAuth.IdentityFromContext]).
func Guard(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := tokenAuth.WithClientIP(r.Context(), ClientIP(r))
			id, err := auth.Authenticate(ctx, token)
			if err != nil {
				if errors.Is(err, tokenAuth.ErrTokenExpired) {
					w.Header().Set("WWW-Authenticate", expiredChallenge)
				} else {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				}
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(tokenAuth.WithIdentity(ctx, id)))
		})
	}
}

// BearerToken extracts the token from the Authorization header. The literal
// "null" some clients send after logout counts as absent.
func BearerToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	value := r.Header.Get("Authorization")
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" || token == "null" {
		return "", false
	}

	return token, true
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
