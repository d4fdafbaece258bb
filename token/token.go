package token

import (
	"strings"
	"time"
)

// Kind distinguishes short-lived access tokens from long-lived refresh tokens.
type Kind uint8

const (
	// KindUnknown is the zero value and is never issued.
	KindUnknown Kind = iota
	// KindAccess marks a token that authorizes API calls.
	KindAccess
	// KindRefresh marks a token that may only be exchanged for a new pair.
	KindRefresh
)

// String returns the wire name of the kind ("access" / "refresh").
func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire name back to a Kind. Unknown names yield KindUnknown.
func ParseKind(s string) Kind {
	switch s {
	case "access":
		return KindAccess
	case "refresh":
		return KindRefresh
	default:
		return KindUnknown
	}
}

// Identity is an authenticated subject and its authorization claims.
//
// Identity values are immutable once built with NewIdentity; the Claims slice
// must not be modified by callers.
type Identity struct {
	Subject string
	Claims  []string
}

// NewIdentity builds an Identity, trimming claims and dropping empty and
// duplicate entries while preserving first-seen order.
func NewIdentity(subject string, claims ...string) Identity {
	out := make([]string, 0, len(claims))
	seen := make(map[string]struct{}, len(claims))
	for _, c := range claims {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return Identity{Subject: subject, Claims: out}
}

// HasClaim reports whether the identity holds claim.
func (i Identity) HasClaim(claim string) bool {
	for _, c := range i.Claims {
		if c == claim {
			return true
		}
	}
	return false
}

// Equal compares subject and claims as an unordered set.
func (i Identity) Equal(other Identity) bool {
	if i.Subject != other.Subject || len(i.Claims) != len(other.Claims) {
		return false
	}
	for _, c := range i.Claims {
		if !other.HasClaim(c) {
			return false
		}
	}
	return true
}

// Pair is an access/refresh token pair produced by one issuance event.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
