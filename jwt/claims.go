package jwt

import (
	"encoding/json"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/tokenAuth/token"
)

// Authorities is the role list carried in the "auth" claim. It is encoded as a
// single comma-joined string ("ROLE_USER,ROLE_ADMIN"); decoding also accepts a
// JSON array.
type Authorities []string

// MarshalJSON implements json.Marshaler.
func (a Authorities) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.Join(a, ","))
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Authorities) UnmarshalJSON(data []byte) error {
	var joined string
	if err := json.Unmarshal(data, &joined); err == nil {
		*a = splitAuthorities(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*a = Authorities(list)
	return nil
}

func splitAuthorities(joined string) Authorities {
	if strings.TrimSpace(joined) == "" {
		return Authorities{}
	}
	parts := strings.Split(joined, ",")
	out := make(Authorities, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Claims is the decoded token payload.
type Claims struct {
	Auth   Authorities `json:"auth"`
	Type   string      `json:"typ"`
	Family string      `json:"fam,omitempty"`
	gjwt.RegisteredClaims
}

// Kind returns the token kind named by the "typ" claim.
func (c *Claims) Kind() token.Kind {
	return token.ParseKind(c.Type)
}

// Identity rebuilds the identity the token was issued to.
func (c *Claims) Identity() token.Identity {
	return token.NewIdentity(c.Subject, c.Auth...)
}

// IssuedAtTime returns iat, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time.UTC()
}

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}

// Payload is the input to Manager.Sign.
type Payload struct {
	Subject   string
	Claims    []string
	Kind      token.Kind
	TokenID   string
	Family    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (p Payload) claims() Claims {
	auth := make(Authorities, len(p.Claims))
	copy(auth, p.Claims)
	return Claims{
		Auth:   auth,
		Type:   p.Kind.String(),
		Family: p.Family,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   p.Subject,
			ID:        p.TokenID,
			IssuedAt:  gjwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: gjwt.NewNumericDate(p.ExpiresAt),
		},
	}
}
