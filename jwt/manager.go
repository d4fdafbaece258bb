package jwt

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/tokenAuth/token"
)

// SigningMethod names a supported signing algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 ("EdDSA" in the header).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrInvalidConfig wraps every key or algorithm configuration failure.
	ErrInvalidConfig = errors.New("invalid signing configuration")
	// ErrNoSigningKey is returned by Sign on a verify-only manager.
	ErrNoSigningKey = fmt.Errorf("%w: no signing key configured", ErrInvalidConfig)

	// ErrMalformed aliases token.ErrMalformed.
	ErrMalformed = token.ErrMalformed
	// ErrSignatureMismatch aliases token.ErrSignatureMismatch.
	ErrSignatureMismatch = token.ErrSignatureMismatch
)

// Config describes the key material of a Manager.
//
// PrivateKey is the HMAC secret for hs256 and the Ed25519 private key (raw or
// PEM) for ed25519. PublicKey is only used by ed25519 and is derived from the
// private key when omitted. VerifyKeys, when set, maps key ids to verification
// keys and every verified token must carry a known "kid".
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
}

// Manager signs and verifies tokens. It is immutable after NewManager and
// safe for concurrent use.
type Manager struct {
	method     gjwt.SigningMethod
	signKey    any
	verifyKey  any
	keyID      string
	verifyKeys map[string]any
	parser     *gjwt.Parser
}

// NewManager validates cfg and prepares the signing and verification keys.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{
		keyID:  strings.TrimSpace(cfg.KeyID),
		parser: gjwt.NewParser(gjwt.WithoutClaimsValidation()),
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		m.method = gjwt.SigningMethodHS256
		if len(cfg.PrivateKey) > 0 {
			m.signKey = cloneBytes(cfg.PrivateKey)
			m.verifyKey = m.signKey
		}
		if m.signKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, fmt.Errorf("%w: hs256 requires a secret or verify key set", ErrInvalidConfig)
		}
	case MethodEd25519:
		m.method = gjwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
			m.verifyKey = priv.Public().(ed25519.PublicKey)
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			if priv, ok := m.signKey.(ed25519.PrivateKey); ok && !pub.Equal(priv.Public()) {
				return nil, fmt.Errorf("%w: ed25519 public key does not match private key", ErrInvalidConfig)
			}
			m.verifyKey = pub
		}
		if m.verifyKey == nil && len(cfg.VerifyKeys) == 0 {
			return nil, fmt.Errorf("%w: ed25519 requires a public key or verify key set", ErrInvalidConfig)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported signing method %q", ErrInvalidConfig, cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		m.verifyKeys = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, fmt.Errorf("%w: verify key map contains empty kid", ErrInvalidConfig)
			}
			key, err := m.keyFromBytes(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			m.verifyKeys[kid] = key
		}
		if m.signKey != nil && m.keyID == "" {
			return nil, fmt.Errorf("%w: KeyID is required when VerifyKeys is set", ErrInvalidConfig)
		}
		if m.keyID != "" {
			if _, ok := m.verifyKeys[m.keyID]; !ok {
				return nil, fmt.Errorf("%w: KeyID is not present in VerifyKeys", ErrInvalidConfig)
			}
		}
	}

	return m, nil
}

// Algorithm returns the JWS "alg" header value this manager issues and accepts.
func (m *Manager) Algorithm() string {
	return m.method.Alg()
}

// CanSign reports whether a signing key is configured.
func (m *Manager) CanSign() bool {
	return m.signKey != nil
}

// Sign encodes p and signs it. It fails with ErrNoSigningKey on a
// verify-only manager.
func (m *Manager) Sign(p Payload) (string, error) {
	if m.signKey == nil {
		return "", ErrNoSigningKey
	}
	tok := gjwt.NewWithClaims(m.method, p.claims())
	if m.keyID != "" {
		tok.Header["kid"] = m.keyID
	}
	return tok.SignedString(m.signKey)
}

type header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Verify checks tokenStr and returns its claims.
//
// Structural problems return ErrMalformed without touching the signature.
// A foreign algorithm, unknown key id, or bad signature returns
// ErrSignatureMismatch. Expiry is not evaluated.
func (m *Manager) Verify(tokenStr string) (*Claims, error) {
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, ErrMalformed
	}

	rawHeader, err := m.parser.DecodeSegment(parts[0])
	if err != nil {
		return nil, ErrMalformed
	}
	var h header
	if err := json.Unmarshal(rawHeader, &h); err != nil || h.Alg == "" {
		return nil, ErrMalformed
	}
	sig, err := m.parser.DecodeSegment(parts[2])
	if err != nil {
		return nil, ErrMalformed
	}

	if h.Alg != m.method.Alg() {
		return nil, ErrSignatureMismatch
	}
	key, err := m.keyFor(h.Kid)
	if err != nil {
		return nil, err
	}
	signingInput := tokenStr[:len(parts[0])+1+len(parts[1])]
	if err := m.method.Verify(signingInput, sig, key); err != nil {
		return nil, ErrSignatureMismatch
	}

	claims := &Claims{}
	if _, _, err := m.parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrMalformed
	}
	if claims.Subject == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil || claims.Kind() == token.KindUnknown {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) keyFor(kid string) (any, error) {
	if len(m.verifyKeys) > 0 {
		key, ok := m.verifyKeys[kid]
		if !ok {
			return nil, ErrSignatureMismatch
		}
		return key, nil
	}
	if m.keyID != "" && kid != m.keyID {
		return nil, ErrSignatureMismatch
	}
	if m.verifyKey == nil {
		return nil, ErrSignatureMismatch
	}
	return m.verifyKey, nil
}

func (m *Manager) keyFromBytes(raw []byte) (any, error) {
	if m.method == gjwt.SigningMethodHS256 {
		if len(raw) == 0 {
			return nil, fmt.Errorf("%w: empty hs256 secret", ErrInvalidConfig)
		}
		return cloneBytes(raw), nil
	}
	return parseEdPublicKey(raw)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(cloneBytes(key)), nil
	}
	parsed, err := gjwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 private key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 private key type", ErrInvalidConfig)
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(cloneBytes(key)), nil
	}
	parsed, err := gjwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ed25519 public key", ErrInvalidConfig)
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: invalid ed25519 public key type", ErrInvalidConfig)
	}
	return edKey, nil
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
