package token

import (
	"errors"
	"time"
)

var (
	// ErrMalformed reports a token that is not a structurally valid compact JWS.
	ErrMalformed = errors.New("token malformed")
	// ErrSignatureMismatch reports a token whose signature, algorithm, or key id
	// does not match the configured key.
	ErrSignatureMismatch = errors.New("token signature mismatch")
	// ErrExpired reports a well-formed, correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")
)

// Status is the classification outcome of a raw token string.
type Status uint8

const (
	StatusValid Status = iota
	StatusExpired
	StatusMalformed
	StatusSignatureMismatch
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusMalformed:
		return "malformed"
	case StatusSignatureMismatch:
		return "signature_mismatch"
	default:
		return "unknown"
	}
}

// Result is the tagged classification of a token.
//
// Identity, TokenID and Family are only meaningful when Status is
// StatusValid. Kind, IssuedAt and ExpiresAt are also set for StatusExpired
// so callers can tell which token lapsed and when.
type Result struct {
	Status    Status
	Kind      Kind
	Identity  Identity
	TokenID   string
	Family    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the token is valid.
func (r Result) Valid() bool { return r.Status == StatusValid }

// Err maps the status to its sentinel error, or nil when valid.
func (r Result) Err() error {
	switch r.Status {
	case StatusValid:
		return nil
	case StatusExpired:
		return ErrExpired
	case StatusSignatureMismatch:
		return ErrSignatureMismatch
	default:
		return ErrMalformed
	}
}
