package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every storage failure of a ledger backend.
var ErrUnavailable = errors.New("refresh ledger unavailable")

// Outcome is the result of a Consume call.
type Outcome uint8

const (
	// OutcomeConsumed means the token id was unseen and is now marked.
	OutcomeConsumed Outcome = iota
	// OutcomeReplayed means the token id had already been consumed.
	OutcomeReplayed
	// OutcomeFamilyRevoked means the token's rotation family is revoked.
	OutcomeFamilyRevoked
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConsumed:
		return "consumed"
	case OutcomeReplayed:
		return "replayed"
	case OutcomeFamilyRevoked:
		return "family_revoked"
	default:
		return "unknown"
	}
}

// Record describes one refresh token presented for rotation.
type Record struct {
	TokenID string
	Family  string
	// Now is the caller's clock reading; backends never read the wall clock
	// for revocation decisions.
	Now time.Time
	// ExpiresAt bounds how long the consumed mark must be kept.
	ExpiresAt time.Time
	// RevokeUntil bounds the family revocation applied on replay.
	RevokeUntil time.Time
}

// Ledger is the shared mutable store behind refresh rotation.
type Ledger interface {
	Consume(ctx context.Context, rec Record) (Outcome, error)
	RevokeFamily(ctx context.Context, family string, now, until time.Time) error
}

func ttlBetween(from, to time.Time) time.Duration {
	d := to.Sub(from)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}
