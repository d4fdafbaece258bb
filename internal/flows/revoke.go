package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenAuth/ledger"
	"github.com/MrEthical07/tokenAuth/token"
)

// RevokeFailureKind classifies revocation failures for root-level mapping.
type RevokeFailureKind int

const (
	RevokeFailureNone RevokeFailureKind = iota
	RevokeFailureNoLedger
	RevokeFailureInvalid
	RevokeFailureWrongKind
	RevokeFailureLedger
)

// RevokeResult reports what a revocation did. Skipped is set when the token
// had already expired and nothing needed to be stored.
type RevokeResult struct {
	Failure  RevokeFailureKind
	Err      error
	Skipped  bool
	Identity token.Identity
	Family   string
}

type RevokeLedger interface {
	RefreshLedger
	RevokeFamily(ctx context.Context, family string, now, until time.Time) error
}

// RevokeDeps captures revocation dependencies.
type RevokeDeps struct {
	Classify   ClassifyDeps
	Ledger     RevokeLedger
	RefreshTTL time.Duration
}

// RunRevoke ends the rotation family of a refresh token.
func RunRevoke(ctx context.Context, refreshToken string, now time.Time, deps RevokeDeps) RevokeResult {
	if deps.Ledger == nil {
		return RevokeResult{Failure: RevokeFailureNoLedger}
	}

	res := RunClassify(refreshToken, now, deps.Classify)
	switch res.Status {
	case token.StatusValid:
	case token.StatusExpired:
		return RevokeResult{Skipped: true}
	default:
		return RevokeResult{Failure: RevokeFailureInvalid, Err: res.Err()}
	}
	if res.Kind != token.KindRefresh {
		return RevokeResult{Failure: RevokeFailureWrongKind, Identity: res.Identity}
	}

	family := res.Family
	if family == "" {
		family = res.TokenID
	}
	out := RevokeResult{Identity: res.Identity, Family: family}
	until := now.Add(deps.RefreshTTL)

	if res.TokenID != "" {
		if _, err := deps.Ledger.Consume(ctx, ledger.Record{
			TokenID:     res.TokenID,
			Family:      family,
			Now:         now,
			ExpiresAt:   res.ExpiresAt,
			RevokeUntil: until,
		}); err != nil {
			out.Failure = RevokeFailureLedger
			out.Err = err
			return out
		}
	}
	if err := deps.Ledger.RevokeFamily(ctx, family, now, until); err != nil {
		out.Failure = RevokeFailureLedger
		out.Err = err
	}
	return out
}
