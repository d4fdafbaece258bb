package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/tokenAuth/ledger"
	"github.com/MrEthical07/tokenAuth/token"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureExpired
	RefreshFailureInvalid
	RefreshFailureWrongKind
	RefreshFailureReplayed
	RefreshFailureFamilyRevoked
	RefreshFailureLedger
	RefreshFailureIssue
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure  RefreshFailureKind
	Err      error
	Status   token.Status
	Identity token.Identity
	TokenID  string
	Family   string
	Pair     token.Pair
}

type RefreshLedger interface {
	Consume(ctx context.Context, rec ledger.Record) (ledger.Outcome, error)
}

// RefreshDeps captures refresh flow dependencies. A nil Ledger disables
// replay detection.
type RefreshDeps struct {
	Classify ClassifyDeps
	Issue    IssueDeps
	Ledger   RefreshLedger
}

// RunRefresh validates a refresh token, consumes it and issues the next pair
// in the same rotation family. The new identity comes from the token only.
func RunRefresh(ctx context.Context, refreshToken string, now time.Time, deps RefreshDeps) RefreshResult {
	res := RunClassify(refreshToken, now, deps.Classify)
	switch res.Status {
	case token.StatusValid, token.StatusExpired:
	default:
		return RefreshResult{Failure: RefreshFailureInvalid, Err: res.Err(), Status: res.Status}
	}
	// An expired access token is the wrong kind first.
	if res.Kind != token.KindRefresh {
		return RefreshResult{
			Failure:  RefreshFailureWrongKind,
			Status:   res.Status,
			Identity: res.Identity,
			TokenID:  res.TokenID,
		}
	}
	if res.Status == token.StatusExpired {
		return RefreshResult{Failure: RefreshFailureExpired, Err: res.Err(), Status: res.Status}
	}

	family := res.Family
	if family == "" {
		family = res.TokenID
	}
	out := RefreshResult{
		Status:   res.Status,
		Identity: res.Identity,
		TokenID:  res.TokenID,
		Family:   family,
	}

	if deps.Ledger != nil {
		if res.TokenID == "" {
			out.Failure = RefreshFailureInvalid
			return out
		}
		outcome, err := deps.Ledger.Consume(ctx, ledger.Record{
			TokenID:     res.TokenID,
			Family:      family,
			Now:         now,
			ExpiresAt:   res.ExpiresAt,
			RevokeUntil: now.Add(deps.Issue.RefreshTTL),
		})
		if err != nil {
			out.Failure = RefreshFailureLedger
			out.Err = err
			return out
		}
		switch outcome {
		case ledger.OutcomeReplayed:
			out.Failure = RefreshFailureReplayed
			return out
		case ledger.OutcomeFamilyRevoked:
			out.Failure = RefreshFailureFamilyRevoked
			return out
		}
	}

	issued := RunIssue(res.Identity, family, now, deps.Issue)
	if issued.Failure != IssueFailureNone {
		out.Failure = RefreshFailureIssue
		out.Err = issued.Err
		return out
	}
	out.Pair = issued.Pair
	return out
}
