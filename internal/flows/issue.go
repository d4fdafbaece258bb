package flows

import (
	"strings"
	"time"

	"github.com/MrEthical07/tokenAuth/jwt"
	"github.com/MrEthical07/tokenAuth/token"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureIdentity
	IssueFailureSign
)

// IssueResult carries either the signed pair or failure metadata.
type IssueResult struct {
	Failure   IssueFailureKind
	Err       error
	Pair      token.Pair
	Family    string
	AccessID  string
	RefreshID string
}

// IssueDeps captures issuance dependencies.
type IssueDeps struct {
	Sign       func(jwt.Payload) (string, error)
	NewID      func() string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// RunIssue signs an access and a refresh token for identity at now.
// An empty family starts a new rotation family.
func RunIssue(identity token.Identity, family string, now time.Time, deps IssueDeps) IssueResult {
	if !encodable(identity) {
		return IssueResult{Failure: IssueFailureIdentity}
	}

	// Tokens carry whole seconds; the returned expiries must match them.
	now = time.Unix(now.Unix(), 0).UTC()
	if family == "" {
		family = deps.NewID()
	}

	access := jwt.Payload{
		Subject:   identity.Subject,
		Claims:    identity.Claims,
		Kind:      token.KindAccess,
		TokenID:   deps.NewID(),
		IssuedAt:  now,
		ExpiresAt: now.Add(deps.AccessTTL),
	}
	refresh := jwt.Payload{
		Subject:   identity.Subject,
		Claims:    identity.Claims,
		Kind:      token.KindRefresh,
		TokenID:   deps.NewID(),
		Family:    family,
		IssuedAt:  now,
		ExpiresAt: now.Add(deps.RefreshTTL),
	}

	accessToken, err := deps.Sign(access)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}
	refreshToken, err := deps.Sign(refresh)
	if err != nil {
		return IssueResult{Failure: IssueFailureSign, Err: err}
	}

	return IssueResult{
		Pair: token.Pair{
			AccessToken:      accessToken,
			RefreshToken:     refreshToken,
			AccessExpiresAt:  access.ExpiresAt,
			RefreshExpiresAt: refresh.ExpiresAt,
		},
		Family:    family,
		AccessID:  access.TokenID,
		RefreshID: refresh.TokenID,
	}
}

// encodable reports whether identity survives the comma-joined "auth"
// claim unchanged: a subject, and claims that are non-empty, unique,
// untrimmed and comma-free.
func encodable(identity token.Identity) bool {
	if identity.Subject == "" {
		return false
	}
	seen := make(map[string]struct{}, len(identity.Claims))
	for _, c := range identity.Claims {
		if c == "" || c != strings.TrimSpace(c) || strings.Contains(c, ",") {
			return false
		}
		if _, dup := seen[c]; dup {
			return false
		}
		seen[c] = struct{}{}
	}
	return true
}
