package tokenAuth

import (
	"errors"

	"github.com/MrEthical07/tokenAuth/token"
)

var (
	// ErrTokenMalformed reports a token that is not a structurally valid JWS.
	ErrTokenMalformed = token.ErrMalformed
	// ErrTokenSignature reports a signature, algorithm or key id mismatch.
	ErrTokenSignature = token.ErrSignatureMismatch
	// ErrTokenExpired reports a correctly signed token past its expiry.
	ErrTokenExpired = token.ErrExpired
	// ErrTokenKindMismatch reports a refresh token used as an access token or
	// the reverse.
	ErrTokenKindMismatch = errors.New("token kind mismatch")

	// ErrRefreshInvalid is returned by Refresh for any unusable refresh token
	// other than an expired one. It wraps the classification error.
	ErrRefreshInvalid = errors.New("refresh token invalid")
	// ErrRefreshExpired is returned by Refresh for an expired refresh token.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshReplayed reports a refresh token that was already rotated, or
	// whose rotation family has been revoked.
	ErrRefreshReplayed = errors.New("refresh token replayed")

	// ErrConfig wraps every configuration failure.
	ErrConfig = errors.New("invalid configuration")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt Engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrInvalidCredentials reports a failed username/password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound may be returned by an IdentitySource; Login reports it
	// as ErrInvalidCredentials.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited reports an exhausted failed-login budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrIdentitySourceUnavailable wraps identity source failures other than
	// bad credentials.
	ErrIdentitySourceUnavailable = errors.New("identity source unavailable")
	// ErrIdentityInvalid reports an identity without a subject, or with a
	// claim that is empty, duplicated, padded or contains a comma.
	ErrIdentityInvalid = errors.New("identity invalid")

	// ErrLedgerUnavailable wraps refresh ledger storage failures.
	ErrLedgerUnavailable = errors.New("refresh ledger unavailable")
	// ErrLedgerRequired is returned by Revoke when reuse detection is off.
	ErrLedgerRequired = errors.New("refresh ledger required")
)
