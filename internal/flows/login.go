package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/tokenAuth/token"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureSourceUnavailable
	LoginFailureIdentity
	LoginFailureIssue
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	Reason   string
	Identity token.Identity
	Pair     token.Pair
	Family   string
}

// LoginLimiter is the optional failed-attempt throttle.
type LoginLimiter interface {
	CheckLogin(ctx context.Context, username, ip string) error
	IncrementLogin(ctx context.Context, username, ip string) error
	ResetLogin(ctx context.Context, username, ip string) error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	Authenticate func(ctx context.Context, username, password string) (token.Identity, error)
	// IsInvalidCredentials reports source errors that mean "wrong username
	// or password" rather than an outage.
	IsInvalidCredentials func(error) bool
	Limiter              LoginLimiter
	Warn                 func(string, ...any)
	Issue                IssueDeps
}

// RunLogin authenticates username/password and issues a new pair in a new
// rotation family.
func RunLogin(ctx context.Context, username, password, ip string, now time.Time, deps LoginDeps) LoginResult {
	username = strings.TrimSpace(username)

	if deps.Limiter != nil {
		if err := deps.Limiter.CheckLogin(ctx, username, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	if password == "" || username == "" {
		return failLogin(ctx, username, ip, deps, "empty_credentials", nil)
	}

	identity, err := deps.Authenticate(ctx, username, password)
	if err != nil {
		if deps.IsInvalidCredentials != nil && deps.IsInvalidCredentials(err) {
			return failLogin(ctx, username, ip, deps, "bad_credentials", err)
		}
		return LoginResult{Failure: LoginFailureSourceUnavailable, Err: err}
	}
	issued := RunIssue(identity, "", now, deps.Issue)
	switch issued.Failure {
	case IssueFailureNone:
	case IssueFailureIdentity:
		return LoginResult{Failure: LoginFailureIdentity, Err: errors.New("identity source returned an identity tokens cannot carry")}
	default:
		return LoginResult{Failure: LoginFailureIssue, Err: issued.Err, Identity: identity}
	}

	if deps.Limiter != nil {
		if err := deps.Limiter.ResetLogin(ctx, username, ip); err != nil && deps.Warn != nil {
			deps.Warn("tokenAuth: login throttle reset failed", "error", err)
		}
	}

	return LoginResult{
		Identity: identity,
		Pair:     issued.Pair,
		Family:   issued.Family,
	}
}

func failLogin(ctx context.Context, username, ip string, deps LoginDeps, reason string, cause error) LoginResult {
	if deps.Limiter != nil {
		if err := deps.Limiter.IncrementLogin(ctx, username, ip); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err, Reason: reason}
		}
	}
	return LoginResult{Failure: LoginFailureInvalidCredentials, Err: cause, Reason: reason}
}
