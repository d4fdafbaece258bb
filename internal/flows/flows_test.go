package flows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/tokenAuth/jwt"
	"github.com/MrEthical07/tokenAuth/ledger"
	"github.com/MrEthical07/tokenAuth/token"
)

var errBadCredentials = errors.New("bad credentials")

type testEnv struct {
	manager *jwt.Manager
	issue   IssueDeps
	verify  ClassifyDeps
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("flows-test-secret-0123456789abcdef"),
	})
	require.NoError(t, err)

	var seq atomic.Uint64
	return testEnv{
		manager: m,
		issue: IssueDeps{
			Sign:       m.Sign,
			NewID:      func() string { return fmt.Sprintf("id-%d", seq.Add(1)) },
			AccessTTL:  60 * time.Second,
			RefreshTTL: 86400 * time.Second,
		},
		verify: ClassifyDeps{Verify: m.Verify},
	}
}

func alice() token.Identity {
	return token.NewIdentity("alice", "ROLE_USER")
}

func TestIssueExpiries(t *testing.T) {
	env := newTestEnv(t)

	res := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	require.Equal(t, IssueFailureNone, res.Failure)
	assert.Equal(t, int64(1060), res.Pair.AccessExpiresAt.Unix())
	assert.Equal(t, int64(87400), res.Pair.RefreshExpiresAt.Unix())
	assert.True(t, res.Pair.AccessExpiresAt.Before(res.Pair.RefreshExpiresAt))
	assert.NotEmpty(t, res.Family)
	assert.NotEqual(t, res.Pair.AccessToken, res.Pair.RefreshToken)
}

func TestIssueTruncatesToSeconds(t *testing.T) {
	env := newTestEnv(t)

	res := RunIssue(alice(), "", time.Unix(1000, 900_000_000), env.issue)
	require.Equal(t, IssueFailureNone, res.Failure)
	assert.Equal(t, time.Unix(1060, 0).UTC(), res.Pair.AccessExpiresAt)

	classified := RunClassify(res.Pair.AccessToken, time.Unix(1000, 0), env.verify)
	assert.Equal(t, res.Pair.AccessExpiresAt, classified.ExpiresAt.UTC())
}

func TestIssueRejectsIdentitiesTheAuthClaimCannotCarry(t *testing.T) {
	env := newTestEnv(t)
	signed := 0
	env.issue.Sign = func(jwt.Payload) (string, error) { signed++; return "x", nil }

	for _, id := range []token.Identity{
		token.NewIdentity(""),
		token.NewIdentity("alice", "ROLE_A,ROLE_B"),
		{Subject: "alice", Claims: []string{"ROLE_A "}},
		{Subject: "alice", Claims: []string{"ROLE_A", ""}},
		{Subject: "alice", Claims: []string{"ROLE_A", "ROLE_A"}},
	} {
		res := RunIssue(id, "", time.Unix(1000, 0), env.issue)
		assert.Equal(t, IssueFailureIdentity, res.Failure, "%#v", id)
	}
	assert.Zero(t, signed)
}

func TestIssueSignFailure(t *testing.T) {
	env := newTestEnv(t)
	env.issue.Sign = func(jwt.Payload) (string, error) { return "", jwt.ErrNoSigningKey }

	res := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	assert.Equal(t, IssueFailureSign, res.Failure)
	assert.ErrorIs(t, res.Err, jwt.ErrNoSigningKey)
}

func TestClassifyTimeline(t *testing.T) {
	env := newTestEnv(t)
	pair := RunIssue(alice(), "", time.Unix(1000, 0), env.issue).Pair

	res := RunClassify(pair.AccessToken, time.Unix(1030, 0), env.verify)
	require.Equal(t, token.StatusValid, res.Status)
	assert.Equal(t, token.KindAccess, res.Kind)
	assert.True(t, res.Identity.Equal(alice()))

	res = RunClassify(pair.AccessToken, time.Unix(1060, 0), env.verify)
	assert.Equal(t, token.StatusExpired, res.Status)
	assert.ErrorIs(t, res.Err(), token.ErrExpired)
	assert.Equal(t, token.KindAccess, res.Kind)
	assert.Empty(t, res.Identity.Subject)

	res = RunClassify(pair.AccessToken, time.Unix(1059, 999_999_999), env.verify)
	assert.Equal(t, token.StatusValid, res.Status)

	res = RunClassify(pair.RefreshToken, time.Unix(1030, 0), env.verify)
	require.Equal(t, token.StatusValid, res.Status)
	assert.Equal(t, token.KindRefresh, res.Kind)
	assert.NotEmpty(t, res.Family)
}

func TestClassifyIsDeterministic(t *testing.T) {
	env := newTestEnv(t)
	pair := RunIssue(alice(), "", time.Unix(1000, 0), env.issue).Pair

	first := RunClassify(pair.AccessToken, time.Unix(1010, 0), env.verify)
	second := RunClassify(pair.AccessToken, time.Unix(1020, 0), env.verify)
	assert.Equal(t, first, second)
}

func TestClassifyMalformedAndMismatch(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, token.StatusMalformed, RunClassify("garbage", time.Unix(1000, 0), env.verify).Status)

	other, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: []byte("another-secret-0123456789abcdefgh")})
	require.NoError(t, err)
	foreign := RunIssue(alice(), "", time.Unix(1000, 0), IssueDeps{
		Sign: other.Sign, NewID: env.issue.NewID, AccessTTL: time.Minute, RefreshTTL: time.Hour,
	}).Pair
	assert.Equal(t, token.StatusSignatureMismatch, RunClassify(foreign.AccessToken, time.Unix(1000, 0), env.verify).Status)
}

func TestRefreshRotates(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)

	res := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(1100, 0), RefreshDeps{
		Classify: env.verify,
		Issue:    env.issue,
		Ledger:   ledger.NewMemory(),
	})
	require.Equal(t, RefreshFailureNone, res.Failure)
	assert.Equal(t, int64(1160), res.Pair.AccessExpiresAt.Unix())
	assert.Equal(t, issued.Family, res.Family)
	assert.True(t, res.Identity.Equal(alice()))

	next := RunClassify(res.Pair.RefreshToken, time.Unix(1100, 0), env.verify)
	assert.Equal(t, issued.Family, next.Family)
}

func TestRefreshFailures(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	deps := RefreshDeps{Classify: env.verify, Issue: env.issue}

	res := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(90000, 0), deps)
	assert.Equal(t, RefreshFailureExpired, res.Failure)
	assert.ErrorIs(t, res.Err, token.ErrExpired)

	res = RunRefresh(context.Background(), "a.b.c", time.Unix(1100, 0), deps)
	assert.Equal(t, RefreshFailureInvalid, res.Failure)
	assert.Equal(t, token.StatusMalformed, res.Status)

	res = RunRefresh(context.Background(), issued.Pair.AccessToken, time.Unix(1010, 0), deps)
	assert.Equal(t, RefreshFailureWrongKind, res.Failure)

	// an expired access token is still the wrong kind, not an expired refresh
	res = RunRefresh(context.Background(), issued.Pair.AccessToken, time.Unix(2000, 0), deps)
	assert.Equal(t, RefreshFailureWrongKind, res.Failure)
}

func TestRefreshWithoutLedgerAllowsReuse(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	deps := RefreshDeps{Classify: env.verify, Issue: env.issue}

	for i := 0; i < 2; i++ {
		res := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(1100, 0), deps)
		assert.Equal(t, RefreshFailureNone, res.Failure)
	}
}

func TestRefreshReplayKillsFamily(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	deps := RefreshDeps{Classify: env.verify, Issue: env.issue, Ledger: ledger.NewMemory()}

	first := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(1100, 0), deps)
	require.Equal(t, RefreshFailureNone, first.Failure)

	replay := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(1101, 0), deps)
	assert.Equal(t, RefreshFailureReplayed, replay.Failure)

	successor := RunRefresh(context.Background(), first.Pair.RefreshToken, time.Unix(1102, 0), deps)
	assert.Equal(t, RefreshFailureFamilyRevoked, successor.Failure)
}

type failingLedger struct{}

func (failingLedger) Consume(context.Context, ledger.Record) (ledger.Outcome, error) {
	return ledger.OutcomeConsumed, ledger.ErrUnavailable
}

func (failingLedger) RevokeFamily(context.Context, string, time.Time, time.Time) error {
	return ledger.ErrUnavailable
}

func TestRefreshLedgerFailure(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)

	res := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(1100, 0), RefreshDeps{
		Classify: env.verify, Issue: env.issue, Ledger: failingLedger{},
	})
	assert.Equal(t, RefreshFailureLedger, res.Failure)
	assert.ErrorIs(t, res.Err, ledger.ErrUnavailable)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	deps := RefreshDeps{Classify: env.verify, Issue: env.issue, Ledger: ledger.NewMemory()}

	const n = 32
	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(1100, 0), deps)
			if res.Failure == RefreshFailureNone {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

type fakeLimiter struct {
	checkErr error
	incErr   error
	checks   int
	incs     int
	resets   int
}

func (f *fakeLimiter) CheckLogin(context.Context, string, string) error {
	f.checks++
	return f.checkErr
}

func (f *fakeLimiter) IncrementLogin(context.Context, string, string) error {
	f.incs++
	return f.incErr
}

func (f *fakeLimiter) ResetLogin(context.Context, string, string) error {
	f.resets++
	return nil
}

func loginDeps(env testEnv, limiter LoginLimiter, calls *int) LoginDeps {
	deps := LoginDeps{
		Authenticate: func(_ context.Context, username, password string) (token.Identity, error) {
			*calls++
			if username == "alice" && password == "password" {
				return alice(), nil
			}
			if username == "broken" {
				return token.Identity{}, errors.New("directory offline")
			}
			return token.Identity{}, errBadCredentials
		},
		IsInvalidCredentials: func(err error) bool { return errors.Is(err, errBadCredentials) },
		Issue:                env.issue,
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	return deps
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t)
	limiter := &fakeLimiter{}
	calls := 0

	res := RunLogin(context.Background(), "alice", "password", "10.0.0.1", time.Unix(1000, 0), loginDeps(env, limiter, &calls))
	require.Equal(t, LoginFailureNone, res.Failure)
	assert.Equal(t, int64(1060), res.Pair.AccessExpiresAt.Unix())
	assert.Equal(t, int64(87400), res.Pair.RefreshExpiresAt.Unix())
	assert.Equal(t, 1, limiter.resets)
	assert.Equal(t, 1, calls)
}

func TestLoginEmptyPasswordSkipsSource(t *testing.T) {
	env := newTestEnv(t)
	calls := 0

	res := RunLogin(context.Background(), "alice", "", "", time.Unix(1000, 0), loginDeps(env, nil, &calls))
	assert.Equal(t, LoginFailureInvalidCredentials, res.Failure)
	assert.Equal(t, 0, calls)
}

func TestLoginBadCredentialsCountsAttempt(t *testing.T) {
	env := newTestEnv(t)
	limiter := &fakeLimiter{}
	calls := 0

	res := RunLogin(context.Background(), "alice", "wrong", "", time.Unix(1000, 0), loginDeps(env, limiter, &calls))
	assert.Equal(t, LoginFailureInvalidCredentials, res.Failure)
	assert.Equal(t, 1, limiter.incs)

	limiter.incErr = errors.New("rate limited")
	res = RunLogin(context.Background(), "alice", "wrong", "", time.Unix(1000, 0), loginDeps(env, limiter, &calls))
	assert.Equal(t, LoginFailureRateLimited, res.Failure)
}

func TestLoginThrottled(t *testing.T) {
	env := newTestEnv(t)
	limiter := &fakeLimiter{checkErr: errors.New("rate limited")}
	calls := 0

	res := RunLogin(context.Background(), "alice", "password", "", time.Unix(1000, 0), loginDeps(env, limiter, &calls))
	assert.Equal(t, LoginFailureRateLimited, res.Failure)
	assert.Equal(t, 0, calls)
}

func TestLoginSourceOutage(t *testing.T) {
	env := newTestEnv(t)
	calls := 0

	res := RunLogin(context.Background(), "broken", "password", "", time.Unix(1000, 0), loginDeps(env, nil, &calls))
	assert.Equal(t, LoginFailureSourceUnavailable, res.Failure)
}

func TestRevoke(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	mem := ledger.NewMemory()
	deps := RevokeDeps{Classify: env.verify, Ledger: mem, RefreshTTL: env.issue.RefreshTTL}

	res := RunRevoke(context.Background(), issued.Pair.RefreshToken, time.Unix(1010, 0), deps)
	require.Equal(t, RevokeFailureNone, res.Failure)
	assert.Equal(t, issued.Family, res.Family)

	refreshed := RunRefresh(context.Background(), issued.Pair.RefreshToken, time.Unix(1020, 0), RefreshDeps{
		Classify: env.verify, Issue: env.issue, Ledger: mem,
	})
	assert.Equal(t, RefreshFailureFamilyRevoked, refreshed.Failure)
}

func TestRevokeEdgeCases(t *testing.T) {
	env := newTestEnv(t)
	issued := RunIssue(alice(), "", time.Unix(1000, 0), env.issue)
	deps := RevokeDeps{Classify: env.verify, Ledger: ledger.NewMemory(), RefreshTTL: env.issue.RefreshTTL}

	assert.Equal(t, RevokeFailureNoLedger, RunRevoke(context.Background(), issued.Pair.RefreshToken, time.Unix(1010, 0), RevokeDeps{Classify: env.verify}).Failure)

	expired := RunRevoke(context.Background(), issued.Pair.RefreshToken, time.Unix(100000, 0), deps)
	assert.Equal(t, RevokeFailureNone, expired.Failure)
	assert.True(t, expired.Skipped)

	assert.Equal(t, RevokeFailureInvalid, RunRevoke(context.Background(), "x.y.z", time.Unix(1010, 0), deps).Failure)
	assert.Equal(t, RevokeFailureWrongKind, RunRevoke(context.Background(), issued.Pair.AccessToken, time.Unix(1010, 0), deps).Failure)

	deps.Ledger = failingLedger{}
	assert.Equal(t, RevokeFailureLedger, RunRevoke(context.Background(), issued.Pair.RefreshToken, time.Unix(1010, 0), deps).Failure)
}
