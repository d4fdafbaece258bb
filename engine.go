package tokenAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/tokenAuth/internal/audit"
	"github.com/MrEthical07/tokenAuth/internal/flows"
	"github.com/MrEthical07/tokenAuth/internal/rate"
	"github.com/MrEthical07/tokenAuth/jwt"
)

// Engine issues, classifies and rotates tokens.
//
// An Engine is immutable after [Builder.Build] and safe for concurrent use.
// The refresh ledger is its only shared mutable state.
type Engine struct {
	config         Config
	logger         *zap.Logger
	jwtManager     *jwt.Manager
	ledger         Ledger
	rateLimiter    *rate.Limiter
	identitySource IdentitySource
	clock          Clock
	audit          *internalaudit.Dispatcher
	metrics        *Metrics
	flowDeps       flows.Deps
}

// Close drains the audit dispatcher and closes its sink.
func (e *Engine) Close() error {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.Close()
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Now reads the engine clock.
func (e *Engine) Now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock.Now()
}

// AccessTTL returns the configured access token lifetime.
func (e *Engine) AccessTTL() time.Duration { return e.config.JWT.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (e *Engine) RefreshTTL() time.Duration { return e.config.JWT.RefreshTTL }

func (e *Engine) ready() bool {
	return e != nil && e.jwtManager != nil
}

// Issue signs a new access/refresh pair for identity at now, starting a new
// rotation family. An identity the token cannot carry unchanged (no
// subject, or a claim with a comma) returns ErrIdentityInvalid.
func (e *Engine) Issue(identity Identity, now time.Time) (Pair, error) {
	if !e.ready() {
		return Pair{}, ErrEngineNotReady
	}
	res := flows.RunIssue(identity, "", now, e.flowDeps.Issue)
	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureIdentity:
		return Pair{}, ErrIdentityInvalid
	default:
		return Pair{}, e.signError(res.Err)
	}
	e.metricInc(MetricIssue)
	return res.Pair, nil
}

// Classify reports the status of tokenStr at now. It is a pure function of
// the token, now and the configured keys.
func (e *Engine) Classify(tokenStr string, now time.Time) Result {
	if !e.ready() {
		return Result{Status: StatusMalformed}
	}
	return flows.RunClassify(tokenStr, now, e.flowDeps.Classify)
}

// ExpiresAt returns the expiry of a correctly signed token, expired or not.
func (e *Engine) ExpiresAt(tokenStr string) (time.Time, error) {
	res := e.Classify(tokenStr, e.Now())
	switch res.Status {
	case StatusValid, StatusExpired:
		return res.ExpiresAt, nil
	default:
		return time.Time{}, res.Err()
	}
}

// Refresh rotates a refresh token: it validates it, consumes it in the
// ledger and issues a new pair in the same family for the identity carried
// by the token.
//
// Errors: ErrRefreshExpired, ErrRefreshInvalid (wrapping the classification
// error or ErrTokenKindMismatch), ErrRefreshReplayed, ErrLedgerUnavailable.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, now time.Time) (Pair, error) {
	if !e.ready() {
		return Pair{}, ErrEngineNotReady
	}
	res := flows.RunRefresh(ctx, refreshToken, now, e.flowDeps.Refresh)

	switch res.Failure {
	case flows.RefreshFailureNone:
		e.metricInc(MetricRefreshSuccess)
		e.metricInc(MetricIssue)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Identity.Subject, res.TokenID, res.Family, nil, nil)
		return res.Pair, nil

	case flows.RefreshFailureExpired:
		e.metricInc(MetricRefreshExpired)
		e.metricInc(MetricRefreshFailure)
		err := fmt.Errorf("%w: %w", ErrRefreshExpired, ErrTokenExpired)
		e.emitAudit(ctx, auditEventRefreshExpired, false, "", "", "", err, nil)
		return Pair{}, err

	case flows.RefreshFailureInvalid:
		e.metricInc(MetricRefreshFailure)
		cause := res.Err
		if cause == nil {
			cause = ErrTokenMalformed
		}
		if res.Status == StatusSignatureMismatch {
			e.logger.Warn("refresh token signature mismatch", zap.String("ip", clientIPFromContext(ctx)))
		}
		err := fmt.Errorf("%w: %w", ErrRefreshInvalid, cause)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "", err, statusMetadata(res.Status))
		return Pair{}, err

	case flows.RefreshFailureWrongKind:
		e.metricInc(MetricRefreshFailure)
		err := fmt.Errorf("%w: %w", ErrRefreshInvalid, ErrTokenKindMismatch)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Identity.Subject, res.TokenID, "", err, nil)
		return Pair{}, err

	case flows.RefreshFailureReplayed, flows.RefreshFailureFamilyRevoked:
		e.metricInc(MetricRefreshFailure)
		event := auditEventRefreshReplayed
		if res.Failure == flows.RefreshFailureReplayed {
			e.metricInc(MetricRefreshReplayDetected)
			e.logger.Warn("refresh token replay detected, family revoked",
				zap.String("subject", res.Identity.Subject),
				zap.String("family", res.Family),
				zap.String("ip", clientIPFromContext(ctx)),
			)
		} else {
			e.metricInc(MetricRefreshFamilyRevoked)
			event = auditEventRefreshFamilyRevoked
		}
		e.emitAudit(ctx, event, false, res.Identity.Subject, res.TokenID, res.Family, ErrRefreshReplayed, nil)
		return Pair{}, ErrRefreshReplayed

	case flows.RefreshFailureLedger:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricLedgerFailure)
		e.logger.Error("refresh ledger consume failed", zap.String("family", res.Family), zap.Error(res.Err))
		err := fmt.Errorf("%w: %w", ErrLedgerUnavailable, res.Err)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.Identity.Subject, res.TokenID, res.Family, err, nil)
		return Pair{}, err

	default:
		e.metricInc(MetricRefreshFailure)
		return Pair{}, e.signError(res.Err)
	}
}

// Login checks creds against the identity source and issues a pair in a new
// rotation family. The caller IP is read from [WithClientIP].
//
// Errors: ErrInvalidCredentials, ErrLoginRateLimited,
// ErrIdentitySourceUnavailable, ErrIdentityInvalid.
func (e *Engine) Login(ctx context.Context, creds Credentials) (Pair, error) {
	if !e.ready() {
		return Pair{}, ErrEngineNotReady
	}
	if e.identitySource == nil {
		return Pair{}, configError("no identity source configured")
	}

	username := strings.TrimSpace(creds.Username)
	res := flows.RunLogin(ctx, username, creds.Password, clientIPFromContext(ctx), e.Now(), e.flowDeps.Login)

	switch res.Failure {
	case flows.LoginFailureNone:
		e.metricInc(MetricLoginSuccess)
		e.metricInc(MetricIssue)
		e.emitAudit(ctx, auditEventLoginSuccess, true, res.Identity.Subject, "", res.Family, nil, nil)
		return res.Pair, nil

	case flows.LoginFailureRateLimited:
		e.metricInc(MetricLoginRateLimited)
		if res.Err != nil && errors.Is(res.Err, rate.ErrRedisUnavailable) {
			e.logger.Error("login throttle unavailable", zap.Error(res.Err))
		}
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"username": username}
		})
		return Pair{}, ErrLoginRateLimited

	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"username": username, "reason": res.Reason}
		})
		return Pair{}, ErrInvalidCredentials

	case flows.LoginFailureSourceUnavailable:
		e.metricInc(MetricLoginFailure)
		e.logger.Error("identity source failed", zap.Error(res.Err))
		err := fmt.Errorf("%w: %w", ErrIdentitySourceUnavailable, res.Err)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "", err, func() map[string]string {
			return map[string]string{"username": username}
		})
		return Pair{}, err

	case flows.LoginFailureIdentity:
		e.metricInc(MetricLoginFailure)
		return Pair{}, ErrIdentityInvalid

	default:
		e.metricInc(MetricLoginFailure)
		return Pair{}, e.signError(res.Err)
	}
}

// Revoke ends the rotation family of refreshToken until it could no longer
// be valid. Expired tokens are accepted and ignored. Revoke needs reuse
// detection (ErrLedgerRequired otherwise).
func (e *Engine) Revoke(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	res := flows.RunRevoke(ctx, refreshToken, e.Now(), e.flowDeps.Revoke)

	switch res.Failure {
	case flows.RevokeFailureNone:
		if res.Skipped {
			return nil
		}
		e.metricInc(MetricRevoke)
		e.emitAudit(ctx, auditEventRefreshRevoked, true, res.Identity.Subject, "", res.Family, nil, nil)
		return nil
	case flows.RevokeFailureNoLedger:
		return ErrLedgerRequired
	case flows.RevokeFailureInvalid:
		return fmt.Errorf("%w: %w", ErrRefreshInvalid, res.Err)
	case flows.RevokeFailureWrongKind:
		return fmt.Errorf("%w: %w", ErrRefreshInvalid, ErrTokenKindMismatch)
	default:
		e.metricInc(MetricLedgerFailure)
		e.logger.Error("refresh ledger revoke failed", zap.String("family", res.Family), zap.Error(res.Err))
		return fmt.Errorf("%w: %w", ErrLedgerUnavailable, res.Err)
	}
}

// Authenticate validates an access token at the engine clock and returns the
// identity it carries.
//
// Errors: ErrTokenExpired, ErrTokenMalformed, ErrTokenSignature,
// ErrTokenKindMismatch.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	if !e.ready() {
		return Identity{}, ErrEngineNotReady
	}

	start := time.Now()
	res := e.Classify(accessToken, e.Now())
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthLatency, time.Since(start))
	}

	switch res.Status {
	case StatusValid:
	case StatusExpired:
		e.metricInc(MetricAuthExpired)
		return Identity{}, ErrTokenExpired
	case StatusSignatureMismatch:
		e.metricInc(MetricAuthSignatureMismatch)
		e.logger.Warn("access token signature mismatch", zap.String("ip", clientIPFromContext(ctx)))
		e.emitAudit(ctx, auditEventAccessSignatureMismatch, false, "", "", "", ErrTokenSignature, nil)
		return Identity{}, ErrTokenSignature
	default:
		e.metricInc(MetricAuthMalformed)
		return Identity{}, ErrTokenMalformed
	}

	if res.Kind != KindAccess {
		e.metricInc(MetricAuthKindMismatch)
		e.emitAudit(ctx, auditEventAccessKindMismatch, false, res.Identity.Subject, res.TokenID, res.Family, ErrTokenKindMismatch, nil)
		return Identity{}, ErrTokenKindMismatch
	}

	e.metricInc(MetricAuthSuccess)
	return res.Identity, nil
}

func (e *Engine) signError(err error) error {
	if errors.Is(err, jwt.ErrInvalidConfig) {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	e.logger.Error("token signing failed", zap.Error(err))
	return fmt.Errorf("sign token: %w", err)
}

func statusMetadata(s Status) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"status": s.String()}
	}
}
