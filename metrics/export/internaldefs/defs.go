package internaldefs

import (
	tokenAuth "github.com/MrEthical07/tokenAuth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   tokenAuth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   tokenAuth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter exported for AuditDropped.
const AuditDroppedName = "tokenauth_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: tokenAuth.MetricIssue, Name: "tokenauth_issue_total", Help: "Token pairs issued."},
	{ID: tokenAuth.MetricLoginSuccess, Name: "tokenauth_login_success_total", Help: "Successful login attempts."},
	{ID: tokenAuth.MetricLoginFailure, Name: "tokenauth_login_failure_total", Help: "Failed login attempts."},
	{ID: tokenAuth.MetricLoginRateLimited, Name: "tokenauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: tokenAuth.MetricRefreshSuccess, Name: "tokenauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: tokenAuth.MetricRefreshFailure, Name: "tokenauth_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: tokenAuth.MetricRefreshExpired, Name: "tokenauth_refresh_expired_total", Help: "Refresh attempts with an expired token."},
	{ID: tokenAuth.MetricRefreshReplayDetected, Name: "tokenauth_refresh_replay_detected_total", Help: "Refresh tokens presented twice."},
	{ID: tokenAuth.MetricRefreshFamilyRevoked, Name: "tokenauth_refresh_family_revoked_total", Help: "Refresh attempts within a revoked family."},
	{ID: tokenAuth.MetricRevoke, Name: "tokenauth_revoke_total", Help: "Refresh families revoked by logout."},
	{ID: tokenAuth.MetricAuthSuccess, Name: "tokenauth_auth_success_total", Help: "Accepted access tokens."},
	{ID: tokenAuth.MetricAuthExpired, Name: "tokenauth_auth_expired_total", Help: "Expired access tokens."},
	{ID: tokenAuth.MetricAuthMalformed, Name: "tokenauth_auth_malformed_total", Help: "Malformed access tokens."},
	{ID: tokenAuth.MetricAuthSignatureMismatch, Name: "tokenauth_auth_signature_mismatch_total", Help: "Access tokens with a bad signature."},
	{ID: tokenAuth.MetricAuthKindMismatch, Name: "tokenauth_auth_kind_mismatch_total", Help: "Refresh tokens presented as access tokens."},
	{ID: tokenAuth.MetricLedgerFailure, Name: "tokenauth_ledger_failure_total", Help: "Refresh ledger backend errors."},
}

var HistogramDefs = []HistogramDef{
	{ID: tokenAuth.MetricAuthLatency, Name: "tokenauth_auth_latency_seconds", Help: "Access token authentication latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for +Inf.
var HistogramUpperBounds = []float64{
	0.00005,
	0.0001,
	0.00025,
	0.0005,
	0.001,
	0.005,
	0.025,
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
