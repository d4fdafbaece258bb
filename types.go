package tokenAuth

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/tokenAuth/internal/audit"
	internalmetrics "github.com/MrEthical07/tokenAuth/internal/metrics"
	"github.com/MrEthical07/tokenAuth/ledger"
	"github.com/MrEthical07/tokenAuth/token"
)

// Identity is an authenticated subject and its role claims.
type Identity = token.Identity

// Pair is an access/refresh token pair.
type Pair = token.Pair

// Result is the tagged classification of a token.
type Result = token.Result

// Status is the classification outcome carried by [Result].
type Status = token.Status

// Kind distinguishes access from refresh tokens.
type Kind = token.Kind

const (
	StatusValid             = token.StatusValid
	StatusExpired           = token.StatusExpired
	StatusMalformed         = token.StatusMalformed
	StatusSignatureMismatch = token.StatusSignatureMismatch

	KindAccess  = token.KindAccess
	KindRefresh = token.KindRefresh
)

// NewIdentity builds an Identity, dropping empty and duplicate claims.
func NewIdentity(subject string, claims ...string) Identity {
	return token.NewIdentity(subject, claims...)
}

// Ledger is the refresh ledger used for reuse detection.
type Ledger = ledger.Ledger

// Credentials is the username/password pair presented to Login.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// IdentitySource checks credentials and returns the identity they belong
// to. Wrong credentials should be reported as ErrInvalidCredentials or
// ErrUserNotFound; any other error is treated as an outage.
type IdentitySource interface {
	Authenticate(ctx context.Context, username, password string) (Identity, error)
}

// IdentitySourceFunc adapts a function to IdentitySource.
type IdentitySourceFunc func(ctx context.Context, username, password string) (Identity, error)

func (f IdentitySourceFunc) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	return f(ctx, username, password)
}

// Clock supplies "now" to engine methods that do not take it explicitly.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// AuditEvent is the audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the dispatcher worker.
type AuditSink = internalaudit.Sink

// NoOpAuditSink drops audit events.
type NoOpAuditSink = internalaudit.NoOpSink

// ChannelAuditSink buffers audit events in a channel.
type ChannelAuditSink = internalaudit.ChannelSink

// JSONWriterAuditSink writes audit events as JSON lines.
type JSONWriterAuditSink = internalaudit.JSONWriterSink

// ZapAuditSink writes audit events as structured log entries.
type ZapAuditSink = internalaudit.ZapSink

// NewChannelAuditSink creates a [ChannelAuditSink] with the given buffer.
func NewChannelAuditSink(buffer int) *ChannelAuditSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterAuditSink creates a [JSONWriterAuditSink] writing to w.
func NewJSONWriterAuditSink(w io.Writer) *JSONWriterAuditSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZapAuditSink creates a [ZapAuditSink] logging through l.
func NewZapAuditSink(l *zap.Logger) *ZapAuditSink {
	return internalaudit.NewZapSink(l)
}

// NewMultiAuditSink fans events out to every non-nil sink. Closing it closes
// each sink that is an io.Closer.
func NewMultiAuditSink(sinks ...AuditSink) AuditSink {
	return internalaudit.NewMultiSink(sinks...)
}

// MetricID identifies a counter in [MetricsSnapshot].
type MetricID = internalmetrics.MetricID

const (
	MetricIssue                 = internalmetrics.MetricIssue
	MetricLoginSuccess          = internalmetrics.MetricLoginSuccess
	MetricLoginFailure          = internalmetrics.MetricLoginFailure
	MetricLoginRateLimited      = internalmetrics.MetricLoginRateLimited
	MetricRefreshSuccess        = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure        = internalmetrics.MetricRefreshFailure
	MetricRefreshExpired        = internalmetrics.MetricRefreshExpired
	MetricRefreshReplayDetected = internalmetrics.MetricRefreshReplayDetected
	MetricRefreshFamilyRevoked  = internalmetrics.MetricRefreshFamilyRevoked
	MetricRevoke                = internalmetrics.MetricRevoke
	MetricAuthSuccess           = internalmetrics.MetricAuthSuccess
	MetricAuthExpired           = internalmetrics.MetricAuthExpired
	MetricAuthMalformed         = internalmetrics.MetricAuthMalformed
	MetricAuthSignatureMismatch = internalmetrics.MetricAuthSignatureMismatch
	MetricAuthKindMismatch      = internalmetrics.MetricAuthKindMismatch
	MetricLedgerFailure         = internalmetrics.MetricLedgerFailure
	MetricAuthLatency           = internalmetrics.MetricAuthLatency
)

// Metrics holds lock-free counters and the authentication latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
