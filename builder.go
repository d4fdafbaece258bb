package tokenAuth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	internalaudit "github.com/MrEthical07/tokenAuth/internal/audit"
	"github.com/MrEthical07/tokenAuth/internal/flows"
	"github.com/MrEthical07/tokenAuth/internal/rate"
	"github.com/MrEthical07/tokenAuth/jwt"
	"github.com/MrEthical07/tokenAuth/ledger"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	logger *zap.Logger
	redis  redis.UniversalClient

	ledger         Ledger
	identitySource IdentitySource
	clock          Clock
	newID          func() string
	auditSink      AuditSink
	keyProvider    jwt.KeyProvider

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithRedis sets the Redis client used by the login throttle and, unless
// WithLedger is also called, by the refresh ledger.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLedger sets the refresh ledger explicitly.
func (b *Builder) WithLedger(l Ledger) *Builder {
	b.ledger = l
	return b
}

// WithIdentitySource sets the credential checker used by Login.
func (b *Builder) WithIdentitySource(src IdentitySource) *Builder {
	b.identitySource = src
	return b
}

// WithClock overrides the wall clock.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithIDSource overrides the token id and family generator
// (default uuid.NewString).
func (b *Builder) WithIDSource(fn func() string) *Builder {
	b.newID = fn
	return b
}

// WithAuditSink sets where audit events go when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithKeyProvider loads key material at Build time, replacing the key
// fields of the JWT configuration.
func (b *Builder) WithKeyProvider(p jwt.KeyProvider) *Builder {
	b.keyProvider = p
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authentication latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, loads keys and wires the engine.
// Every failure wraps [ErrConfig].
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, configError("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.keyProvider != nil {
		keys, err := b.keyProvider.Keys()
		if err != nil {
			return nil, fmt.Errorf("%w: load keys: %w", ErrConfig, err)
		}
		cfg.JWT.applyKeys(keys)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(cfg.JWT.managerConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := &Engine{
		config:         cloneConfig(cfg),
		logger:         logger.Named("tokenauth"),
		jwtManager:     jm,
		identitySource: b.identitySource,
		clock:          b.clock,
	}
	if engine.clock == nil {
		engine.clock = systemClock{}
	}

	// -------- REFRESH LEDGER --------
	if cfg.Refresh.ReuseDetection {
		switch {
		case b.ledger != nil:
			engine.ledger = b.ledger
		case b.redis != nil:
			engine.ledger = ledger.NewRedis(b.redis, cfg.Refresh.RedisPrefix)
		default:
			engine.ledger = ledger.NewMemory()
		}
	} else if b.ledger != nil {
		engine.logger.Warn("refresh ledger ignored because reuse detection is disabled")
	}

	// -------- LOGIN THROTTLE --------
	if cfg.Security.EnableLoginThrottle {
		if b.redis == nil {
			return nil, configError("login throttle requires a redis client")
		}
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:                cfg.Refresh.RedisPrefix,
			EnableIPThrottle:      cfg.Security.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	newID := b.newID
	if newID == nil {
		newID = uuid.NewString
	}
	engine.flowDeps = engine.buildFlowDeps(newID)

	b.built = true

	return engine, nil
}

func (e *Engine) buildFlowDeps(newID func() string) flows.Deps {
	issue := flows.IssueDeps{
		Sign:       e.jwtManager.Sign,
		NewID:      newID,
		AccessTTL:  e.config.JWT.AccessTTL,
		RefreshTTL: e.config.JWT.RefreshTTL,
	}
	classify := flows.ClassifyDeps{Verify: e.jwtManager.Verify}

	deps := flows.Deps{
		Issue:    issue,
		Classify: classify,
		Refresh: flows.RefreshDeps{
			Classify: classify,
			Issue:    issue,
		},
		Revoke: flows.RevokeDeps{
			Classify:   classify,
			RefreshTTL: e.config.JWT.RefreshTTL,
		},
		Login: flows.LoginDeps{
			IsInvalidCredentials: func(err error) bool {
				return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUserNotFound)
			},
			Warn: func(msg string, kv ...any) {
				e.logger.Sugar().Warnw(msg, kv...)
			},
			Issue: issue,
		},
	}
	if e.ledger != nil {
		deps.Refresh.Ledger = e.ledger
		deps.Revoke.Ledger = e.ledger
	}
	if e.rateLimiter != nil {
		deps.Login.Limiter = e.rateLimiter
	}
	if e.identitySource != nil {
		deps.Login.Authenticate = e.identitySource.Authenticate
	}
	return deps
}
