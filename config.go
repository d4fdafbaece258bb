package tokenAuth

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tokenAuth/jwt"
)

// Config is the engine configuration. Start from [DefaultConfig] and
// override what you need; [Builder.Build] validates it.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Security SecurityConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds token lifetimes and key material.
//
// PrivateKey is the shared secret for "hs256" and the Ed25519 private key
// (raw or PEM) for "ed25519". Key material may instead come from a
// [jwt.KeyProvider] passed to [Builder.WithKeyProvider].
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh token reuse detection.
//
// With ReuseDetection on, every refresh token can be rotated once; a second
// presentation revokes its whole rotation family. Turning it off makes
// refresh tokens reusable until expiry.
type RefreshConfig struct {
	ReuseDetection bool
	RedisPrefix    string
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds login throttling and production hardening switches.
type SecurityConfig struct {
	ProductionMode        bool
	EnableLoginThrottle   bool
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. It carries no key
// material and does not validate until keys are supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			SigningMethod: string(jwt.MethodEd25519),
		},
		Refresh: RefreshConfig{
			ReuseDetection: true,
			RedisPrefix:    "ta",
		},
		Security: SecurityConfig{
			ProductionMode:        false,
			EnableLoginThrottle:   false,
			EnableIPThrottle:      false,
			MaxLoginAttempts:      5,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c JWTConfig) managerConfig() jwt.Config {
	return jwt.KeySet{
		SigningMethod: jwt.SigningMethod(c.SigningMethod),
		PrivateKey:    c.PrivateKey,
		PublicKey:     c.PublicKey,
		KeyID:         c.KeyID,
		VerifyKeys:    c.VerifyKeys,
	}.Config()
}

func (c *JWTConfig) applyKeys(set jwt.KeySet) {
	if set.SigningMethod != "" {
		c.SigningMethod = string(set.SigningMethod)
	}
	c.PrivateKey = cloneBytes(set.PrivateKey)
	c.PublicKey = cloneBytes(set.PublicKey)
	c.KeyID = set.KeyID
	c.VerifyKeys = nil
	if len(set.VerifyKeys) > 0 {
		c.VerifyKeys = make(map[string][]byte, len(set.VerifyKeys))
		for kid, key := range set.VerifyKeys {
			c.VerifyKeys[kid] = cloneBytes(key)
		}
	}
}

/*
====================================
VALIDATION
====================================
*/

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...)
}

// Validate checks the configuration. Every failure wraps [ErrConfig].
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return configError("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return configError("JWT RefreshTTL must be > 0")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return configError("JWT AccessTTL must be shorter than RefreshTTL")
	}
	if c.JWT.AccessTTL < time.Second {
		return configError("JWT AccessTTL must be at least 1s")
	}
	// exp is carried in whole seconds.
	if c.JWT.AccessTTL%time.Second != 0 || c.JWT.RefreshTTL%time.Second != 0 {
		return configError("JWT AccessTTL and RefreshTTL must be whole seconds")
	}

	method := jwt.SigningMethod(c.JWT.SigningMethod)
	if method != jwt.MethodEd25519 && method != jwt.MethodHS256 {
		return configError("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if len(c.JWT.PrivateKey) == 0 && len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
		return configError("JWT key material is required")
	}
	if c.JWT.KeyID != strings.TrimSpace(c.JWT.KeyID) {
		return configError("JWT KeyID must not carry surrounding whitespace")
	}

	// Refresh
	if c.Refresh.ReuseDetection && strings.TrimSpace(c.Refresh.RedisPrefix) == "" {
		return configError("Refresh RedisPrefix must not be empty")
	}

	// Security
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 {
			return configError("MaxLoginAttempts must be > 0 when login throttle is enabled")
		}
		if c.Security.LoginCooldownDuration <= 0 {
			return configError("LoginCooldownDuration must be > 0 when login throttle is enabled")
		}
	}
	if c.Security.EnableIPThrottle && !c.Security.EnableLoginThrottle {
		return configError("EnableIPThrottle requires EnableLoginThrottle")
	}

	if c.Security.ProductionMode {
		if !c.Refresh.ReuseDetection {
			return configError("ProductionMode requires Refresh ReuseDetection")
		}
		if method == jwt.MethodHS256 && len(c.JWT.PrivateKey) > 0 && len(c.JWT.PrivateKey) < 32 {
			return configError("ProductionMode requires an hs256 secret of at least 32 bytes")
		}
		for kid, key := range c.JWT.VerifyKeys {
			if method == jwt.MethodHS256 && len(key) < 32 {
				return configError("ProductionMode requires hs256 verify key %q of at least 32 bytes", kid)
			}
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
