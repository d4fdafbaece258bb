package settings

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/internal/obs"
	"github.com/MrEthical07/tokenAuth/jwt"
)

// EnvPrefix prefixes every environment override, e.g.
// TOKENAUTH_AUTH_ACCESS_TTL=5m.
const EnvPrefix = "TOKENAUTH"

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Auth struct {
	AccessTTL      time.Duration `mapstructure:"access_ttl"`
	RefreshTTL     time.Duration `mapstructure:"refresh_ttl"`
	SigningMethod  string        `mapstructure:"signing_method"`
	Secret         string        `mapstructure:"secret"`
	SecretFile     string        `mapstructure:"secret_file"`
	PrivateKeyFile string        `mapstructure:"private_key_file"`
	PublicKeyFile  string        `mapstructure:"public_key_file"`
	KeyID          string        `mapstructure:"key_id"`
	ReuseDetection bool          `mapstructure:"reuse_detection"`
	ProductionMode bool          `mapstructure:"production_mode"`
}

type Throttle struct {
	Enable      bool          `mapstructure:"enable"`
	PerIP       bool          `mapstructure:"per_ip"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// Ledger selects the refresh ledger backend: memory, redis or postgres.
type Ledger struct {
	Backend string `mapstructure:"backend"`
	Prefix  string `mapstructure:"prefix"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Embedded bool   `mapstructure:"embedded"`
}

type Postgres struct {
	DSN          string        `mapstructure:"dsn"`
	MaxConns     int32         `mapstructure:"max_conns"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

type Kafka struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Audit selects where audit events go: none, or a comma-separated list of
// log and kafka.
type Audit struct {
	Sink       string `mapstructure:"sink"`
	BufferSize int    `mapstructure:"buffer_size"`
	DropIfFull bool   `mapstructure:"drop_if_full"`
}

type Metrics struct {
	Enabled bool `mapstructure:"enabled"`
	Latency bool `mapstructure:"latency"`
}

// User seeds the in-memory directory. Exactly one of Password and
// PasswordHash is expected.
type User struct {
	Username     string   `mapstructure:"username"`
	Password     string   `mapstructure:"password"`
	PasswordHash string   `mapstructure:"password_hash"`
	Roles        []string `mapstructure:"roles"`
	Disabled     bool     `mapstructure:"disabled"`
}

type Settings struct {
	App      App      `mapstructure:"app"`
	Server   Server   `mapstructure:"server"`
	Log      Log      `mapstructure:"log"`
	Auth     Auth     `mapstructure:"auth"`
	Throttle Throttle `mapstructure:"throttle"`
	Ledger   Ledger   `mapstructure:"ledger"`
	Redis    Redis    `mapstructure:"redis"`
	Postgres Postgres `mapstructure:"postgres"`
	Kafka    Kafka    `mapstructure:"kafka"`
	Audit    Audit    `mapstructure:"audit"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Users    []User   `mapstructure:"users"`
}

var ErrInvalid = errors.New("invalid settings")

// Load reads the YAML file at path (optional) and applies TOKENAUTH_*
// environment overrides on top of the defaults.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tokenauthd")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "dev")

	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9100")
	v.SetDefault("server.read_timeout", "5s")
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_timeout", "15s")
	v.SetDefault("server.cookie_secure", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("auth.access_ttl", "15m")
	v.SetDefault("auth.refresh_ttl", "24h")
	v.SetDefault("auth.signing_method", "ed25519")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.secret_file", "")
	v.SetDefault("auth.private_key_file", "")
	v.SetDefault("auth.public_key_file", "")
	v.SetDefault("auth.key_id", "")
	v.SetDefault("auth.reuse_detection", true)
	v.SetDefault("auth.production_mode", false)

	v.SetDefault("throttle.enable", false)
	v.SetDefault("throttle.per_ip", false)
	v.SetDefault("throttle.max_attempts", 5)
	v.SetDefault("throttle.cooldown", "15m")

	v.SetDefault("ledger.backend", "memory")
	v.SetDefault("ledger.prefix", "ta")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embedded", false)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.query_timeout", "2s")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "tokenauth.audit")
	v.SetDefault("kafka.write_timeout", "5s")

	v.SetDefault("audit.sink", "none")
	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.drop_if_full", true)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.latency", true)
}

// Validate checks cross-field constraints the engine config cannot see.
func (s *Settings) Validate() error {
	switch s.Ledger.Backend {
	case "memory", "redis":
	case "postgres":
		if s.Postgres.DSN == "" {
			return fmt.Errorf("%w: ledger backend postgres needs postgres.dsn", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown ledger backend %q", ErrInvalid, s.Ledger.Backend)
	}

	for _, sink := range s.AuditSinks() {
		switch sink {
		case "log":
		case "kafka":
			if len(s.Kafka.Brokers) == 0 || s.Kafka.Topic == "" {
				return fmt.Errorf("%w: audit sink kafka needs kafka.brokers and kafka.topic", ErrInvalid)
			}
		default:
			return fmt.Errorf("%w: unknown audit sink %q", ErrInvalid, sink)
		}
	}

	for i, u := range s.Users {
		if strings.TrimSpace(u.Username) == "" {
			return fmt.Errorf("%w: users[%d] has no username", ErrInvalid, i)
		}
		if (u.Password == "") == (u.PasswordHash == "") {
			return fmt.Errorf("%w: user %q needs exactly one of password and password_hash", ErrInvalid, u.Username)
		}
	}
	return nil
}

// AuditSinks returns the configured sink names, without "none" and
// duplicates.
func (s *Settings) AuditSinks() []string {
	var out []string
	for _, name := range strings.Split(s.Audit.Sink, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "none" || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

// NeedsRedis reports whether any component talks to Redis.
func (s *Settings) NeedsRedis() bool {
	return s.Ledger.Backend == "redis" || s.Throttle.Enable
}

// EngineConfig maps the settings onto an engine configuration. Key material
// comes from KeyProvider.
func (s *Settings) EngineConfig() tokenAuth.Config {
	cfg := tokenAuth.DefaultConfig()
	cfg.JWT.AccessTTL = s.Auth.AccessTTL
	cfg.JWT.RefreshTTL = s.Auth.RefreshTTL
	cfg.JWT.SigningMethod = s.Auth.SigningMethod
	cfg.JWT.KeyID = s.Auth.KeyID

	cfg.Refresh.ReuseDetection = s.Auth.ReuseDetection
	cfg.Refresh.RedisPrefix = s.Ledger.Prefix

	cfg.Security.ProductionMode = s.Auth.ProductionMode
	cfg.Security.EnableLoginThrottle = s.Throttle.Enable
	cfg.Security.EnableIPThrottle = s.Throttle.Enable && s.Throttle.PerIP
	cfg.Security.MaxLoginAttempts = s.Throttle.MaxAttempts
	cfg.Security.LoginCooldownDuration = s.Throttle.Cooldown

	cfg.Audit.Enabled = len(s.AuditSinks()) > 0
	cfg.Audit.BufferSize = s.Audit.BufferSize
	cfg.Audit.DropIfFull = s.Audit.DropIfFull

	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.Latency
	return cfg
}

// KeyProvider returns the key source described by the auth section: an
// inline secret, or key files.
func (s *Settings) KeyProvider() (jwt.KeyProvider, error) {
	method := jwt.SigningMethod(s.Auth.SigningMethod)
	switch {
	case s.Auth.Secret != "":
		if method != jwt.MethodHS256 {
			return nil, fmt.Errorf("%w: auth.secret requires signing_method hs256", ErrInvalid)
		}
		return jwt.StaticKeys{SigningMethod: method, PrivateKey: []byte(s.Auth.Secret), KeyID: s.Auth.KeyID}, nil
	case s.Auth.SecretFile != "":
		return jwt.FileKeys{SigningMethod: method, PrivateKeyPath: s.Auth.SecretFile, KeyID: s.Auth.KeyID}, nil
	case s.Auth.PrivateKeyFile != "" || s.Auth.PublicKeyFile != "":
		return jwt.FileKeys{
			SigningMethod:  method,
			PrivateKeyPath: s.Auth.PrivateKeyFile,
			PublicKeyPath:  s.Auth.PublicKeyFile,
			KeyID:          s.Auth.KeyID,
		}, nil
	default:
		return nil, fmt.Errorf("%w: no signing key configured (auth.secret, auth.secret_file or auth.private_key_file)", ErrInvalid)
	}
}

func (s *Settings) AsLogConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  s.Log.Level,
		Pretty: s.Log.Pretty,
		App:    s.App.Name,
		Env:    s.App.Env,
		Ver:    s.App.Version,
	}
}
