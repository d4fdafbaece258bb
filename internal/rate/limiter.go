package rate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttle tuning parameters.
type Config struct {
	Prefix                string
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// incrWindowScript bumps a counter and starts its window on the first hit,
// in one round trip. A counter without a TTL would never reset.
var incrWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Limiter enforces per-username and per-IP failed login budgets using Redis
// counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ta"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckLogin returns ErrRateLimited when the username, or the IP when IP
// throttling is on, has used up its failure budget.
func (l *Limiter) CheckLogin(ctx context.Context, username, ip string) error {
	counts, err := l.redis.MGet(ctx, l.keys(username, ip)...).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	for _, v := range counts {
		n, err := counterValue(v)
		if err != nil {
			return err
		}
		if n >= int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin records a failed login attempt. It returns ErrRateLimited
// once the attempt pushes a counter past the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, username, ip string) error {
	window := l.config.LoginCooldownDuration.Milliseconds()
	limited := false
	for _, key := range l.keys(username, ip) {
		n, err := incrWindowScript.Run(ctx, l.redis, []string{key}, window).Int64()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		limited = limited || n > int64(l.config.MaxLoginAttempts)
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the failed-login counters after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, username, ip string) error {
	if err := l.redis.Del(ctx, l.keys(username, ip)...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginAttempts returns the current failure counter for a username.
// Missing keys return zero.
func (l *Limiter) LoginAttempts(ctx context.Context, username string) (int, error) {
	v, err := l.redis.Get(ctx, l.loginUserKey(username)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	n, err := counterValue(v)
	if err != nil || n < 0 {
		return 0, err
	}
	return int(n), nil
}

// keys lists the counters an attempt by username from ip touches.
func (l *Limiter) keys(username, ip string) []string {
	keys := []string{l.loginUserKey(username)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, l.loginIPKey(ip))
	}
	return keys
}

// Usernames are case-folded so "Alice" and "alice" share one budget.
func (l *Limiter) loginUserKey(username string) string {
	return l.config.Prefix + ":login:u:" + strings.ToLower(username)
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.Prefix + ":login:ip:" + ip
}

// counterValue decodes an MGET/GET reply; nil and "" mean no counter.
func counterValue(v any) (int64, error) {
	var s string
	switch t := v.(type) {
	case nil:
		return 0, nil
	case string:
		s = t
	default:
		return 0, fmt.Errorf("%w: unexpected counter type %T", ErrRedisUnavailable, v)
	}
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: corrupt counter %q", ErrRedisUnavailable, s)
	}
	return n, nil
}
