package rate

import "errors"

// ErrRateLimited reports an exhausted attempt budget. The engine maps it to
// ErrLoginRateLimited.
var ErrRateLimited = errors.New("login attempts exhausted")

// ErrRedisUnavailable wraps counter I/O failures. Callers fail closed on it.
var ErrRedisUnavailable = errors.New("rate limiter backend unavailable")
