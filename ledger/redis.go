package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	consumeStatusConsumed      int64 = 0
	consumeStatusReplayed      int64 = 1
	consumeStatusFamilyRevoked int64 = 2
)

// KEYS[1] consumed marker, KEYS[2] family marker.
// ARGV[1] marker ttl ms, ARGV[2] family revocation ttl ms.
const consumeScript = `
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 2
end
if redis.call("SET", KEYS[1], "1", "NX", "PX", ARGV[1]) then
  return 0
end
local current = redis.call("PTTL", KEYS[2])
if current ~= -1 and current < tonumber(ARGV[2]) then
  redis.call("SET", KEYS[2], "1", "PX", ARGV[2])
end
return 1
`

// KEYS[1] family marker, ARGV[1] revocation ttl ms. The marker is only
// ever extended.
const revokeScript = `
local current = redis.call("PTTL", KEYS[1])
if current ~= -1 and current < tonumber(ARGV[1]) then
  redis.call("SET", KEYS[1], "1", "PX", ARGV[1])
end
return 0
`

var (
	consumeLua = redis.NewScript(consumeScript)
	revokeLua  = redis.NewScript(revokeScript)
)

// Redis is a Ledger shared by every process using the same Redis.
//
// Marker lifetimes are derived from Record times but enforced by the Redis
// clock, so callers should pass a Now close to wall time.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis ledger. prefix namespaces every key; an empty
// prefix defaults to "ta".
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ta"
	}
	return &Redis{client: client, prefix: prefix}
}

// Consume implements Ledger.
func (r *Redis) Consume(ctx context.Context, rec Record) (Outcome, error) {
	status, err := consumeLua.Run(
		ctx,
		r.client,
		[]string{r.consumedKey(rec.TokenID), r.familyKey(rec.Family)},
		ttlBetween(rec.Now, rec.ExpiresAt).Milliseconds(),
		ttlBetween(rec.Now, rec.RevokeUntil).Milliseconds(),
	).Int64()
	if err != nil {
		return OutcomeConsumed, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch status {
	case consumeStatusConsumed:
		return OutcomeConsumed, nil
	case consumeStatusReplayed:
		return OutcomeReplayed, nil
	case consumeStatusFamilyRevoked:
		return OutcomeFamilyRevoked, nil
	default:
		return OutcomeConsumed, fmt.Errorf("%w: unexpected consume status %d", ErrUnavailable, status)
	}
}

// RevokeFamily implements Ledger. An existing revocation that lasts longer
// is kept.
func (r *Redis) RevokeFamily(ctx context.Context, family string, now, until time.Time) error {
	if family == "" || !until.After(now) {
		return nil
	}
	err := revokeLua.Run(ctx, r.client, []string{r.familyKey(family)}, ttlBetween(now, until).Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (r *Redis) consumedKey(tokenID string) string {
	return r.prefix + ":rt:used:" + tokenID
}

func (r *Redis) familyKey(family string) string {
	return r.prefix + ":rt:fam:" + family
}
