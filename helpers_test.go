package tokenAuth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var (
	secretK1 = []byte("k1-0123456789abcdef0123456789abcdef")
	secretK2 = []byte("k2-0123456789abcdef0123456789abcdef")
)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{now: time.Unix(unix, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.mu.Lock()
	c.now = time.Unix(unix, 0).UTC()
	c.mu.Unlock()
}

func sequentialIDs() func() string {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("id-%d", n.Add(1))
	}
}

func at(unix int64) time.Time { return time.Unix(unix, 0).UTC() }

func testConfig(secret []byte) Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = secret
	cfg.JWT.AccessTTL = 60 * time.Second
	cfg.JWT.RefreshTTL = 86400 * time.Second
	cfg.Metrics.Enabled = true
	return cfg
}

type testUsers map[string]struct {
	password string
	roles    []string
}

func (u testUsers) source() IdentitySource {
	return IdentitySourceFunc(func(_ context.Context, username, password string) (Identity, error) {
		rec, ok := u[username]
		if !ok {
			return Identity{}, ErrUserNotFound
		}
		if rec.password != password {
			return Identity{}, ErrInvalidCredentials
		}
		return NewIdentity(username, rec.roles...), nil
	})
}

func aliceUsers() testUsers {
	return testUsers{
		"alice": {password: "alice-password", roles: []string{"USER"}},
	}
}

// newTestEngine builds an hs256 engine at t=1000 with 60s/86400s lifetimes
// and an in-memory ledger. mutate may adjust the builder before Build.
func newTestEngine(t *testing.T, mutate func(*Builder)) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock(1000)
	b := New().
		WithConfig(testConfig(secretK1)).
		WithClock(clock).
		WithIDSource(sequentialIDs()).
		WithIdentitySource(aliceUsers().source())
	if mutate != nil {
		mutate(b)
	}
	engine, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })
	return engine, clock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
