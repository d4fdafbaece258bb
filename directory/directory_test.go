package directory

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/password"
)

func fastConfig() password.Config {
	return password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestDirectory(t *testing.T) *Directory {
	t.Helper()
	hasher, err := password.NewArgon2(fastConfig())
	require.NoError(t, err)
	d, err := New(hasher)
	require.NoError(t, err)
	require.NoError(t, d.AddPassword("alice", "alice-password-1", "ROLE_USER", "ROLE_ADMIN"))
	return d
}

func TestAuthenticateSuccess(t *testing.T) {
	d := newTestDirectory(t)

	id, err := d.Authenticate(context.Background(), "alice", "alice-password-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, []string{"ROLE_USER", "ROLE_ADMIN"}, id.Claims)
}

func TestAuthenticateFailures(t *testing.T) {
	d := newTestDirectory(t)
	ctx := context.Background()

	_, err := d.Authenticate(ctx, "alice", "wrong-password-1")
	assert.ErrorIs(t, err, tokenAuth.ErrInvalidCredentials)

	_, err = d.Authenticate(ctx, "mallory", "alice-password-1")
	assert.ErrorIs(t, err, tokenAuth.ErrUserNotFound)

	_, err = d.Authenticate(ctx, "alice", strings.Repeat("x", password.DefaultMaxPasswordBytes+1))
	assert.ErrorIs(t, err, tokenAuth.ErrInvalidCredentials)
}

func TestDisabledUserRejected(t *testing.T) {
	d := newTestDirectory(t)
	hash, ok := d.Hash("alice")
	require.True(t, ok)
	require.NoError(t, d.Add(User{Username: "bob", PasswordHash: hash, Disabled: true}))

	_, err := d.Authenticate(context.Background(), "bob", "alice-password-1")
	assert.ErrorIs(t, err, tokenAuth.ErrInvalidCredentials)
}

func TestCorruptHashIsAnOutage(t *testing.T) {
	d := newTestDirectory(t)
	require.NoError(t, d.Add(User{Username: "carol", PasswordHash: "not-a-phc"}))

	_, err := d.Authenticate(context.Background(), "carol", "whatever-password")
	require.Error(t, err)
	assert.ErrorIs(t, err, password.ErrInvalidHash)
	assert.NotErrorIs(t, err, tokenAuth.ErrInvalidCredentials)
}

func TestCanceledContext(t *testing.T) {
	d := newTestDirectory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Authenticate(ctx, "alice", "alice-password-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddValidation(t *testing.T) {
	d := newTestDirectory(t)
	assert.ErrorIs(t, d.Add(User{Username: " ", PasswordHash: "x"}), ErrInvalidUser)
	assert.ErrorIs(t, d.Add(User{Username: "dave"}), ErrInvalidUser)
	assert.Error(t, d.AddPassword("dave", "short"))

	d.Remove("alice")
	assert.Zero(t, d.Len())
}

func TestHashUpgradedOnLogin(t *testing.T) {
	weak, err := password.NewArgon2(fastConfig())
	require.NoError(t, err)
	oldHash, err := weak.Hash("alice-password-1")
	require.NoError(t, err)

	strongCfg := fastConfig()
	strongCfg.Time = 2
	strong, err := password.NewArgon2(strongCfg)
	require.NoError(t, err)
	d, err := New(strong)
	require.NoError(t, err)
	require.NoError(t, d.Add(User{Username: "alice", PasswordHash: oldHash}))

	_, err = d.Authenticate(context.Background(), "alice", "alice-password-1")
	require.NoError(t, err)

	newHash, _ := d.Hash("alice")
	assert.NotEqual(t, oldHash, newHash)
	assert.Contains(t, newHash, ",t=2,")
	needs, err := strong.NeedsUpgrade(newHash)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestConcurrentAuthenticate(t *testing.T) {
	d := newTestDirectory(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Authenticate(context.Background(), "alice", "alice-password-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
