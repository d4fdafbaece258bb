package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps the suite fast while staying above every floor.
func cheap() Config {
	return Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

func mustHasher(t *testing.T, cfg Config) *Argon2 {
	t.Helper()
	h, err := NewArgon2(cfg)
	require.NoError(t, err)
	return h
}

func TestHashRoundTrip(t *testing.T) {
	h := mustHasher(t, DefaultConfig())

	encoded, err := h.Hash("P@ssw0rd-Ascii")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=3,p=2$"), encoded)

	ok, err := h.Verify("P@ssw0rd-Ascii", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("P@ssw0rd-ascii", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := h.Hash("P@ssw0rd-Ascii")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again, "salts must differ")
}

func TestHashLengthLimits(t *testing.T) {
	cfg := cheap()
	cfg.MaxPasswordBytes = 64
	h := mustHasher(t, cfg)

	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = h.Hash("123456789")
	assert.ErrorIs(t, err, ErrPasswordTooShort)
	_, err = h.Hash(strings.Repeat("a", 65))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	exact := strings.Repeat("b", 64)
	encoded, err := h.Hash(exact)
	require.NoError(t, err)
	ok, err := h.Verify(exact, encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = h.Verify(strings.Repeat("c", 65), encoded)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestDefaultMaxPasswordBytes(t *testing.T) {
	h := mustHasher(t, cheap())

	_, err := h.Hash(strings.Repeat("d", DefaultMaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	_, err = h.Hash(strings.Repeat("e", DefaultMaxPasswordBytes))
	assert.NoError(t, err)
}

func TestNeedsUpgrade(t *testing.T) {
	weak := mustHasher(t, cheap())
	strong := mustHasher(t, DefaultConfig())

	encoded, err := weak.Hash("test-password")
	require.NoError(t, err)

	up, err := strong.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, up)

	up, err = weak.NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.False(t, up)

	longer := cheap()
	longer.KeyLength = 48
	up, err = mustHasher(t, longer).NeedsUpgrade(encoded)
	require.NoError(t, err)
	assert.True(t, up)
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	h := mustHasher(t, cheap())
	good, err := h.Hash("version-test")
	require.NoError(t, err)

	cases := map[string]string{
		"not phc":        "not-a-phc-hash",
		"truncated":      "$argon2id$v=19$bogus",
		"argon2i":        strings.Replace(good, "$argon2id$", "$argon2i$", 1),
		"old version":    strings.Replace(good, "$v=19$", "$v=18$", 1),
		"low memory":     strings.Replace(good, "m=8192", "m=1024", 1),
		"zero time":      strings.Replace(good, "t=1", "t=0", 1),
		"duplicate cost": strings.Replace(good, "t=1", "m=8192", 1),
		"extra cost":     strings.Replace(good, "p=1", "p=1,x=2", 1),
		"bad salt":       withField(good, 4, "!!!!"),
		"short salt":     withField(good, 4, "c2FsdA=="),
		"empty key":      withField(good, 5, ""),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.Verify("version-test", encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)
			_, err = h.NeedsUpgrade(encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func withField(encoded string, i int, v string) string {
	parts := strings.Split(encoded, "$")
	parts[i] = v
	return strings.Join(parts, "$")
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			_, err := NewArgon2(cfg)
			assert.Error(t, err)
		})
	}
}
