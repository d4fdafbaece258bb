package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/internal/settings"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "tokenauthd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestKeygenEd25519ThenInspect(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "", "keygen", "--method", "ed25519", "--out", dir)
	require.NoError(t, err)

	cfgPath := writeConfig(t, dir, `
auth:
  signing_method: ed25519
  private_key_file: `+filepath.Join(dir, "signing.key")+`
  public_key_file: `+filepath.Join(dir, "signing.pub")+`
`)
	s, err := settings.Load(cfgPath)
	require.NoError(t, err)
	engine, err := inspectEngine(s)
	require.NoError(t, err)
	defer engine.Close()
	pair, err := engine.Issue(tokenAuth.NewIdentity("alice", "USER"), engine.Now())
	require.NoError(t, err)

	out, err := run(t, "", "inspect", "--config", cfgPath, pair.RefreshToken)
	require.NoError(t, err)
	var got inspection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "valid", got.Status)
	assert.Equal(t, "refresh", got.Kind)
	assert.Equal(t, "alice", got.Subject)
	assert.Equal(t, []string{"USER"}, got.Claims)
	assert.NotEmpty(t, got.Family)

	// token from stdin, classified after it lapsed
	out, err = run(t, pair.AccessToken+"\n", "inspect", "--config", cfgPath, "--at", "2999-01-01T00:00:00Z")
	require.NoError(t, err)
	got = inspection{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "expired", got.Status)
	assert.Empty(t, got.Subject)
	assert.NotNil(t, got.ExpiresAt)

	out, err = run(t, "", "inspect", "--config", cfgPath, "not-a-token")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "malformed"`)
}

func TestKeygenHS256(t *testing.T) {
	out, err := run(t, "", "keygen", "--method", "hs256")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(strings.TrimSpace(out)), 43)

	dir := t.TempDir()
	_, err = run(t, "", "keygen", "--method", "hs256", "--out", dir)
	require.NoError(t, err)
	secret, err := os.ReadFile(filepath.Join(dir, "signing.secret"))
	require.NoError(t, err)
	assert.Len(t, secret, secretBytes)

	_, err = run(t, "", "keygen", "--method", "hs256", "--out", dir)
	assert.Error(t, err, "existing key files are never overwritten")

	_, err = run(t, "", "keygen", "--method", "rs256")
	assert.Error(t, err)
}

func TestBuildRuntimeEmbeddedRedis(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), `
auth:
  signing_method: hs256
  secret: "cmd-test-secret-0123456789abcdef0123"
throttle:
  enable: true
  max_attempts: 2
ledger:
  backend: redis
users:
  - username: alice
    password: correct-horse
    roles: [USER]
`)
	s, err := settings.Load(cfgPath)
	require.NoError(t, err)

	ctx := context.Background()
	deps, err := buildRuntime(ctx, s, zap.NewNop(), buildOptions{embeddedRedis: true, withUsers: true})
	require.NoError(t, err)
	defer deps.Close()
	require.NoError(t, deps.health(ctx))

	pair, err := deps.engine.Login(ctx, tokenAuth.Credentials{Username: "alice", Password: "correct-horse"})
	require.NoError(t, err)
	_, err = deps.engine.Refresh(ctx, pair.RefreshToken, deps.engine.Now())
	require.NoError(t, err)
	_, err = deps.engine.Refresh(ctx, pair.RefreshToken, deps.engine.Now())
	assert.ErrorIs(t, err, tokenAuth.ErrRefreshReplayed)

	for range 2 {
		_, err = deps.engine.Login(ctx, tokenAuth.Credentials{Username: "alice", Password: "wrong"})
		require.ErrorIs(t, err, tokenAuth.ErrInvalidCredentials)
	}
	_, err = deps.engine.Login(ctx, tokenAuth.Credentials{Username: "alice", Password: "correct-horse"})
	assert.ErrorIs(t, err, tokenAuth.ErrLoginRateLimited)
}

func TestLoadtestSmoke(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir(), `
auth:
  signing_method: hs256
  secret: "cmd-test-secret-0123456789abcdef0123"
`)
	out, err := run(t, "", "loadtest", "--config", cfgPath, "--families", "8", "--ops", "64", "--concurrency", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "authenticate: ops=64 failures=0")
	assert.Contains(t, out, "refresh: ops=64 failures=0")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, appName+" version dev (build: unknown)\n", out)
}

func TestComputeStats(t *testing.T) {
	samples := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	s := computeStats(time.Second, samples, 3)
	assert.Equal(t, 100, s.ops)
	assert.EqualValues(t, 3, s.failures)
	assert.Equal(t, 50*time.Millisecond, s.p50)
	assert.Equal(t, 95*time.Millisecond, s.p95)
	assert.Equal(t, 99*time.Millisecond, s.p99)
	assert.InDelta(t, 100.0, s.opsPerS, 0.001)

	assert.Zero(t, percentile(nil, 50))
	assert.Equal(t, phaseStats{total: time.Second}, computeStats(time.Second, nil, 0))
}
