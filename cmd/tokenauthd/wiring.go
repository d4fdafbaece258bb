package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	tokenAuth "github.com/MrEthical07/tokenAuth"
	"github.com/MrEthical07/tokenAuth/audit/kafkasink"
	"github.com/MrEthical07/tokenAuth/directory"
	"github.com/MrEthical07/tokenAuth/internal/settings"
	"github.com/MrEthical07/tokenAuth/ledger"
	"github.com/MrEthical07/tokenAuth/password"
)

// runtimeDeps is everything built from settings. Close releases it in
// reverse order of construction.
type runtimeDeps struct {
	engine  *tokenAuth.Engine
	redis   redis.UniversalClient
	closers []func() error
}

func (d *runtimeDeps) onClose(fn func() error) { d.closers = append(d.closers, fn) }

func (d *runtimeDeps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// health pings the backends the engine depends on.
func (d *runtimeDeps) health(ctx context.Context) error {
	if d.redis == nil {
		return nil
	}
	return d.redis.Ping(ctx).Err()
}

type buildOptions struct {
	embeddedRedis bool
	// withUsers seeds the directory; tooling commands skip the Argon2 work.
	withUsers bool
}

func buildRuntime(ctx context.Context, s *settings.Settings, logger *zap.Logger, opts buildOptions) (_ *runtimeDeps, err error) {
	deps := &runtimeDeps{}
	defer func() {
		if err != nil {
			_ = deps.Close()
		}
	}()

	b := tokenAuth.New().WithConfig(s.EngineConfig()).WithLogger(logger)

	kp, err := s.KeyProvider()
	if err != nil {
		return nil, err
	}
	b.WithKeyProvider(kp)

	// -------- REDIS --------
	if s.NeedsRedis() || opts.embeddedRedis {
		addr := s.Redis.Addr
		if opts.embeddedRedis || s.Redis.Embedded {
			mr, err := miniredis.Run()
			if err != nil {
				return nil, fmt.Errorf("start embedded redis: %w", err)
			}
			deps.onClose(func() error { mr.Close(); return nil })
			addr = mr.Addr()
			logger.Warn("using embedded redis, state is lost on exit", zap.String("addr", addr))
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{addr},
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
		deps.onClose(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", addr, err)
		}
		deps.redis = client
		b.WithRedis(client)
	}

	// -------- LEDGER --------
	switch s.Ledger.Backend {
	case "postgres":
		pool, err := ledger.OpenPostgres(ctx, s.Postgres.DSN, s.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		deps.onClose(func() error { pool.Close(); return nil })
		pg := ledger.NewPostgres(pool, s.Postgres.QueryTimeout)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		b.WithLedger(pg)
	case "memory":
		b.WithLedger(ledger.NewMemory())
	}

	// -------- AUDIT --------
	var sinks []tokenAuth.AuditSink
	for _, name := range s.AuditSinks() {
		switch name {
		case "log":
			sinks = append(sinks, tokenAuth.NewZapAuditSink(logger))
		case "kafka":
			sinks = append(sinks, kafkasink.New(kafkasink.Config{
				Brokers:      s.Kafka.Brokers,
				Topic:        s.Kafka.Topic,
				WriteTimeout: s.Kafka.WriteTimeout,
			}).WithLogger(logger))
		}
	}
	if len(sinks) > 0 {
		b.WithAuditSink(tokenAuth.NewMultiAuditSink(sinks...))
	}

	// -------- DIRECTORY --------
	if opts.withUsers {
		dir, err := seedDirectory(s.Users)
		if err != nil {
			return nil, err
		}
		logger.Info("directory seeded", zap.Int("users", dir.Len()))
		b.WithIdentitySource(dir)
	}

	engine, err := b.Build()
	if err != nil {
		return nil, err
	}
	deps.onClose(engine.Close)
	deps.engine = engine
	return deps, nil
}

func seedDirectory(users []settings.User) (*directory.Directory, error) {
	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}
	dir, err := directory.New(hasher)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			err = dir.Add(directory.User{Username: u.Username, PasswordHash: u.PasswordHash, Roles: u.Roles, Disabled: u.Disabled})
		} else {
			err = dir.AddPassword(u.Username, u.Password, u.Roles...)
		}
		if err != nil {
			return nil, fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}
	return dir, nil
}
