package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS refresh_consumed (
	token_id   TEXT PRIMARY KEY,
	family     TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS refresh_consumed_expires_idx ON refresh_consumed (expires_at);
CREATE TABLE IF NOT EXISTS refresh_revoked_families (
	family        TEXT PRIMARY KEY,
	revoked_until TIMESTAMPTZ NOT NULL
);
`

const (
	selectRevokedSQL = `SELECT revoked_until FROM refresh_revoked_families WHERE family = $1`
	insertConsumedSQL = `INSERT INTO refresh_consumed (token_id, family, expires_at)
VALUES ($1, $2, $3) ON CONFLICT (token_id) DO NOTHING`
	upsertRevokedSQL = `INSERT INTO refresh_revoked_families (family, revoked_until)
VALUES ($1, $2) ON CONFLICT (family)
DO UPDATE SET revoked_until = GREATEST(refresh_revoked_families.revoked_until, EXCLUDED.revoked_until)`
	pruneConsumedSQL = `DELETE FROM refresh_consumed WHERE expires_at <= $1`
	pruneRevokedSQL  = `DELETE FROM refresh_revoked_families WHERE revoked_until <= $1`
)

type pgxDB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var _ pgxDB = (*pgxpool.Pool)(nil)

// Postgres is a Ledger backed by two tables. Call EnsureSchema once at
// startup and Prune periodically.
type Postgres struct {
	db           pgxDB
	queryTimeout time.Duration
}

// NewPostgres wraps an existing pool. queryTimeout bounds every statement;
// zero disables the bound.
func NewPostgres(pool *pgxpool.Pool, queryTimeout time.Duration) *Postgres {
	return &Postgres{db: pool, queryTimeout: queryTimeout}
}

// OpenPostgres parses dsn, connects and pings.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(hctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the ledger tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrUnavailable, err)
	}
	return nil
}

// Consume implements Ledger.
func (p *Postgres) Consume(ctx context.Context, rec Record) (outcome Outcome, err error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return OutcomeConsumed, fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if cerr := tx.Commit(ctx); cerr != nil {
			err = fmt.Errorf("%w: commit: %v", ErrUnavailable, cerr)
		}
	}()

	var revokedUntil time.Time
	switch err := tx.QueryRow(ctx, selectRevokedSQL, rec.Family).Scan(&revokedUntil); {
	case err == nil:
		if revokedUntil.After(rec.Now) {
			return OutcomeFamilyRevoked, nil
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return OutcomeConsumed, fmt.Errorf("%w: select family: %v", ErrUnavailable, err)
	}

	tag, err := tx.Exec(ctx, insertConsumedSQL, rec.TokenID, rec.Family, rec.ExpiresAt)
	if err != nil {
		return OutcomeConsumed, fmt.Errorf("%w: insert consumed: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 1 {
		return OutcomeConsumed, nil
	}

	if _, err := tx.Exec(ctx, upsertRevokedSQL, rec.Family, rec.RevokeUntil); err != nil {
		return OutcomeConsumed, fmt.Errorf("%w: revoke family: %v", ErrUnavailable, err)
	}
	return OutcomeReplayed, nil
}

// RevokeFamily implements Ledger.
func (p *Postgres) RevokeFamily(ctx context.Context, family string, now, until time.Time) error {
	if family == "" || !until.After(now) {
		return nil
	}
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	if _, err := p.db.Exec(ctx, upsertRevokedSQL, family, until); err != nil {
		return fmt.Errorf("%w: revoke family: %v", ErrUnavailable, err)
	}
	return nil
}

// Prune deletes consumed marks and revocations that lapsed before now.
func (p *Postgres) Prune(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	consumed, err := p.db.Exec(ctx, pruneConsumedSQL, now)
	if err != nil {
		return 0, fmt.Errorf("%w: prune consumed: %v", ErrUnavailable, err)
	}
	revoked, err := p.db.Exec(ctx, pruneRevokedSQL, now)
	if err != nil {
		return consumed.RowsAffected(), fmt.Errorf("%w: prune families: %v", ErrUnavailable, err)
	}
	return consumed.RowsAffected() + revoked.RowsAffected(), nil
}

func (p *Postgres) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}
