// Package pgcache is the optional durable suggestion-cache tier backed by
// Postgres. The pipeline consults it after an in-memory miss and writes
// through on provider success, so suggestion sets survive restarts and are
// shared across instances.
package pgcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/trailmix-app/trailgeo/pkg/geocode"
)

// Pool is the subset of pgxpool.Pool the cache needs; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Cache implements geocode.PersistentCache over Postgres.
type Cache struct {
	pool Pool
	ttl  time.Duration
}

// DefaultTTL is used when New is given a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// New creates a Cache over an existing pool.
func New(pool Pool, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{pool: pool, ttl: ttl}
}

// Connect opens a pgx pool for the given connection string and returns a
// Cache over it, with a close func for shutdown.
func Connect(ctx context.Context, connString string, ttl time.Duration) (*Cache, func(), error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, nil, eris.Wrap(err, "pgcache: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, eris.Wrap(err, "pgcache: ping")
	}
	return New(pool, ttl), pool.Close, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS suggestion_cache (
	cache_key  TEXT PRIMARY KEY,
	results    JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_suggestion_cache_expires_at ON suggestion_cache (expires_at);
`

// Migrate creates the cache table.
func (c *Cache) Migrate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, migration)
	return eris.Wrap(err, "pgcache: migrate")
}

// Lookup implements geocode.PersistentCache. A missing or expired key is a
// (nil, nil) miss.
func (c *Cache) Lookup(ctx context.Context, key string) ([]geocode.Suggestion, error) {
	var payload []byte
	err := c.pool.QueryRow(ctx,
		`SELECT results FROM suggestion_cache WHERE cache_key = $1 AND expires_at > now()`,
		key,
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pgcache: lookup %s", key)
	}

	var results []geocode.Suggestion
	if err := json.Unmarshal(payload, &results); err != nil {
		return nil, eris.Wrapf(err, "pgcache: decode %s", key)
	}
	return results, nil
}

// Store implements geocode.PersistentCache, upserting the suggestion set with
// a fresh expiry.
func (c *Cache) Store(ctx context.Context, key string, results []geocode.Suggestion) error {
	payload, err := json.Marshal(results)
	if err != nil {
		return eris.Wrapf(err, "pgcache: encode %s", key)
	}
	_, err = c.pool.Exec(ctx,
		`INSERT INTO suggestion_cache (cache_key, results, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (cache_key) DO UPDATE SET results = excluded.results, expires_at = excluded.expires_at`,
		key, payload, time.Now().UTC().Add(c.ttl),
	)
	return eris.Wrapf(err, "pgcache: store %s", key)
}

// Prune deletes expired rows and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	tag, err := c.pool.Exec(ctx, `DELETE FROM suggestion_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "pgcache: prune")
	}
	return tag.RowsAffected(), nil
}
