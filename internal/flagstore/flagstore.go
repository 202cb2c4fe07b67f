// Package flagstore persists boolean feature flags in SQLite. The geocoding
// pipeline reads the google_enabled flag through this store; flips take
// effect without a restart, bounded by the pipeline's flag cache TTL.
package flagstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Store reads and writes feature flags backed by a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the flag database at the given path and configures WAL mode.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "flagstore: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "flagstore: exec %s", pragma)
		}
	}
	return &Store{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS feature_flags (
	key        TEXT PRIMARY KEY,
	value      INTEGER NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// seeds are inserted on migrate if absent; existing values are never touched.
var seeds = map[string]bool{
	"google_enabled": true,
}

// Migrate creates the flag table and seeds defaults.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return eris.Wrap(err, "flagstore: migrate")
	}
	for key, value := range seeds {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO feature_flags (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
			key, boolToInt(value),
		)
		if err != nil {
			return eris.Wrapf(err, "flagstore: seed %s", key)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Bool returns the flag value. An unknown key is an error; callers that want
// a default should seed it through Migrate.
func (s *Store) Bool(ctx context.Context, key string) (bool, error) {
	var value int
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM feature_flags WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return false, eris.Errorf("flagstore: unknown flag %s", key)
	}
	if err != nil {
		return false, eris.Wrapf(err, "flagstore: read flag %s", key)
	}
	return value != 0, nil
}

// SetBool upserts a flag value.
func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feature_flags (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, boolToInt(value), time.Now().UTC(),
	)
	return eris.Wrapf(err, "flagstore: set flag %s", key)
}

// Flag is one persisted feature flag.
type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns every flag ordered by key.
func (s *Store) List(ctx context.Context) ([]Flag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, updated_at FROM feature_flags ORDER BY key`)
	if err != nil {
		return nil, eris.Wrap(err, "flagstore: list flags")
	}
	defer rows.Close()

	var flags []Flag
	for rows.Next() {
		var f Flag
		var value int
		if err := rows.Scan(&f.Key, &value, &f.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "flagstore: scan flag")
		}
		f.Value = value != 0
		flags = append(flags, f)
	}
	return flags, eris.Wrap(rows.Err(), "flagstore: iterate flags")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
