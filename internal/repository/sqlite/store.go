// Package sqlite implements the durable local store on an embedded SQLite
// database. One row per logical cache key; values are opaque JSON documents
// owned by the sync layer. Writes are last-writer-wins per key and no retry
// or merge logic lives here.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventdeck/internal/domain"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	scope      TEXT NOT NULL,
	value      BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_scope ON cache_entries(scope);
`

// Store is a LocalStore backed by a single SQLite file.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the cache database at path and bootstraps
// the schema. The busy timeout keeps concurrent readers from surfacing
// spurious SQLITE_BUSY errors.
func Open(path string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap cache schema: %w", err)
	}
	return NewStore(db, logger), nil
}

// NewStore wraps an already-open database handle. Tests use this with a
// mocked handle.
func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{DB: db, logger: logger, now: time.Now}
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Get returns the value stored under key, or ErrCacheMiss when the key is
// absent or the row cannot be read. Read failures are logged and degraded to
// a miss; a broken cache must never take the app down.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM cache_entries WHERE key = ?`
	var value []byte
	err := s.DB.QueryRowContext(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCacheMiss
		}
		s.logger.Warn("cache read failed, treating as miss", "key", key, "error", err)
		return nil, fmt.Errorf("read cache entry %q: %v: %w", key, err, domain.ErrCacheMiss)
	}
	return value, nil
}

// Set stores value under key within scope, replacing any previous value.
func (s *Store) Set(ctx context.Context, key, scope string, value []byte) error {
	query := `
		INSERT INTO cache_entries (key, scope, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET scope = excluded.scope, value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.DB.ExecContext(ctx, query, key, scope, value, s.now().UTC()); err != nil {
		return fmt.Errorf("write cache entry %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM cache_entries WHERE key = ?`
	if _, err := s.DB.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("delete cache entry %q: %w", key, err)
	}
	return nil
}

// Clear removes every key written under scope. Logout uses this to purge a
// user's collections in one statement, so no partially-purged state is ever
// visible.
func (s *Store) Clear(ctx context.Context, scope string) error {
	query := `DELETE FROM cache_entries WHERE scope = ?`
	if _, err := s.DB.ExecContext(ctx, query, scope); err != nil {
		return fmt.Errorf("clear cache scope %q: %w", scope, err)
	}
	return nil
}
