// Package store persists drafts, queue entries, audit records, recovery
// logs, and the global publish state in SQLite. It is the single
// persistence boundary of the core: every draft status change goes through
// an atomic mutator that writes the row and its audit record in one
// transaction. There is no direct "set status" entry point.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/sophiahq/sophia/internal/log"
)

// Store wraps the SQLite database and exposes the repository methods.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the content database at path and
// applies the schema.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	log.Debug(log.CatStore, "Opening database", "path", path)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		log.ErrorErr(log.CatStore, "Failed to open database", err, "path", path)
		return nil, unavailable("open database", err)
	}
	if err := db.Ping(); err != nil {
		log.ErrorErr(log.CatStore, "Failed to ping database", err, "path", path)
		return nil, unavailable("ping database", err)
	}

	// SQLite permits one writer; funneling all writes through a single
	// connection avoids SQLITE_BUSY churn under the worker pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, unavailable("apply schema", err)
	}

	log.Info(log.CatStore, "Connected to database", "path", path)
	return &Store{db: db}, nil
}

// OpenMemory opens a fresh in-memory database. Used by tests.
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only collaborators (the
// client repository shares the content database).
func (s *Store) DB() *sql.DB {
	return s.db
}

// unavailable wraps a driver error so that errors.Is(err,
// ErrStoreUnavailable) holds, preserving the original message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
